package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/benaskins/latch/internal/credential"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	serviceFlag string
	noUpdate    bool
)

func service() string {
	if serviceFlag != "" {
		return serviceFlag
	}
	return cfg.Service
}

var credentialCmd = &cobra.Command{
	Use:     "credential",
	Aliases: []string{"cred"},
	Short:   "Manage sealed credentials",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <account> [value]",
	Short: "Seal and store a credential",
	Long:  "Store a credential. If value is omitted, reads from stdin (useful for piping).",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			value, err = readSecret("Enter credential: ")
			if err != nil {
				return err
			}
		}

		if err := a.credentials().Store(args[0], value, service(), !noUpdate); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Credential %q stored\n", args[0])
		return nil
	},
}

var credentialGetCmd = &cobra.Command{
	Use:   "get <account>",
	Short: "Print a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		val, err := a.credentials().Get(args[0], service())
		if errors.Is(err, credential.ErrCorruptEntry) {
			return fmt.Errorf("credential %q has no value; store it again", args[0])
		}
		if err != nil {
			return err
		}
		if val == "" {
			return fmt.Errorf("credential %q not found", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var credentialListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List accounts with stored credentials",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.credentials().List(service())
		if err != nil {
			return err
		}

		if len(accounts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No credentials stored")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tSERVICE")
		for _, acct := range accounts {
			fmt.Fprintf(w, "%s\t%s\n", acct, service())
		}
		w.Flush()
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:     "delete <account>",
	Short:   "Remove a credential",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.credentials().Delete(args[0], service()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Credential %q deleted\n", args[0])
		return nil
	},
}

var credentialUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Reseal every legacy credential under the service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.credentials().Upgrade(service())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d credential(s) resealed\n", n)
		return nil
	},
}

// readSecret reads a value without echo from a terminal, or all of stdin
// otherwise.
func readSecret(label string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, label)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile("/dev/stdin")
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

func init() {
	credentialCmd.PersistentFlags().StringVar(&serviceFlag, "service", "", "service the credential belongs to (default from config)")
	credentialSetCmd.Flags().BoolVar(&noUpdate, "no-update", false, "keep an existing credential instead of replacing it")

	credentialCmd.AddCommand(credentialSetCmd)
	credentialCmd.AddCommand(credentialGetCmd)
	credentialCmd.AddCommand(credentialListCmd)
	credentialCmd.AddCommand(credentialDeleteCmd)
	credentialCmd.AddCommand(credentialUpgradeCmd)
	rootCmd.AddCommand(credentialCmd)
}
