package main

import (
	"fmt"

	"github.com/benaskins/latch/internal/passcode"
	"github.com/spf13/cobra"
)

var biometricsCmd = &cobra.Command{
	Use:   "biometrics",
	Short: "Allow or deny biometric unlock",
}

func saveBiometrics(allow bool) *cobra.Command {
	use, short := "deny", "Require the passcode to unlock"
	if allow {
		use, short = "allow", "Allow biometric unlock"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, _ *lockEvents) error {
			l.SaveAllowUnlockWithBiometrics(allow)
			return nil
		}),
	}
}

var biometricsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print whether biometric unlock is allowed",
	Args:  cobra.NoArgs,
	RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, _ *lockEvents) error {
		fmt.Fprintln(cmd.OutOrStdout(), l.AllowUnlockWithBiometrics())
		return nil
	}),
}

func init() {
	biometricsCmd.AddCommand(saveBiometrics(true))
	biometricsCmd.AddCommand(saveBiometrics(false))
	biometricsCmd.AddCommand(biometricsStatusCmd)
	rootCmd.AddCommand(biometricsCmd)
}
