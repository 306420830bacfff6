package main

import (
	"errors"
	"fmt"

	"github.com/benaskins/latch/internal/passcode"
	"github.com/benaskins/latch/internal/prompt"
	"github.com/spf13/cobra"
)

var (
	complexFlag bool
	forceUnlock bool
)

func stepTitle(s *passcode.Session) string {
	switch s.Step() {
	case passcode.StepCurrent:
		if s.Flow() == passcode.FlowChange {
			return "Enter your old passcode"
		}
		return "Enter your passcode"
	case passcode.StepNew:
		return "Enter your new passcode"
	case passcode.StepConfirm:
		return "Re-enter your new passcode"
	}
	return ""
}

func inputLimit(l *passcode.Lock, s *passcode.Session) int {
	if s.Simple() {
		return l.Digits()
	}
	return 0
}

func attemptsLabel(n int) string {
	if n == 1 {
		return "1 Passcode Failed Attempt"
	}
	return fmt.Sprintf("%d Passcode Failed Attempts", n)
}

// runSession drives s through the terminal prompt.
func runSession(cmd *cobra.Command, l *passcode.Lock, s *passcode.Session, events *lockEvents) error {
	events.flow = s.Flow()
	check := func(input string) prompt.Outcome {
		_, err := s.Submit(input)
		next := prompt.Outcome{Title: stepTitle(s), Limit: inputLimit(l, s)}
		switch {
		case err == nil:
			next.Done = s.Done()
		case errors.Is(err, passcode.ErrTooManyAttempts):
			events.failed(l.FailedAttempts(), err)
			next.Err = err
		case errors.Is(err, passcode.ErrWrongPasscode):
			n := l.FailedAttempts()
			events.failed(n, err)
			next.Message = attemptsLabel(n)
		case errors.Is(err, passcode.ErrMismatch):
			next.Message = "Passcodes did not match. Try again."
		case errors.Is(err, passcode.ErrSamePasscode):
			next.Message = "Cannot reuse the same passcode"
		default:
			next.Message = err.Error()
		}
		return next
	}

	err := prompt.Ask(cmd.Context(), prompt.Config{
		Title: stepTitle(s),
		Limit: inputLimit(l, s),
		In:    cmd.InOrStdin(),
		Out:   cmd.ErrOrStderr(),
	}, check)
	if errors.Is(err, prompt.ErrAborted) {
		s.Cancel()
	}
	return err
}

// withLock opens the app and a lock that reports to the audit log.
func withLock(fn func(cmd *cobra.Command, l *passcode.Lock, events *lockEvents) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		events := &lockEvents{}
		l := a.lock(events)
		events.lock = l
		return fn(cmd, l, events)
	}
}

var passcodeCmd = &cobra.Command{
	Use:   "passcode",
	Short: "Manage the passcode lock",
}

var passcodeEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Set a passcode",
	Args:  cobra.NoArgs,
	RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, events *lockEvents) error {
		if complexFlag {
			if _, err := l.SetSimple(false); err != nil {
				return err
			}
		}
		s, err := l.Begin(passcode.FlowEnable)
		if err != nil {
			return err
		}
		if err := runSession(cmd, l, s, events); err != nil {
			return err
		}
		l.SaveTimerStartTime()
		return nil
	}),
}

var passcodeChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the passcode",
	Args:  cobra.NoArgs,
	RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, events *lockEvents) error {
		s, err := l.Begin(passcode.FlowChange)
		if err != nil {
			return err
		}
		if err := runSession(cmd, l, s, events); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Passcode changed")
		return nil
	}),
}

var passcodeModeCmd = &cobra.Command{
	Use:       "mode <simple|complex>",
	Short:     "Switch between a digit code and a free-form passcode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"simple", "complex"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var simple bool
		switch args[0] {
		case "simple":
			simple = true
		case "complex":
		default:
			return fmt.Errorf("unknown mode %q", args[0])
		}
		return withLock(func(cmd *cobra.Command, l *passcode.Lock, events *lockEvents) error {
			if l.IsSimple() == simple {
				fmt.Fprintf(cmd.OutOrStdout(), "Passcode is already %s\n", args[0])
				return nil
			}
			s, err := l.SetSimple(simple)
			if err != nil {
				return err
			}
			if s != nil {
				if err := runSession(cmd, l, s, events); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Passcode mode set to %s\n", args[0])
			return nil
		})(cmd, args)
	},
}

var passcodeOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Turn the passcode off",
	Args:  cobra.NoArgs,
	RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, events *lockEvents) error {
		s, err := l.Begin(passcode.FlowTurnOff)
		if err != nil {
			return err
		}
		if err := runSession(cmd, l, s, events); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Passcode turned off")
		return nil
	}),
}

var passcodeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show passcode lock state",
	Args:  cobra.NoArgs,
	RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, _ *lockEvents) error {
		out := cmd.OutOrStdout()
		if !l.PasscodeExists() {
			fmt.Fprintln(out, "Passcode: off")
			return nil
		}
		mode := "complex"
		if l.IsSimple() {
			mode = fmt.Sprintf("simple (%d digits)", l.Digits())
		}
		fmt.Fprintln(out, "Passcode: on")
		fmt.Fprintf(out, "Mode: %s\n", mode)
		if limit := l.MaxFailedAttempts(); limit > 0 {
			fmt.Fprintf(out, "Failed attempts: %d of %d\n", l.FailedAttempts(), limit)
		} else {
			fmt.Fprintf(out, "Failed attempts: %d\n", l.FailedAttempts())
		}
		fmt.Fprintf(out, "Timer ended: %t\n", l.DidTimerEnd())
		fmt.Fprintf(out, "Biometrics allowed: %t\n", l.AllowUnlockWithBiometrics())
		return nil
	}),
}

var passcodeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reseal the stored passcode under this installation's key",
	Args:  cobra.NoArgs,
	RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, _ *lockEvents) error {
		if !l.PasscodeExists() {
			return passcode.ErrNoPasscode
		}
		l.ResetPasscode()
		fmt.Fprintln(cmd.OutOrStdout(), "Passcode resealed")
		return nil
	}),
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Ask for the passcode if the lock timer has ended",
	Args:  cobra.NoArgs,
	RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, events *lockEvents) error {
		if !l.PasscodeExists() {
			return nil
		}
		if !forceUnlock && !l.DidTimerEnd() {
			fmt.Fprintln(cmd.OutOrStdout(), "Unlocked (timer running)")
			return nil
		}

		events.flow = passcode.FlowUnlock
		err := l.UnlockWithBiometrics(cmd.Context())
		if errors.Is(err, passcode.ErrBiometricsFailed) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Biometric unlock failed, falling back to passcode")
		}
		if err != nil {
			s, err := l.Begin(passcode.FlowUnlock)
			if err != nil {
				return err
			}
			if err := runSession(cmd, l, s, events); err != nil {
				return err
			}
		}

		l.SaveTimerStartTime()
		fmt.Fprintln(cmd.OutOrStdout(), "Unlocked")
		return nil
	}),
}

func init() {
	passcodeEnableCmd.Flags().BoolVar(&complexFlag, "complex", false, "use a free-form passcode instead of digits")
	unlockCmd.Flags().BoolVar(&forceUnlock, "force", false, "ask even if the lock timer is running")

	passcodeCmd.AddCommand(passcodeEnableCmd)
	passcodeCmd.AddCommand(passcodeChangeCmd)
	passcodeCmd.AddCommand(passcodeModeCmd)
	passcodeCmd.AddCommand(passcodeOffCmd)
	passcodeCmd.AddCommand(passcodeStatusCmd)
	passcodeCmd.AddCommand(passcodeResetCmd)
	rootCmd.AddCommand(passcodeCmd)
	rootCmd.AddCommand(unlockCmd)
}
