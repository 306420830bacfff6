package main

import (
	"fmt"
	"time"

	"github.com/benaskins/latch/internal/passcode"
	"github.com/spf13/cobra"
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Manage how long an unlock lasts",
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the lock timer now",
	Args:  cobra.NoArgs,
	RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, _ *lockEvents) error {
		l.SaveTimerStartTime()
		return nil
	}),
}

var timerDurationCmd = &cobra.Command{
	Use:   "duration [duration]",
	Short: "Show or set how long an unlock lasts (e.g. 5m, 1h)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var d time.Duration
		if len(args) == 1 {
			var err error
			d, err = time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("parsing duration: %w", err)
			}
			if d < 0 {
				return fmt.Errorf("duration must not be negative, got %s", d)
			}
		}
		return withLock(func(cmd *cobra.Command, l *passcode.Lock, _ *lockEvents) error {
			if len(args) == 1 {
				l.SaveTimerDuration(d.Seconds())
				return nil
			}
			secs := l.TimerDuration()
			if secs < 0 {
				return fmt.Errorf("timer duration could not be read")
			}
			fmt.Fprintln(cmd.OutOrStdout(), time.Duration(secs*float64(time.Second)).Round(time.Millisecond))
			return nil
		})(cmd, args)
	},
}

var timerEndedCmd = &cobra.Command{
	Use:   "ended",
	Short: "Print whether the lock timer has ended",
	Args:  cobra.NoArgs,
	RunE: withLock(func(cmd *cobra.Command, l *passcode.Lock, _ *lockEvents) error {
		fmt.Fprintln(cmd.OutOrStdout(), l.DidTimerEnd())
		return nil
	}),
}

func init() {
	timerCmd.AddCommand(timerStartCmd)
	timerCmd.AddCommand(timerDurationCmd)
	timerCmd.AddCommand(timerEndedCmd)
	rootCmd.AddCommand(timerCmd)
}
