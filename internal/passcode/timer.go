package passcode

import (
	"fmt"
	"strconv"
	"time"
)

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// readSeconds returns -1 when the record cannot be read and 0 when it is
// missing or not a number.
func (l *Lock) readSeconds(account string) float64 {
	v, err := l.read(account)
	if err != nil {
		l.logger.Warn("reading timer", "account", account, "error", err)
		return -1
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// TimerDuration returns how long, in seconds, an unlock stays valid.
func (l *Lock) TimerDuration() float64 {
	if !l.useKeychain && l.timers != nil {
		return l.timers.TimerDuration()
	}
	return l.readSeconds(l.accounts.TimerDuration)
}

// SaveTimerDuration stores the timer duration in seconds.
func (l *Lock) SaveTimerDuration(d float64) {
	if !l.useKeychain && l.timers != nil {
		l.timers.SaveTimerDuration(d)
		return
	}
	l.write(l.accounts.TimerDuration, fmt.Sprintf("%.6f", d))
}

// TimerStartTime returns when the timer was last started, in seconds since
// the Unix epoch.
func (l *Lock) TimerStartTime() float64 {
	if !l.useKeychain && l.timers != nil {
		return l.timers.TimerStartTime()
	}
	return l.readSeconds(l.accounts.TimerStart)
}

// SaveTimerStartTime starts the timer now.
func (l *Lock) SaveTimerStartTime() {
	if !l.useKeychain && l.timers != nil {
		l.timers.SaveTimerStartTime()
		return
	}
	l.write(l.accounts.TimerStart, fmt.Sprintf("%.6f", seconds(l.now())))
}

// DidTimerEnd reports whether the passcode must be asked for again. An
// unknown start time, or one in the future, counts as ended.
func (l *Lock) DidTimerEnd() bool {
	if !l.useKeychain && l.timerEnd != nil {
		return l.timerEnd.DidTimerEnd()
	}
	now := seconds(l.now())
	start := l.TimerStartTime()
	return now-start >= l.TimerDuration() || start == -1 || now <= start
}
