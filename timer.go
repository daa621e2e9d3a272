package librehsm

import (
	"fmt"
	"time"
)

// TimerStarter arms a one-shot timer that must eventually dispatch id back
// into m once period has elapsed. It is supplied by a timer backend such as
// the ones in package timer; the machine itself has no notion of time.
type TimerStarter func(m *Machine, id EventID, period time.Duration) error

// SetTimerStarter installs or replaces the timer callback. Passing nil
// removes it.
func (m *Machine) SetTimerStarter(fn TimerStarter) {
	m.startTimer = fn
}

// StartTimer asks the installed timer backend to dispatch id after period.
// It returns ErrNoTimer if no backend is installed.
func (m *Machine) StartTimer(id EventID, period time.Duration) error {
	if m.startTimer == nil {
		m.logger.Warn("timer requested without timer starter", "event", id, "period", period)
		return fmt.Errorf("start timer %s: %w", id, ErrNoTimer)
	}

	m.logger.Debug("timer started", "event", id, "period", period)
	return m.startTimer(m, id, period)
}
