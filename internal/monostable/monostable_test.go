package monostable

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/librescoot/librehsm"
	"github.com/librescoot/librehsm/timer"
)

func newSwitch(t *testing.T, render func(Status)) (*Switch, *timer.Periodic) {
	t.Helper()

	s, err := New(1, DefaultTimeout, render, librehsm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	p, err := timer.NewPeriodic(s.Machine(), LastTimer)
	require.NoError(t, err)
	require.NoError(t, s.Machine().Start())
	return s, p
}

func TestTriggerTurnsOnUntilTimeout(t *testing.T) {
	s, p := newSwitch(t, nil)
	require.Equal(t, Status{ID: 1}, s.Status())

	require.NoError(t, s.Machine().Dispatch(EventTrigger))
	require.Equal(t, Status{ID: 1, On: true, Counter: 1}, s.Status())
	require.True(t, p.Active(EventTimeout))

	require.NoError(t, p.Advance(1900*time.Millisecond))
	require.True(t, s.Status().On)

	require.NoError(t, p.Advance(100*time.Millisecond))
	require.Equal(t, Status{ID: 1, On: false, Counter: 1}, s.Status())
	require.False(t, p.Active(EventTimeout))
}

func TestRetriggerExtends(t *testing.T) {
	s, p := newSwitch(t, nil)
	m := s.Machine()

	m.Dispatch(EventTrigger)
	p.Advance(1500 * time.Millisecond)
	m.Dispatch(EventTrigger)
	p.Advance(1500 * time.Millisecond)
	require.True(t, s.Status().On, "retrigger should restart the timeout")

	p.Advance(500 * time.Millisecond)
	require.False(t, s.Status().On)
	require.Equal(t, 1, s.Status().Counter, "retrigger is not a new activation")

	m.Dispatch(EventTrigger)
	require.Equal(t, 2, s.Status().Counter)
}

func TestDoRenders(t *testing.T) {
	var got []string
	s, _ := newSwitch(t, func(st Status) { got = append(got, st.String()) })
	m := s.Machine()

	m.Dispatch(librehsm.EventDo)
	m.Dispatch(EventTrigger)
	m.Dispatch(librehsm.EventDo)

	require.Equal(t, []string{"01 (000) OFF", "01 (001) ON "}, got)
}

func TestSwitchesAreIndependent(t *testing.T) {
	a, pa := newSwitch(t, nil)
	b, _ := newSwitch(t, nil)

	a.Machine().Dispatch(EventTrigger)
	require.True(t, a.Status().On)
	require.False(t, b.Status().On)

	pa.Advance(DefaultTimeout)
	require.False(t, a.Status().On)
}

func TestRejectsZeroTimeout(t *testing.T) {
	_, err := New(1, 0, nil)
	require.Error(t, err)
}
