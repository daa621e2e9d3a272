package pelican

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/librescoot/librehsm"
	"github.com/librescoot/librehsm/timer"
)

func newCrossing(t *testing.T) (*Crossing, *timer.Periodic) {
	t.Helper()

	c, err := New(DefaultTiming(), librehsm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	p, err := timer.NewPeriodic(c.Machine(), LastTimer)
	require.NoError(t, err)
	require.NoError(t, c.Machine().Start())
	return c, p
}

func requireState(t *testing.T, c *Crossing, want librehsm.StateID) {
	t.Helper()
	m := c.Machine()
	require.Equal(t, m.Tree().Name(want), m.Tree().Name(m.CurrentState()))
}

func TestStartsGreen(t *testing.T) {
	c, p := newCrossing(t)

	requireState(t, c, carsGreenNoPed)
	require.Equal(t, Lights{Cars: CarsGreen, Peds: PedsDontWalk}, c.Lights())
	require.True(t, c.Operational())
	require.True(t, p.Active(EventTimeoutCarsGreenMin))
}

func TestPedestrianCycle(t *testing.T) {
	c, p := newCrossing(t)
	m := c.Machine()

	require.NoError(t, p.Advance(2*time.Second))
	require.NoError(t, m.Dispatch(EventPedsWaiting))
	requireState(t, c, carsGreenPedWait)

	// cars keep green for the minimum time
	require.NoError(t, p.Advance(5*time.Second))
	require.Equal(t, CarsGreen, c.Lights().Cars)
	require.NoError(t, p.Advance(time.Second))
	requireState(t, c, carsYellow)
	require.Equal(t, CarsYellow, c.Lights().Cars)

	require.NoError(t, p.Advance(3*time.Second))
	requireState(t, c, pedsWalk)
	require.Equal(t, Lights{Cars: CarsRed, Peds: PedsWalk}, c.Lights())
	require.True(t, p.Active(EventTimeoutPedsWalk))

	// the walk timeout armed on the yellow expiry gets its full period
	require.NoError(t, p.Advance(2900*time.Millisecond))
	requireState(t, c, pedsWalk)
	require.NoError(t, p.Advance(100*time.Millisecond))
	requireState(t, c, pedsFlash)
	require.Equal(t, PedsBlank, c.Lights().Peds)

	for i := 1; i < DefaultTiming().Flashes; i++ {
		require.NoError(t, p.Advance(200*time.Millisecond))
		want := PedsBlank
		if i%2 == 1 {
			want = PedsWalk
		}
		require.Equal(t, want, c.Lights().Peds, "flash %d", i)
		requireState(t, c, pedsFlash)
	}

	require.NoError(t, p.Advance(200*time.Millisecond))
	requireState(t, c, carsGreenNoPed)
	require.Equal(t, Lights{Cars: CarsGreen, Peds: PedsDontWalk}, c.Lights())
	require.True(t, p.Active(EventTimeoutCarsGreenMin))
}

func TestPedestrianAfterMinimumGreen(t *testing.T) {
	c, p := newCrossing(t)

	require.NoError(t, p.Advance(8*time.Second))
	requireState(t, c, carsGreenInt)

	require.NoError(t, c.Machine().Dispatch(EventPedsWaiting))
	requireState(t, c, carsYellow)
}

func TestPedestrianIgnoredWhileWalking(t *testing.T) {
	c, p := newCrossing(t)
	m := c.Machine()

	m.Dispatch(EventPedsWaiting)
	p.Advance(8 * time.Second)
	p.Advance(3 * time.Second)
	requireState(t, c, pedsWalk)

	require.NoError(t, m.Dispatch(EventPedsWaiting))
	requireState(t, c, pedsWalk)
	require.Zero(t, m.Deferred())
}

func TestOfflineBlinks(t *testing.T) {
	c, p := newCrossing(t)
	m := c.Machine()

	var changes []Lights
	c.OnChange(func(l Lights) { changes = append(changes, l) })

	require.Equal(t, EventOff, c.Toggle())
	require.NoError(t, m.Dispatch(c.Toggle()))
	requireState(t, c, offline)
	require.False(t, c.Operational())
	require.Equal(t, Lights{Cars: CarsRed, Peds: PedsDontWalk}, c.Lights())

	require.NoError(t, p.Advance(500*time.Millisecond))
	require.Equal(t, Lights{Cars: CarsBlank, Peds: PedsBlank}, c.Lights())
	require.NoError(t, p.Advance(500*time.Millisecond))
	require.Equal(t, Lights{Cars: CarsRed, Peds: PedsBlank}, changes[len(changes)-2])
	require.Equal(t, Lights{Cars: CarsRed, Peds: PedsDontWalk}, c.Lights())

	require.Equal(t, EventOn, c.Toggle())
	require.NoError(t, m.Dispatch(c.Toggle()))
	requireState(t, c, carsGreenNoPed)
	require.Equal(t, Lights{Cars: CarsGreen, Peds: PedsDontWalk}, c.Lights())
}

func TestOffDuringPedestrianPhase(t *testing.T) {
	c, p := newCrossing(t)
	m := c.Machine()

	m.Dispatch(EventPedsWaiting)
	p.Advance(8 * time.Second)
	p.Advance(3 * time.Second)
	requireState(t, c, pedsWalk)

	require.NoError(t, m.Dispatch(EventOff))
	requireState(t, c, offline)
	require.Equal(t, Lights{Cars: CarsRed, Peds: PedsDontWalk}, c.Lights())
}

func TestTimingValidation(t *testing.T) {
	timing := DefaultTiming()
	timing.PedsFlash = 0
	timing.Flashes = 0

	_, err := New(timing)
	require.Error(t, err)
	require.ErrorContains(t, err, "peds flash timeout must be positive")
	require.ErrorContains(t, err, "flashes must be at least 1")
}

func TestEventName(t *testing.T) {
	require.Equal(t, "PEDS_WAITING", EventName(EventPedsWaiting))
	require.Equal(t, "ENTRY", EventName(librehsm.EventEntry))
	require.Equal(t, "CUSTOM+99", EventName(librehsm.EventCustom+99))
}
