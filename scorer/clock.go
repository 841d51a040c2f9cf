package scorer

import "time"

// ClockEvent is the phase transition produced by a tick.
type ClockEvent int

const (
	ClockNoEvent ClockEvent = iota
	ClockHalfEnded
	ClockGameEnded
)

func (e ClockEvent) String() string {
	switch e {
	case ClockHalfEnded:
		return "half_ended"
	case ClockGameEnded:
		return "game_ended"
	}
	return "none"
}

// StartResult reports what a Start call did.
type StartResult struct {
	// Started is false when the clock was already running or is terminal.
	Started bool
	// FromIdle is set only on the transition out of Idle (new clock or after Reset).
	FromIdle bool
	Terminal bool
}

// GameClock is the two-half countdown owned by one scorer session.
// It never reads the wall clock; every time-dependent call takes now.
type GameClock struct {
	timing    Timing
	running   bool
	elapsed   int
	startTime time.Time
	idle      bool
}

func NewGameClock(halfSeconds int) *GameClock {
	if halfSeconds <= 0 {
		halfSeconds = DefaultHalfTimeSeconds
	}
	return &GameClock{
		timing: Timing{HalfSeconds: halfSeconds},
		idle:   true,
	}
}

func (c *GameClock) Timing() Timing       { return c.timing }
func (c *GameClock) Running() bool        { return c.running }
func (c *GameClock) Elapsed() int         { return c.elapsed }
func (c *GameClock) StartTime() time.Time { return c.startTime }
func (c *GameClock) Idle() bool           { return c.idle }

func (c *GameClock) Start(now time.Time) StartResult {
	if c.elapsed >= c.timing.Total() {
		return StartResult{Terminal: true}
	}
	if c.running {
		return StartResult{}
	}

	fromIdle := c.idle
	c.running = true
	c.idle = false
	c.startTime = now.Add(-time.Duration(c.elapsed) * time.Second)
	return StartResult{Started: true, FromIdle: fromIdle}
}

func (c *GameClock) Pause() {
	c.running = false
	c.startTime = time.Time{}
}

func (c *GameClock) Reset() {
	c.Pause()
	c.elapsed = 0
	c.idle = true
}

// Tick advances elapsed from the wall clock. Elapsed never decreases and
// never passes either half boundary without stopping there.
func (c *GameClock) Tick(now time.Time) ClockEvent {
	if !c.running {
		return ClockNoEvent
	}

	candidate := int(now.Sub(c.startTime) / time.Second)
	if candidate < 0 {
		candidate = 0
	}

	half, total := c.timing.HalfSeconds, c.timing.Total()
	switch {
	case candidate >= half && c.elapsed < half:
		c.elapsed = half
		c.Pause()
		return ClockHalfEnded
	case candidate >= total:
		c.elapsed = total
		c.Pause()
		return ClockGameEnded
	}

	if candidate > c.elapsed {
		c.elapsed = candidate
	}
	return ClockNoEvent
}

// ClockView is the read model of the clock sent to the scorer screen.
type ClockView struct {
	Running           bool    `json:"running"`
	ElapsedSeconds    int     `json:"elapsed_seconds"`
	RemainingSeconds  int     `json:"remaining_seconds"`
	Display           string  `json:"display"`
	Half              int     `json:"half"`
	HalfSeconds       int     `json:"half_duration_seconds"`
	HalftimeBreak     bool    `json:"halftime_break"`
	Finished          bool    `json:"finished"`
	FirstHalfFinished bool    `json:"first_half_finished"`
	Progress          float64 `json:"progress"`
}

func (c *GameClock) View() ClockView {
	t, e := c.timing, c.elapsed
	return ClockView{
		Running:           c.running,
		ElapsedSeconds:    e,
		RemainingSeconds:  t.Remaining(e),
		Display:           t.DisplayRemaining(e),
		Half:              t.CurrentHalf(e),
		HalfSeconds:       t.HalfSeconds,
		HalftimeBreak:     t.IsHalftimeBreak(e, c.running),
		Finished:          t.IsFinished(e),
		FirstHalfFinished: t.FirstHalfFinished(e),
		Progress:          t.Progress(e),
	}
}
