package pause

// DefaultCountdownSeconds is the emergency-pause budget before the session is ended.
const DefaultCountdownSeconds = 300

// Countdown tracks the remaining seconds of an emergency pause. It fires at most once per episode.
type Countdown struct {
	budget    int
	remaining int
	running   bool
	fired     bool
}

// NewCountdown returns an idle countdown with the given budget in seconds.
func NewCountdown(budget int) *Countdown {
	if budget <= 0 {
		budget = DefaultCountdownSeconds
	}
	return &Countdown{budget: budget}
}

// Start begins a new episode. It is a no-op while a countdown is already running.
func (c *Countdown) Start() bool {
	if c.running {
		return false
	}
	c.running = true
	c.fired = false
	c.remaining = c.budget
	return true
}

// Tick decrements by one second and reports true exactly once, when zero is reached.
func (c *Countdown) Tick() bool {
	if !c.running {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 && !c.fired {
		c.fired = true
		c.running = false
		return true
	}
	return false
}

// Cancel stops the countdown and zeroes it.
func (c *Countdown) Cancel() {
	c.running = false
	c.remaining = 0
}

// Running reports whether the countdown is ticking.
func (c *Countdown) Running() bool {
	return c.running
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	return c.remaining
}
