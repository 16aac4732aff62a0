package core

import "time"

// Clock measures wall time between Start and the latest Update.
type Clock struct {
	start   time.Time
	running bool
	elapsed time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = time.Since(c.start)
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.start = time.Now()
	c.running = true
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

// Lap returns the time since the previous lap (or Start) and restarts the clock.
func (c *Clock) Lap() time.Duration {
	c.Update()
	lap := c.elapsed
	c.Start()
	return lap
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}
