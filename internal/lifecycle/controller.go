// Package lifecycle reacts to server-initiated termination: it runs the
// countdown that ends in forced re-authentication.
package lifecycle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStart is the initial countdown value in ticks.
const DefaultStart = 3

// Config wires the controller's callbacks. OnExpire fires once, when the
// countdown reaches zero; OnTick fires with each remaining value,
// including the initial one.
type Config struct {
	Start    int
	Interval time.Duration
	OnTick   func(remaining int)
	OnExpire func()
	Logger   zerolog.Logger
}

// Controller is either idle or terminating with a countdown. It is owned
// by the engine and must be stopped when its owner is torn down so no
// late callback fires after navigation away.
type Controller struct {
	cfg Config

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New returns an idle controller. Zero Start and Interval fall back to
// 3 ticks of one second.
func New(cfg Config) *Controller {
	if cfg.Start <= 0 {
		cfg.Start = DefaultStart
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Controller{cfg: cfg}
}

// Begin starts the countdown. Calling it while already terminating is a
// no-op; the server may deliver CLOSE more than once.
func (c *Controller) Begin() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	c.cfg.Logger.Info().Int("seconds", c.cfg.Start).Msg("session terminated by server, redirecting")
	if c.cfg.OnTick != nil {
		c.cfg.OnTick(c.cfg.Start)
	}

	c.wg.Add(1)
	go c.run(stop)
}

// Terminating reports whether a countdown is in progress.
func (c *Controller) Terminating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Stop cancels a countdown in progress. Safe to call when idle, and safe
// to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) run(stop chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	remaining := c.cfg.Start
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining--
			if c.cfg.OnTick != nil {
				c.cfg.OnTick(remaining)
			}
			if remaining > 0 {
				continue
			}
			c.mu.Lock()
			expired := c.running
			c.running = false
			c.mu.Unlock()
			if expired && c.cfg.OnExpire != nil {
				c.cfg.OnExpire()
			}
			return
		}
	}
}
