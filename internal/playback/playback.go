// Package playback mirrors the state of the local platform player and applies
// commands to it.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type State struct {
	TrackURI   string
	TrackName  string
	ProgressMs int64
	DurationMs int64
	IsPlaying  bool
	// ObservedAt is when ProgressMs was true.
	ObservedAt time.Time
}

// Device is the platform player the controller drives.
type Device interface {
	State(ctx context.Context) (State, error)
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, positionMs int64) error
	PlayTrack(ctx context.Context, uri string) error
}

type Config struct {
	PollInterval time.Duration
}

// Controller owns the local state slot. Every command and every poll result
// takes the slot lock, so a relayed command and a poll never interleave.
type Controller struct {
	device       Device
	clock        clock.Clock
	pollInterval time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	state State
}

func NewController(device Device, cfg Config, clk clock.Clock, logger *slog.Logger) *Controller {
	return &Controller{
		device:       device,
		clock:        clk,
		pollInterval: cfg.PollInterval,
		logger:       logger,
	}
}

// Run polls the device until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.Ticker(c.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.WarnContext(ctx, "failed to poll playback state", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Controller) Refresh(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.device.State(ctx)
	if err != nil {
		return c.state, fmt.Errorf("failed to get device state: %w", err)
	}

	state.ObservedAt = c.clock.Now()
	c.state = state

	return state, nil
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Position extrapolates the current progress from the last observation.
func (c *Controller) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.position()
}

func (c *Controller) position() int64 {
	if !c.state.IsPlaying || c.state.ObservedAt.IsZero() {
		return c.state.ProgressMs
	}

	position := c.state.ProgressMs + c.clock.Since(c.state.ObservedAt).Milliseconds()
	if c.state.DurationMs > 0 && position > c.state.DurationMs {
		return c.state.DurationMs
	}

	return position
}

func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.device.Play(ctx); err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}

	c.state.ProgressMs = c.position()
	c.state.IsPlaying = true
	c.state.ObservedAt = c.clock.Now()

	return nil
}

func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.device.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}

	c.state.ProgressMs = c.position()
	c.state.IsPlaying = false
	c.state.ObservedAt = c.clock.Now()

	return nil
}

func (c *Controller) Seek(ctx context.Context, positionMs int64) error {
	if positionMs < 0 {
		positionMs = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.device.Seek(ctx, positionMs); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	c.state.ProgressMs = positionMs
	c.state.ObservedAt = c.clock.Now()

	return nil
}

// ChangeTrack starts uri from the beginning.
func (c *Controller) ChangeTrack(ctx context.Context, uri, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.device.PlayTrack(ctx, uri); err != nil {
		return fmt.Errorf("failed to change track: %w", err)
	}

	c.state = State{
		TrackURI:   uri,
		TrackName:  name,
		IsPlaying:  true,
		ObservedAt: c.clock.Now(),
	}

	return nil
}
