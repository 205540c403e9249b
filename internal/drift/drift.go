// Package drift turns a relayed, timestamped playback event into the local
// command that lands both players on the same position.
package drift

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	ErrSeekWithoutPosition = errors.New("seek without position")
	ErrUnknownKind         = errors.New("unknown event kind")
)

type Kind string

const (
	KindPlay        Kind = "play"
	KindPause       Kind = "pause"
	KindSeek        Kind = "seek"
	KindTrackChange Kind = "track-change"
)

// Event is a relayed control event as seen by the receiver.
type Event struct {
	Kind Kind
	// SenderTimestamp is the sender's unix time in ms. Zero means unknown.
	SenderTimestamp int64
	// PositionMs is the sender's progress for play and the target for seek.
	// Nil on play means resume wherever the local player is.
	PositionMs *int64
	TrackURI   string
	TrackName  string
}

// Command is what the local player must do.
type Command struct {
	Kind      Kind
	LagMs     int64
	TargetMs  int64
	HasTarget bool
	TrackURI  string
	TrackName string
}

// Lag is the transit delay of an event, never negative. A sender clock ahead
// of the receiver would otherwise move playback backwards.
func Lag(receivedAtMs, senderTimestampMs int64) int64 {
	if senderTimestampMs <= 0 {
		return 0
	}

	return max(0, receivedAtMs-senderTimestampMs)
}

// Target is where the sender's playback is by now.
func Target(positionMs, lagMs int64) int64 {
	return max(0, positionMs+lagMs)
}

// Compute is pure: the same event and receive time always give the same command.
func Compute(ev Event, receivedAt time.Time) Command {
	cmd := Command{
		Kind:  ev.Kind,
		LagMs: Lag(receivedAt.UnixMilli(), ev.SenderTimestamp),
	}

	switch ev.Kind {
	case KindPlay, KindSeek:
		if ev.PositionMs != nil {
			cmd.TargetMs = Target(*ev.PositionMs, cmd.LagMs)
			cmd.HasTarget = true
		}
	case KindTrackChange:
		cmd.TrackURI = ev.TrackURI
		cmd.TrackName = ev.TrackName
		cmd.HasTarget = true
	}

	return cmd
}

// Player is the part of the local controller the compensator drives.
type Player interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, positionMs int64) error
	ChangeTrack(ctx context.Context, uri, name string) error
}

type Compensator struct {
	player Player
	settle time.Duration
	clock  clock.Clock
}

func NewCompensator(player Player, settle time.Duration, clk clock.Clock) *Compensator {
	return &Compensator{
		player: player,
		settle: settle,
		clock:  clk,
	}
}

// Apply computes the command for ev and runs it. A play is a seek, a pause of
// the settle interval, then play; the two are never issued together.
func (c *Compensator) Apply(ctx context.Context, ev Event, receivedAt time.Time) (Command, error) {
	cmd := Compute(ev, receivedAt)

	switch cmd.Kind {
	case KindPlay:
		if cmd.HasTarget {
			if err := c.player.Seek(ctx, cmd.TargetMs); err != nil {
				return cmd, fmt.Errorf("failed to seek before play: %w", err)
			}

			if err := c.wait(ctx); err != nil {
				return cmd, err
			}
		}

		if err := c.player.Play(ctx); err != nil {
			return cmd, fmt.Errorf("failed to play: %w", err)
		}
	case KindPause:
		if err := c.player.Pause(ctx); err != nil {
			return cmd, fmt.Errorf("failed to pause: %w", err)
		}
	case KindSeek:
		if !cmd.HasTarget {
			return cmd, ErrSeekWithoutPosition
		}

		if err := c.player.Seek(ctx, cmd.TargetMs); err != nil {
			return cmd, fmt.Errorf("failed to seek: %w", err)
		}
	case KindTrackChange:
		if err := c.player.ChangeTrack(ctx, cmd.TrackURI, cmd.TrackName); err != nil {
			return cmd, fmt.Errorf("failed to change track: %w", err)
		}
	default:
		return cmd, fmt.Errorf("%w %q", ErrUnknownKind, cmd.Kind)
	}

	return cmd, nil
}

func (c *Compensator) wait(ctx context.Context) error {
	if c.settle <= 0 {
		return nil
	}

	timer := c.clock.Timer(c.settle)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
