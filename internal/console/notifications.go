package console

import (
	"context"
	"fmt"
	"io"

	"github.com/sharetube/tandem/internal/drift"
	"github.com/sharetube/tandem/internal/session"
	"github.com/sharetube/tandem/internal/ui"
)

// Describe returns the line shown for n and the printer to show it with.
func Describe(n session.Notification) (func(io.Writer, string), string) {
	switch n.Kind {
	case session.NotifyPartnerJoined:
		name := "your partner"
		if n.Partner != nil && n.Partner.DisplayName != "" {
			name = n.Partner.DisplayName
		}
		return ui.PrintSuccess, name + " joined the room"
	case session.NotifyPartnerLeft:
		return ui.PrintWarning, "your partner left the room"
	case session.NotifyReaction:
		return ui.PrintInfo, "partner reacted " + n.Emoji
	case session.NotifyPlayedTogether:
		return ui.PrintSuccess, "you both pressed play together"
	case session.NotifyDropped:
		return ui.PrintWarning, "connection lost, reconnecting"
	case session.NotifyRejoined:
		return ui.PrintSuccess, "reconnected to room " + n.RoomId
	case session.NotifyGaveUp:
		return ui.PrintError, "could not reconnect, left room " + n.RoomId
	case session.NotifyError:
		return ui.PrintError, fmt.Sprintf("could not follow partner: %v", n.Err)
	case session.NotifyApplied:
		return ui.PrintInfo, describeCommand(n.Command)
	default:
		return ui.PrintInfo, string(n.Kind)
	}
}

func describeCommand(cmd drift.Command) string {
	switch cmd.Kind {
	case drift.KindPlay:
		if !cmd.HasTarget {
			return "partner resumed playback"
		}
		return fmt.Sprintf("partner played from %s (+%d ms)", ui.FormatPosition(cmd.TargetMs), cmd.LagMs)
	case drift.KindPause:
		return "partner paused"
	case drift.KindSeek:
		return fmt.Sprintf("partner jumped to %s (+%d ms)", ui.FormatPosition(cmd.TargetMs), cmd.LagMs)
	case drift.KindTrackChange:
		name := cmd.TrackName
		if name == "" {
			name = cmd.TrackURI
		}
		return "partner switched to " + name
	default:
		return string(cmd.Kind)
	}
}

// Follow prints notifications until ctx is done.
func (c *Console) Follow(ctx context.Context, notifications <-chan session.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notifications:
			printer, msg := Describe(n)
			c.print(printer, msg)
		}
	}
}
