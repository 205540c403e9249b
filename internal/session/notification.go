package session

import (
	"github.com/sharetube/tandem/internal/drift"
	"github.com/sharetube/tandem/internal/presence"
)

type NotificationKind string

const (
	NotifyPartnerJoined  NotificationKind = "partner-joined"
	NotifyPartnerLeft    NotificationKind = "partner-left"
	NotifyReaction       NotificationKind = "reaction"
	NotifyApplied        NotificationKind = "applied"
	NotifyPlayedTogether NotificationKind = "played-together"
	NotifyDropped        NotificationKind = "dropped"
	NotifyRejoined       NotificationKind = "rejoined"
	NotifyGaveUp         NotificationKind = "gave-up"
	NotifyError          NotificationKind = "error"
)

type Notification struct {
	Kind    NotificationKind
	RoomId  string
	Partner *presence.Partner
	Emoji   string
	// Command is set for applied.
	Command drift.Command
	Err     error
}
