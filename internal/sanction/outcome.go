package sanction

import (
	"errors"
	"time"

	"warden/internal/storage"
)

var (
	// ErrForbidden marks a platform call the bot lacks permission for.
	ErrForbidden     = errors.New("missing permission")
	ErrAlreadyMuted  = errors.New("user is already muted")
	ErrNotMuted      = errors.New("user is not muted")
	ErrMuteRoleUnset = errors.New("no mute role configured")
)

type Kind string

const (
	KindWarned   Kind = "warned"
	KindMuted    Kind = "muted"
	KindUnmuted  Kind = "unmuted"
	KindBanned   Kind = "banned"
	KindUnbanned Kind = "unbanned"
	KindKicked   Kind = "kicked"
	KindCleared  Kind = "cleared"
	KindFailed   Kind = "failed"
)

// Outcome describes one completed (or failed) transition.
type Outcome struct {
	Kind      Kind
	GuildID   string
	UserID    string
	Issuer    string
	Reason    string
	Automatic bool

	// Warning is set for warned outcomes and for sanctions triggered by one.
	Warning  *storage.Warning
	Count    int
	Settings storage.GuildSettings

	// Duration of a mute; zero means until lifted by hand.
	Duration time.Duration
	Removed  int

	// Attempted and Err describe a failed outcome.
	Attempted Kind
	Err       error

	At time.Time
}

func (o Outcome) Failed() bool { return o.Kind == KindFailed }
