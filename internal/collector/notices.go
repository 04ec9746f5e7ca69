package collector

import "github.com/rs/zerolog"

// Notice is a hub lifecycle event: a name, the client it concerns (if any) and
// optional fields.
type Notice struct {
	Name     string
	ClientID int32
	Fields   map[string]any
}

// Notice names.
const (
	NoticeServerStart      = "server_start"
	NoticeServerStop       = "server_stop"
	NoticeClientRegistered = "client_registered"
	NoticeClientRemoved    = "client_removed"
	NoticeDecodeFailed     = "event_decode_failed"
)

// NoticePublisher receives notices from the hub. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type NoticePublisher interface {
	Publish(Notice)
}

// noopPublisher is the default; it drops notices.
type noopPublisher struct{}

func (noopPublisher) Publish(Notice) {}

// LogPublisher writes notices to a zerolog logger at debug level.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(n Notice) {
	e := p.Logger.Debug().Str("notice", n.Name)
	if n.ClientID != 0 {
		e = e.Int32("client_id", n.ClientID)
	}
	if len(n.Fields) > 0 {
		e = e.Fields(n.Fields)
	}
	e.Msg("hub notice")
}
