// Package transport defines the narrow substrate the collector is published on:
// named inbound commands, request/reply RPCs, outbound services with broadcast and
// selective-multicast updates, and client disconnect notification.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ClientID identifies a connected client. Ids are unique while connected and may
// be reused after a disconnect.
type ClientID int32

// CommandHandler receives one inbound command payload.
type CommandHandler func(client ClientID, payload []byte)

// RequestHandler answers one inbound request; the returned bytes are the reply.
type RequestHandler func(client ClientID, payload []byte) []byte

// Substrate is the set of primitives the collector consumes.
type Substrate interface {
	BindCommand(name string, h CommandHandler) error
	BindRequest(name string, h RequestHandler) error
	PublishService(name string, initial []byte) error
	UpdateService(name string, payload []byte) error
	UpdateServiceTo(name string, payload []byte, clients []ClientID) error
	OnClientDisconnect(fn func(ClientID))
	// Announce makes every name under prefix reachable and returns once the
	// substrate confirms it, or with an error.
	Announce(ctx context.Context, prefix string) error
	// Retract unbinds every command, request and service under prefix.
	Retract(prefix string)
}

var (
	// ErrNameInUse is returned when binding a name that is already bound.
	ErrNameInUse = errors.New("name already bound")
	// ErrUnknownService is returned when updating a service that was never published.
	ErrUnknownService = errors.New("unknown service")
)

// NameInUse wraps ErrNameInUse with the offending name.
func NameInUse(name string) error { return fmt.Errorf("%w: %s", ErrNameInUse, name) }

// UnknownService wraps ErrUnknownService with the offending name.
func UnknownService(name string) error { return fmt.Errorf("%w: %s", ErrUnknownService, name) }
