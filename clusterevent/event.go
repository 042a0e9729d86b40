// Package clusterevent defines the events a node broadcasts about cluster
// state and the bus that carries them.
package clusterevent

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the event payload.
type Kind string

const (
	KindUser Kind = "user"
)

// DefaultCapacity is the number of undelivered events the bus retains.
const DefaultCapacity = 500

// DefaultSubject is the transport subject events are mirrored to.
const DefaultSubject = "cluster.events"

// Event is a cluster event. Exactly one payload field is set, matching Kind.
type Event struct {
	ID        string     `msgpack:"id" json:"id"`
	Timestamp int64      `msgpack:"ts" json:"ts"`
	Kind      Kind       `msgpack:"kind" json:"kind"`
	User      *UserEvent `msgpack:"user,omitempty" json:"user,omitempty"`
}

// UserEvent reports a change to a user.
type UserEvent struct {
	UserID string `msgpack:"user_id" json:"user_id"`
	Action string `msgpack:"action" json:"action"`
}

// NewUserEvent creates a user event stamped with a fresh ID and the current
// time in milliseconds.
func NewUserEvent(userID, action string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Kind:      KindUser,
		User:      &UserEvent{UserID: userID, Action: action},
	}
}

// Time returns the event timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// IsUser selects user events, for use with bus.Bus.SubscribeFunc.
func IsUser(e Event) bool {
	return e.Kind == KindUser && e.User != nil
}
