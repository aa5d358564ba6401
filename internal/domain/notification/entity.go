package notification

import (
	"time"
)

// EventName is the name clients subscribe to on the live stream.
type EventName string

const (
	EventNewRecord               EventName = "new_record"
	EventUnknownUser             EventName = "unknown_user"
	EventUnauthorizedAccess      EventName = "unauthorized_access"
	EventCooldownIgnored         EventName = "cooldown_ignored"
	EventReconciliationCompleted EventName = "reconciliation_completed"
)

// AllEventNames returns all published event names
func AllEventNames() []EventName {
	return []EventName{
		EventNewRecord,
		EventUnknownUser,
		EventUnauthorizedAccess,
		EventCooldownIgnored,
		EventReconciliationCompleted,
	}
}

const (
	// ChannelAttendance receives every attendance event.
	ChannelAttendance = "attendance"
)

// Bounds for listing the notification log.
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// PersonChannel is the per-person subscription channel.
func PersonChannel(personID string) string {
	return ChannelAttendance + ":" + personID
}

// Notification is one published event, kept in the notification log.
type Notification struct {
	ID        string
	Event     EventName
	PersonID  *string
	Data      map[string]interface{}
	CreatedAt time.Time
}
