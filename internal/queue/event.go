// Package queue defines message payloads exchanged over the message broker.
package queue

// Event names published to the identity.events queue.
const (
    EventUserRegistered = "user.registered"
)

// IdentityEvent is published when an account is created through any of the
// three credential flows. It carries enough for downstream consumers to
// log, notify, or trigger analytics without querying the primary database.
type IdentityEvent struct {
    Event      string `json:"event"`
    UserID     string `json:"user_id"`
    Provider   string `json:"provider"` // "password", "google" or "truecaller"
    Email      string `json:"email,omitempty"`
    Phone      string `json:"phone,omitempty"`
    OccurredAt string `json:"occurred_at"`
}
