// Package cache holds the Redis-backed verification tickets for the phone
// flow. A ticket tracks one verification attempt: the provider's callback
// writes it, the browser polls it, and Redis TTL is its entire lifecycle —
// an abandoned attempt simply expires.
package cache

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/redis/go-redis/v9"
)

// Ticket statuses written by the callback handler. Any other value is a raw
// provider status and is reported to the poller as still pending.
const (
    StatusPending          = "pending"
    StatusSuccess          = "success"
    StatusFailed           = "failed"
    StatusUserRejected     = "user_rejected"
    StatusUseAnotherNumber = "use_another_number"
)

// Ticket TTLs. A terminal result only needs to survive a few poll
// intervals; a rejection is kept longer so a user reopening the flow sees
// a stable answer instead of an expired session.
const (
    ResultTTL    = 600 * time.Second
    RejectionTTL = 3600 * time.Second
)

// ErrTicketNotFound is returned when no ticket exists for a session id,
// either because verification never started or because the TTL elapsed.
var ErrTicketNotFound = errors.New("verification ticket not found")

// Profile is the verified subscriber data extracted from the provider's
// profile payload on a successful fetch.
type Profile struct {
    ProviderID string `json:"providerId"`
    Name       string `json:"name"`
    Email      string `json:"email,omitempty"`
    Phone      string `json:"phone,omitempty"`
    City       string `json:"city,omitempty"`
}

// Ticket is one verification attempt's state, keyed by the client-generated
// session id. Intent records the buyer/seller choice explicitly instead of
// relying on the session-id prefix alone.
type Ticket struct {
    Status  string   `json:"status"`
    Intent  string   `json:"intent,omitempty"` // "selling" | "shopping"
    Profile *Profile `json:"profile,omitempty"`
}

// IsRejection reports whether the provider ended the attempt on the user's
// behalf (user dismissed the prompt or wants a different number). The
// poller maps this to an exit-flow response so the client stops polling.
func (t Ticket) IsRejection() bool {
    return t.Status == StatusUserRejected || t.Status == StatusUseAnotherNumber
}

// TicketStore reads and writes tickets in Redis. Per-key set/get is atomic
// in Redis, which is all the coordination this flow needs: the callback's
// writes are last-write-wins and a duplicate provider delivery converges on
// the same end state.
type TicketStore struct {
    rdb    *redis.Client
    prefix string
}

func NewTicketStore(rdb *redis.Client) *TicketStore {
    return &TicketStore{rdb: rdb, prefix: "verify:"}
}

// Put stores the ticket under the session id with the given TTL,
// overwriting any previous state.
func (s *TicketStore) Put(ctx context.Context, sessionID string, t Ticket, ttl time.Duration) error {
    raw, err := json.Marshal(t)
    if err != nil {
        return err
    }
    return s.rdb.Set(ctx, s.prefix+sessionID, raw, ttl).Err()
}

// Get loads the ticket for a session id. Absent or expired entries return
// ErrTicketNotFound.
func (s *TicketStore) Get(ctx context.Context, sessionID string) (Ticket, error) {
    raw, err := s.rdb.Get(ctx, s.prefix+sessionID).Bytes()
    if err == redis.Nil {
        return Ticket{}, ErrTicketNotFound
    }
    if err != nil {
        return Ticket{}, err
    }
    var t Ticket
    if err := json.Unmarshal(raw, &t); err != nil {
        return Ticket{}, err
    }
    return t, nil
}
