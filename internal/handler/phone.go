package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/localmart/identity/internal/cache"
	"github.com/localmart/identity/internal/config"
	"github.com/localmart/identity/internal/queue"
	"github.com/localmart/identity/internal/repository"
	"github.com/localmart/identity/internal/token"
)

const phoneProvider = "truecaller"

// PhoneHandler implements the asynchronous phone-verification flow: the
// provider posts a callback, a detached task fetches the verified profile,
// and the browser polls the resulting ticket until it reaches a terminal
// state. All coordination happens through the Redis ticket store.
type PhoneHandler struct {
	Cfg        config.Config
	Tickets    *cache.TicketStore
	Users      repository.UserStore
	Identities repository.IdentityStore
	Codec      *token.Codec
	Client     *http.Client // profile fetches against the provider-supplied endpoint
	Events     EventPublisher
}

func NewPhoneHandler(cfg config.Config, tickets *cache.TicketStore, users repository.UserStore, ids repository.IdentityStore, codec *token.Codec, events EventPublisher) *PhoneHandler {
	return &PhoneHandler{
		Cfg:        cfg,
		Tickets:    tickets,
		Users:      users,
		Identities: ids,
		Codec:      codec,
		Client:     &http.Client{Timeout: 10 * time.Second},
		Events:     events,
	}
}

// providerCallback is the body the verification provider posts. Either
// status (terminal provider verdict) or endpoint+accessToken (profile
// ready to fetch) is set.
type providerCallback struct {
	RequestID   string `json:"requestId"`
	AccessToken string `json:"accessToken"`
	Endpoint    string `json:"endpoint"`
	Status      string `json:"status"`
}

// Callback is invoked by the verification provider, not the end user. The
// provider fires and forgets with its own short timeout, so the response is
// written before any real work happens and every later error ends up in the
// ticket, never in the HTTP response.
func (h *PhoneHandler) Callback(c echo.Context) error {
	var req providerCallback
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RequestID) == "" {
		// Nothing to key a ticket on; still a 200, the caller is not waiting.
		return respondOK(c, http.StatusOK, "received", nil)
	}
	sessionID := strings.TrimSpace(req.RequestID)

	// Respond before completing work.
	if err := respondOK(c, http.StatusOK, "received", nil); err != nil {
		return err
	}

	intent := intentFromSessionID(sessionID)
	// Detached from the request context: the response is already gone.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if req.Status != "" {
		t := cache.Ticket{Status: req.Status, Intent: intent}
		if err := h.Tickets.Put(ctx, sessionID, t, cache.RejectionTTL); err != nil {
			log.Printf("phone: write status ticket for %s: %v", sessionID, err)
		}
		return nil
	}

	if req.Endpoint != "" && req.AccessToken != "" {
		// Mark the attempt in-flight so a poll racing the fetch sees
		// "pending" rather than an expired session.
		if err := h.Tickets.Put(ctx, sessionID, cache.Ticket{Status: cache.StatusPending, Intent: intent}, cache.RejectionTTL); err != nil {
			log.Printf("phone: write pending ticket for %s: %v", sessionID, err)
		}
		go h.resolveProfile(sessionID, req.Endpoint, req.AccessToken, intent)
	}
	return nil
}

// resolveProfile runs as a detached task after the callback response is
// sent. Its only observable effect is the ticket write.
func (h *PhoneHandler) resolveProfile(sessionID, endpoint, accessToken, intent string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	prof, err := h.fetchProfile(ctx, endpoint, accessToken)
	if err != nil {
		log.Printf("phone: profile fetch for %s: %v", sessionID, err)
		if perr := h.Tickets.Put(ctx, sessionID, cache.Ticket{Status: cache.StatusFailed, Intent: intent}, cache.ResultTTL); perr != nil {
			log.Printf("phone: write failed ticket for %s: %v", sessionID, perr)
		}
		return
	}
	t := cache.Ticket{Status: cache.StatusSuccess, Intent: intent, Profile: prof}
	if err := h.Tickets.Put(ctx, sessionID, t, cache.ResultTTL); err != nil {
		log.Printf("phone: write success ticket for %s: %v", sessionID, err)
	}
}

// providerProfile mirrors the relevant slice of the provider's profile
// payload.
type providerProfile struct {
	ID   string `json:"id"`
	Name struct {
		First string `json:"first"`
		Last  string `json:"last"`
	} `json:"name"`
	OnlineIdentities struct {
		Email string `json:"email"`
	} `json:"onlineIdentities"`
	Phones []struct {
		E164Format string `json:"e164Format"`
	} `json:"phones"`
	Addresses []struct {
		City string `json:"city"`
	} `json:"addresses"`
}

func (h *PhoneHandler) fetchProfile(ctx context.Context, endpoint, accessToken string) (*cache.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile endpoint returned %d", resp.StatusCode)
	}

	var pp providerProfile
	if err := json.NewDecoder(resp.Body).Decode(&pp); err != nil {
		return nil, err
	}
	prof := &cache.Profile{
		ProviderID: pp.ID,
		Name:       strings.TrimSpace(pp.Name.First + " " + pp.Name.Last),
		Email:      strings.ToLower(strings.TrimSpace(pp.OnlineIdentities.Email)),
	}
	if len(pp.Phones) > 0 {
		prof.Phone = pp.Phones[0].E164Format
	}
	if len(pp.Addresses) > 0 {
		prof.City = pp.Addresses[0].City
	}
	if prof.Phone == "" {
		return nil, errors.New("profile has no phone number")
	}
	if prof.ProviderID == "" {
		prof.ProviderID = prof.Phone
	}
	return prof, nil
}

// Poll is the browser's status check, called every few seconds until a
// terminal answer arrives. A missing or expired ticket is unauthorized; a
// rejection tells the client to leave the flow without showing an error; a
// pending ticket keeps the client polling; success finishes the sign-in.
func (h *PhoneHandler) Poll(c echo.Context) error {
	sessionID := strings.TrimSpace(c.QueryParam("sessionId"))
	if sessionID == "" {
		return respondError(c, http.StatusBadRequest, "sessionId is required", nil)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Tickets.Get(ctx, sessionID)
	if errors.Is(err, cache.ErrTicketNotFound) {
		return respondError(c, http.StatusUnauthorized, "verification session not found or expired", nil)
	}
	if err != nil {
		return respondError(c, http.StatusInternalServerError, "verification lookup failed", nil)
	}

	switch {
	case t.IsRejection():
		// Not an error: the user dismissed the prompt. The client stops
		// polling and leaves the flow quietly.
		return respondOK(c, http.StatusOK, "verification cancelled", echo.Map{"status": "exit_flow"})
	case t.Status == cache.StatusFailed:
		return respondError(c, http.StatusUnauthorized, "phone verification failed", nil)
	case t.Status != cache.StatusSuccess:
		return respondOK(c, http.StatusOK, "verification pending", echo.Map{"status": "pending"})
	}

	if t.Profile == nil || t.Profile.Phone == "" {
		return respondError(c, http.StatusInternalServerError, "verification payload incomplete", nil)
	}

	intent := h.resolveIntent(c.QueryParam("type"), t, sessionID)
	u, err := h.resolveUser(ctx, t.Profile)
	if err != nil {
		log.Printf("phone: resolve user for %s: %v", sessionID, err)
		return respondError(c, http.StatusInternalServerError, "sign-in failed", nil)
	}

	seller := intent == IntentSelling
	signed, err := h.Codec.Sign(u.ID, u.DisplayName, seller)
	if err != nil {
		return respondError(c, http.StatusInternalServerError, "issue session failed", nil)
	}
	setSessionCookie(c, h.Cfg, signed)
	return respondOK(c, http.StatusOK, "logged in", claimsPayload{ID: u.ID, Name: u.DisplayName, Seller: seller})
}

// resolveUser finds the account the verified profile belongs to, by email
// first and phone second, linking the provider identity and the verified
// phone number. Unknown profiles become new accounts created atomically
// with their identity link.
func (h *PhoneHandler) resolveUser(ctx context.Context, prof *cache.Profile) (userRecord, error) {
	found := false
	user := userRecord{}

	if prof.Email != "" {
		mu, gerr := h.Users.GetByEmail(ctx, prof.Email)
		if gerr == nil {
			user, found = userRecord{ID: mu.ID, DisplayName: mu.DisplayName}, true
		} else if !errors.Is(gerr, repository.ErrNotFound) {
			return userRecord{}, gerr
		}
	}
	if !found {
		mu, gerr := h.Users.GetByPhone(ctx, prof.Phone)
		if gerr == nil {
			user, found = userRecord{ID: mu.ID, DisplayName: mu.DisplayName}, true
		} else if !errors.Is(gerr, repository.ErrNotFound) {
			return userRecord{}, gerr
		}
	}

	if found {
		if err := h.Identities.Upsert(ctx, phoneProvider, prof.ProviderID, user.ID); err != nil {
			return userRecord{}, err
		}
		if err := h.Users.UpdatePhone(ctx, user.ID, prof.Phone); err != nil {
			return userRecord{}, err
		}
		return user, nil
	}

	mu, err := h.Users.CreateWithIdentity(ctx, repository.NewUser{
		Email:       prof.Email,
		Phone:       prof.Phone,
		DisplayName: prof.Name,
	}, phoneProvider, prof.ProviderID)
	if err != nil {
		return userRecord{}, err
	}
	h.publish(queue.IdentityEvent{
		Event:      queue.EventUserRegistered,
		UserID:     mu.ID,
		Provider:   phoneProvider,
		Email:      mu.Email,
		Phone:      mu.Phone,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	return userRecord{ID: mu.ID, DisplayName: mu.DisplayName}, nil
}

// userRecord is the slice of the user the poll handler needs for claims.
type userRecord struct {
	ID          string
	DisplayName string
}

// resolveIntent picks the buyer/seller intent for the final claims: the
// explicit type query parameter wins, then the intent stored on the
// ticket, then the legacy session-id prefix, defaulting to shopping.
func (h *PhoneHandler) resolveIntent(param string, t cache.Ticket, sessionID string) string {
	if validIntent(param) {
		return param
	}
	if validIntent(t.Intent) {
		return t.Intent
	}
	if i := intentFromSessionID(sessionID); i != "" {
		return i
	}
	return IntentShopping
}

// intentFromSessionID recovers the intent encoded into a client-generated
// session id of the form "<mode>-<uuid>". Empty when the prefix is absent
// or unknown.
func intentFromSessionID(sessionID string) string {
	switch {
	case strings.HasPrefix(sessionID, IntentSelling+"-"):
		return IntentSelling
	case strings.HasPrefix(sessionID, IntentShopping+"-"):
		return IntentShopping
	}
	return ""
}

func (h *PhoneHandler) publish(ev queue.IdentityEvent) {
	if h.Events == nil {
		return
	}
	go func() {
		if err := h.Events(context.Background(), ev); err != nil {
			log.Printf("phone: publish %s event: %v", ev.Event, err)
		}
	}()
}
