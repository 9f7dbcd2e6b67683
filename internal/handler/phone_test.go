package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/localmart/identity/internal/cache"
	"github.com/localmart/identity/internal/repository"
)

func newPhoneEnv(t *testing.T) (*PhoneHandler, *memStore, *cache.TicketStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	store := newMemStore()
	tickets := cache.NewTicketStore(rdb)
	return NewPhoneHandler(testConfig(), tickets, store, store, newTestCodec(t), nil), store, tickets
}

// waitForStatus polls the ticket store until the detached profile fetch
// lands its terminal write.
func waitForStatus(t *testing.T, tickets *cache.TicketStore, sessionID, want string) cache.Ticket {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		tk, err := tickets.Get(context.Background(), sessionID)
		if err == nil && tk.Status == want {
			return tk
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ticket %s never reached status %q", sessionID, want)
	return cache.Ticket{}
}

func successProfile(phone string) cache.Profile {
	return cache.Profile{
		ProviderID: "tc-77",
		Name:       "Vera Fied",
		Email:      "vera@x.com",
		Phone:      phone,
		City:       "Springfield",
	}
}

func TestCallbackAlwaysRespondsOK(t *testing.T) {
	h, _, _ := newPhoneEnv(t)

	// Malformed body: still 200, the provider is not waiting for errors.
	rec := doJSON(t, h.Callback, http.MethodPost, "/auth/truecaller/callback", `{"bogus":`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for malformed body", rec.Code)
	}
	rec = doJSON(t, h.Callback, http.MethodPost, "/auth/truecaller/callback", `{"requestId":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for empty requestId", rec.Code)
	}
}

func TestCallbackRejectionThenPollExitsFlow(t *testing.T) {
	h, _, tickets := newPhoneEnv(t)
	sessionID := "shopping-0f8fad5b"

	rec := doJSON(t, h.Callback, http.MethodPost, "/auth/truecaller/callback",
		`{"requestId":"`+sessionID+`","status":"user_rejected"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d", rec.Code)
	}
	if tk, err := tickets.Get(context.Background(), sessionID); err != nil || tk.Status != cache.StatusUserRejected {
		t.Fatalf("ticket = %+v, %v", tk, err)
	}

	rec = doJSON(t, h.Poll, http.MethodGet, "/auth/truecaller/status?sessionId="+sessionID+"&type=shopping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("poll status = %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	if data["status"] != "exit_flow" {
		t.Fatalf("data = %v, want exit_flow", data)
	}
}

func TestCallbackPollRace(t *testing.T) {
	h, store, tickets := newPhoneEnv(t)
	sessionID := "shopping-1a2b3c"

	release := make(chan struct{})
	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release // hold the fetch so the first poll races it
		if got := r.Header.Get("Authorization"); got != "Bearer at-55" {
			t.Errorf("authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "tc-77",
			"name": {"first": "Vera", "last": "Fied"},
			"onlineIdentities": {"email": "vera@x.com"},
			"phones": [{"e164Format": "+15550002222"}],
			"addresses": [{"city": "Springfield"}]
		}`))
	}))
	t.Cleanup(profileSrv.Close)

	rec := doJSON(t, h.Callback, http.MethodPost, "/auth/truecaller/callback",
		`{"requestId":"`+sessionID+`","accessToken":"at-55","endpoint":"`+profileSrv.URL+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d", rec.Code)
	}

	// Poll before the profile fetch completes: pending, not an error.
	rec = doJSON(t, h.Poll, http.MethodGet, "/auth/truecaller/status?sessionId="+sessionID+"&type=shopping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("racing poll status = %d: %s", rec.Code, rec.Body.String())
	}
	if data := decodeBody(t, rec)["data"].(map[string]interface{}); data["status"] != "pending" {
		t.Fatalf("racing poll data = %v, want pending", data)
	}

	close(release)
	waitForStatus(t, tickets, sessionID, cache.StatusSuccess)

	rec = doJSON(t, h.Poll, http.MethodGet, "/auth/truecaller/status?sessionId="+sessionID+"&type=shopping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("final poll status = %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	if data["seller"] != false {
		t.Fatalf("data = %v", data)
	}
	if sessionCookie(rec) == nil {
		t.Fatal("successful poll must set the session cookie")
	}

	u, err := store.GetByPhone(context.Background(), "+15550002222")
	if err != nil {
		t.Fatalf("created user missing: %v", err)
	}
	if u.HasPassword() {
		t.Fatal("phone-created account must have no password hash")
	}
	if uid, err := store.GetUserID(context.Background(), "truecaller", "tc-77"); err != nil || uid != u.ID {
		t.Fatalf("identity link = %q/%v", uid, err)
	}
}

func TestCallbackProfileFetchFailure(t *testing.T) {
	h, _, tickets := newPhoneEnv(t)
	sessionID := "shopping-deadbeef"

	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(profileSrv.Close)

	doJSON(t, h.Callback, http.MethodPost, "/auth/truecaller/callback",
		`{"requestId":"`+sessionID+`","accessToken":"at-55","endpoint":"`+profileSrv.URL+`"}`)
	waitForStatus(t, tickets, sessionID, cache.StatusFailed)

	rec := doJSON(t, h.Poll, http.MethodGet, "/auth/truecaller/status?sessionId="+sessionID+"&type=shopping", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("poll status = %d, want 401 for a failed verification", rec.Code)
	}
}

func TestPollModeRoundTrip(t *testing.T) {
	h, _, tickets := newPhoneEnv(t)

	cases := []struct {
		sessionID string
		seller    bool
	}{
		{"selling-6ba7b810", true},
		{"shopping-6ba7b811", false},
	}
	for _, tc := range cases {
		prof := successProfile("+1555000" + tc.sessionID[len(tc.sessionID)-4:])
		prof.Email = tc.sessionID + "@x.com"
		prof.ProviderID = "tc-" + tc.sessionID
		if err := tickets.Put(context.Background(), tc.sessionID,
			cache.Ticket{Status: cache.StatusSuccess, Profile: &prof}, cache.ResultTTL); err != nil {
			t.Fatalf("seed ticket: %v", err)
		}

		// No type parameter: the intent comes from the session-id prefix.
		rec := doJSON(t, h.Poll, http.MethodGet, "/auth/truecaller/status?sessionId="+tc.sessionID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("poll status = %d: %s", rec.Code, rec.Body.String())
		}
		claims, err := h.Codec.Verify(sessionCookie(rec).Value)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if claims.Seller != tc.seller {
			t.Fatalf("session %s: seller = %v, want %v", tc.sessionID, claims.Seller, tc.seller)
		}
	}
}

func TestPollUnknownSession(t *testing.T) {
	h, _, _ := newPhoneEnv(t)
	rec := doJSON(t, h.Poll, http.MethodGet, "/auth/truecaller/status?sessionId=shopping-gone&type=shopping", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for missing ticket", rec.Code)
	}
}

func TestPollMissingSessionID(t *testing.T) {
	h, _, _ := newPhoneEnv(t)
	rec := doJSON(t, h.Poll, http.MethodGet, "/auth/truecaller/status", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPollLinksExistingUserByEmail(t *testing.T) {
	h, store, tickets := newPhoneEnv(t)
	existing := store.seedUser(t, repository.NewUser{Email: "vera@x.com", DisplayName: "Vera"})

	prof := successProfile("+15550003333")
	if err := tickets.Put(context.Background(), "selling-aaaa",
		cache.Ticket{Status: cache.StatusSuccess, Intent: IntentSelling, Profile: &prof}, cache.ResultTTL); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	rec := doJSON(t, h.Poll, http.MethodGet, "/auth/truecaller/status?sessionId=selling-aaaa&type=selling", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("poll status = %d: %s", rec.Code, rec.Body.String())
	}
	if store.userCount() != 1 {
		t.Fatalf("user count = %d, want 1 (no duplicate account)", store.userCount())
	}
	u, err := store.GetByID(context.Background(), existing.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Phone != "+15550003333" {
		t.Fatalf("phone = %q, want the verified number bound", u.Phone)
	}
	if uid, err := store.GetUserID(context.Background(), "truecaller", "tc-77"); err != nil || uid != existing.ID {
		t.Fatalf("identity link = %q/%v", uid, err)
	}
	claims, err := h.Codec.Verify(sessionCookie(rec).Value)
	if err != nil || !claims.Seller {
		t.Fatalf("claims = %+v, %v", claims, err)
	}
}

func TestPollSuccessIsRepeatable(t *testing.T) {
	h, store, tickets := newPhoneEnv(t)
	prof := successProfile("+15550004444")
	if err := tickets.Put(context.Background(), "shopping-bbbb",
		cache.Ticket{Status: cache.StatusSuccess, Intent: IntentShopping, Profile: &prof}, cache.ResultTTL); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h.Poll, http.MethodGet, "/auth/truecaller/status?sessionId=shopping-bbbb&type=shopping", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("poll %d status = %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	if store.userCount() != 1 || store.identityCount() != 1 {
		t.Fatalf("repeat poll duplicated rows: users = %d identities = %d", store.userCount(), store.identityCount())
	}
}
