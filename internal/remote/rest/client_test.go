package rest

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-portal/internal/model"
	"community-portal/internal/remote"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	c, err := New(Options{
		BaseURL:     server.URL,
		APIKey:      "anon-key",
		AccessToken: "member-token",
		Location:    loc,
	}, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return c
}

func TestListNotifications(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/notifications", r.URL.Path)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer member-token", r.Header.Get("Authorization"))

		readAt := "2026-03-02T10:00:00Z"
		json.NewEncoder(w).Encode([]notificationRow{
			{ID: "n1", UserID: "u1", Title: "Welcome", CreatedAt: "2026-03-01 09:00:00"},
			{ID: "n2", UserID: "u1", Title: "Food drive", CreatedAt: "2026-03-01T08:00:00Z", ReadAt: &readAt},
		})
	})

	records, err := c.ListNotifications(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Zone-less timestamps are read in the organization's timezone.
	assert.Equal(t, time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), records[0].CreatedAt)
	assert.False(t, records[0].IsRead())
	assert.True(t, records[1].IsRead())
	assert.Equal(t, 1, model.UnreadCount(records))
}

func TestListNotifications_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"JWT expired"}`, http.StatusUnauthorized)
	})

	_, err := c.ListNotifications(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrFetch)

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusUnauthorized, status.Code)
}

func TestListNotifications_BadTimestamp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"n1","created_at":"not a time"}]`))
	})

	_, err := c.ListNotifications(context.Background(), "u1")
	assert.ErrorIs(t, err, remote.ErrFetch)
}

func TestMarkNotificationRead(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.n1", r.URL.Query().Get("id"))
		assert.Equal(t, "is.null", r.URL.Query().Get("read_at"))
		assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.MarkNotificationRead(context.Background(), "n1", at))
	assert.Equal(t, "2026-03-01T12:00:00Z", body["read_at"])
}

func TestMarkNotificationRead_Failure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := c.MarkNotificationRead(context.Background(), "n1", time.Now())
	assert.ErrorIs(t, err, remote.ErrMutation)
	assert.NotErrorIs(t, err, remote.ErrFetch)
}

func TestRegisterForEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/event_registrations", r.URL.Path)
		var in registrationRow
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]registrationRow{{
			ID: "r1", EventID: in.EventID, UserID: in.UserID, CreatedAt: "2026-03-01T12:00:00Z",
		}})
	})

	reg, err := c.RegisterForEvent(context.Background(), "e1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", reg.ID)
	assert.Equal(t, "e1", reg.EventID)
	assert.Equal(t, "u1", reg.UserID)
}

func TestRegisterForEvent_EmptyEcho(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := c.RegisterForEvent(context.Background(), "e1", "u1")
	assert.ErrorIs(t, err, remote.ErrMutation)
}

func TestRegisterForEvent_Twice(t *testing.T) {
	var mu sync.Mutex
	existing := map[string]string{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "event_id,user_id", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=representation", r.Header.Get("Prefer"))
		var in registrationRow
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Empty(t, in.ID)

		mu.Lock()
		key := in.EventID + "/" + in.UserID
		id, ok := existing[key]
		if !ok {
			id = "r" + strconv.Itoa(len(existing)+1)
			existing[key] = id
		}
		mu.Unlock()
		json.NewEncoder(w).Encode([]registrationRow{{
			ID: id, EventID: in.EventID, UserID: in.UserID, CreatedAt: "2026-03-01T12:00:00Z",
		}})
	})

	ctx := context.Background()
	first, err := c.RegisterForEvent(ctx, "e1", "u1")
	require.NoError(t, err)
	again, err := c.RegisterForEvent(ctx, "e1", "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, existing, 1)
}

func TestListRegistrations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/event_registrations", r.URL.Path)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("user_id"))
		w.Write([]byte(`[{"id":"r1","event_id":"e1","user_id":"u1","created_at":"2026-03-01T12:00:00"}]`))
	})

	regs, err := c.ListRegistrations(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "e1", regs[0].EventID)
	assert.Equal(t, time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC), regs[0].CreatedAt.UTC())
}

func TestListRegistrations_Failure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ListRegistrations(context.Background(), "u1")
	assert.ErrorIs(t, err, remote.ErrFetch)
}

func TestSetAccessToken_WhileRequesting(t *testing.T) {
	var last atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		last.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.SetAccessToken("token-" + strconv.Itoa(i))
		}(i)
		go func() {
			defer wg.Done()
			_, err := c.ListEvents(ctx, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c.SetAccessToken("refreshed")
	_, err := c.ListEvents(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Bearer refreshed", last.Load())
}

func TestListEvents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gte.2026-03-01T00:00:00Z", r.URL.Query().Get("starts_at"))
		w.Write([]byte(`[{"id":"e1","title":"Cleanup","starts_at":"2026-03-10T15:00:00Z","ends_at":null}]`))
	})

	events, err := c.ListEvents(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Cleanup", events[0].Title)
	assert.True(t, events[0].EndsAt.IsZero())
}

func TestListMessages_OldestFirst(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.general", r.URL.Query().Get("channel_id"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			{"id":"m2","channel_id":"general","body":"second","created_at":"2026-03-01T10:01:00Z"},
			{"id":"m1","channel_id":"general","body":"first","created_at":"2026-03-01T10:00:00Z"}
		]`))
	})

	msgs, err := c.ListMessages(context.Background(), "general", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var in messageRow
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.CreatedAt = "2026-03-01T10:00:00Z"
		json.NewEncoder(w).Encode([]messageRow{in})
	})

	stored, err := c.SendMessage(context.Background(), model.ChatMessage{
		ID: "m1", ChannelID: "general", SenderID: "u1", Body: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", stored.ID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), stored.CreatedAt)
}

func TestPing(t *testing.T) {
	var down atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/", r.URL.Path)
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	assert.NoError(t, c.Ping(context.Background()))
	down.Store(true)
	assert.Error(t, c.Ping(context.Background()))
}

func TestClient_SatisfiesService(t *testing.T) {
	var _ remote.Service = (*Client)(nil)
}
