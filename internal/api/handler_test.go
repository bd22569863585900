package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"community-portal/internal/chat"
	"community-portal/internal/events"
	"community-portal/internal/localstore"
	"community-portal/internal/model"
	"community-portal/internal/panel"
	"community-portal/internal/remote"
	"community-portal/internal/store"
	"community-portal/internal/view"
)

type fakePanel struct {
	view    panel.View
	readErr error
	read    []string
}

func (f *fakePanel) View() panel.View { return f.view }

func (f *fakePanel) MarkRead(_ context.Context, id string) error {
	f.read = append(f.read, id)
	return f.readErr
}

func (f *fakePanel) MarkAllRead(context.Context) error { return nil }
func (f *fakePanel) Refresh(context.Context) error     { return view.ErrNotWired }

type fakeChat struct {
	view chat.View
}

func (f *fakeChat) View() chat.View { return f.view }

func (f *fakeChat) Switch(_ context.Context, id string) error {
	if id != "general" {
		return chat.ErrUnknownChannel
	}
	f.view.Active = id
	return nil
}

func (f *fakeChat) Send(_ context.Context, body string) (model.ChatMessage, error) {
	if strings.TrimSpace(body) == "" {
		return model.ChatMessage{}, chat.ErrEmptyMessage
	}
	return model.ChatMessage{ID: "m1", ChannelID: f.view.Active, Body: body}, nil
}

type fakeEvents struct {
	calls int
}

func (f *fakeEvents) View() events.View {
	f.calls++
	return events.View{Days: []events.Day{{Label: fmt.Sprintf("call %d", f.calls)}}}
}

func (f *fakeEvents) Register(_ context.Context, id string) (model.EventRegistration, error) {
	if id != "e1" {
		return model.EventRegistration{}, events.ErrUnknownEvent
	}
	return model.EventRegistration{ID: "r1", EventID: id, UserID: "u1"}, nil
}

type fakeReminders struct {
	entries []model.ReminderEntry
}

func (f *fakeReminders) List(context.Context) ([]model.ReminderEntry, error) {
	return f.entries, nil
}

type fixture struct {
	router    *gin.Engine
	panel     *fakePanel
	events    *fakeEvents
	feed      *view.Feed
	toasts    *view.Toasts
	reminders *fakeReminders
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.PushSubscription{}, &model.DeviceToken{}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		panel:     &fakePanel{view: panel.View{Unread: 2}},
		events:    &fakeEvents{},
		feed:      view.NewFeed(),
		reminders: &fakeReminders{},
	}
	f.toasts = view.NewToasts(time.Minute, f.feed)
	f.router = NewRouter(ctx, Options{
		Notifications: f.panel,
		Chat:          &fakeChat{view: chat.View{Active: "announcements"}},
		Events:        f.events,
		Reminders:     f.reminders,
		Toasts:        f.toasts,
		Feed:          f.feed,
		Drafts:        localstore.NewDrafts(localstore.NewMemoryStore()),
		Store:         store.NewGormStore(db),
		WebPush:       &webpush.Options{VAPIDPublicKey: "BPub"},
		RateLimit:     1000,
		Burst:         1000,
		Logger:        log.New(io.Discard, "", 0),
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/notifications", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread":2`)

	w = f.do(http.MethodPost, "/api/notifications/n1/read", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"n1"}, f.panel.read)

	f.panel.readErr = panel.ErrUnknownNotification
	w = f.do(http.MethodPost, "/api/notifications/nope/read", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.panel.readErr = &remote.MutationError{Op: "mark read", Err: errors.New("boom")}
	w = f.do(http.MethodPost, "/api/notifications/n2/read", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = f.do(http.MethodPost, "/api/notifications/read_all", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/notifications/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChat(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/api/chat/active", `{"channel_id":"general"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":"general"`)

	w = f.do(http.MethodPut, "/api/chat/active", `{"channel_id":"secret"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPut, "/api/chat/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/chat/messages", `{"body":"hello"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	var msg model.ChatMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, "general", msg.ChannelID)

	w = f.do(http.MethodPost, "/api/chat/messages", `{"body":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvents_CachedUntilChanged(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "call 1")

	w = f.do(http.MethodGet, "/api/events", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), "call 1")

	w = f.do(http.MethodPost, "/api/events/e1/register", "")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/api/events", "")
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Contains(t, w.Body.String(), "call 2")

	f.feed.Publish(events.Name)
	assert.Eventually(t, func() bool {
		w := f.do(http.MethodGet, "/api/events", "")
		return w.Header().Get("X-Cache") == ""
	}, time.Second, 10*time.Millisecond)

	w = f.do(http.MethodPost, "/api/events/nope/register", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReminders_SoonestFirst(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.reminders.entries = []model.ReminderEntry{
		{ID: "r:1d", ScheduledTime: base.Add(24 * time.Hour)},
		{ID: "r:2h", ScheduledTime: base.Add(2 * time.Hour)},
	}

	w := f.do(http.MethodGet, "/api/reminders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Reminders []model.ReminderEntry `json:"reminders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Reminders, 2)
	assert.Equal(t, "r:2h", got.Reminders[0].ID)
}

func TestToasts(t *testing.T) {
	f := newFixture(t)
	toast := f.toasts.Warn("could not schedule reminders")

	w := f.do(http.MethodGet, "/api/toasts", "")
	assert.Contains(t, w.Body.String(), "could not schedule reminders")

	w = f.do(http.MethodDelete, "/api/toasts/"+toast.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.toasts.List())
}

func TestDrafts(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/api/drafts/donation/amount", `{"value":"25"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/drafts/donation/amount", "")
	assert.JSONEq(t, `{"value":"25"}`, w.Body.String())

	w = f.do(http.MethodDelete, "/api/drafts/donation/amount", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/drafts/donation/amount", "")
	assert.JSONEq(t, `{"value":""}`, w.Body.String())
}

func TestSubscriptions(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/api/subscriptions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	endpoint := "https://push.example.com/send/abc%2Fdef"
	w = f.do(http.MethodPut, "/api/subscriptions",
		fmt.Sprintf(`{"endpoint":%q,"p256dh":"key","auth":"secret"}`, endpoint))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "abc%2Fdef")

	w = f.do(http.MethodGet, "/api/subscriptions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodDelete, "/api/subscriptions", fmt.Sprintf(`{"endpoint":%q}`, endpoint))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDevices(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/api/devices", `{"token":"tok-1","platform":"android"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPut, "/api/devices", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodDelete, "/api/devices", `{"token":"tok-1"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/api/vapid_public_key", "")
	assert.JSONEq(t, `{"public_key":"BPub"}`, w.Body.String())

	h := &Handler{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/k", h.GetVAPIDPublicKey)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/k", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	readUntil := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		return ""
	}
	assert.Equal(t, "event:hello", readUntil("event:"))

	f.feed.Publish(panel.Name)
	assert.Equal(t, "event:change", readUntil("event:"))
	assert.Equal(t, "data:"+panel.Name, readUntil("data:"))
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, errorStatus(errors.New("x")))
	assert.Equal(t, http.StatusBadGateway, errorStatus(&remote.FetchError{Op: "list", Err: errors.New("x")}))
	assert.Equal(t, http.StatusBadRequest, errorStatus(chat.ErrNoChannel))
}
