package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"homebid/internal/config"
	"homebid/internal/db"
	"homebid/internal/engine"
	"homebid/internal/migrate"
)

func newWebhookEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Server.BcryptCost = 4
	return engine.New(conn, cfg)
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter(nil)
	if !all.match("bid.created") {
		t.Fatalf("empty filter must match everything")
	}
	blankOnly := newEventFilter([]string{" ", ""})
	if !blankOnly.match("project.created") {
		t.Fatalf("blank-only filter must match everything")
	}
	scoped := newEventFilter([]string{"bid.status_set", "project.created"})
	if !scoped.match("bid.status_set") || scoped.match("milestone.created") {
		t.Fatalf("scoped filter broken")
	}
}

func TestWebhookDelivery(t *testing.T) {
	eng := newWebhookEngine(t)
	ctx := context.Background()
	if _, err := eng.Register(ctx, engine.RegisterOptions{
		Email:    "hook@example.com",
		Password: "hunter2hunter2",
		Role:     "homeowner",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var got []webhookEvent
	var secrets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			t.Errorf("decode delivery: %v", err)
		}
		if r.Header.Get("X-Homebid-Event") != evt.Type {
			t.Errorf("event header mismatch: %s vs %s", r.Header.Get("X-Homebid-Event"), evt.Type)
		}
		got = append(got, evt)
		secrets = append(secrets, r.Header.Get("X-Homebid-Secret"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := config.WebhookConfig{URL: srv.URL, Secret: "s3cret"}
	d := &webhookDispatcher{
		engine:   eng,
		webhooks: []config.WebhookConfig{hook},
		client:   srv.Client(),
		log:      zap.NewNop(),
		cursors:  map[int]int64{0: 0}, // replay from the beginning
	}
	d.dispatchWebhook(0, hook)

	if len(got) == 0 {
		t.Fatalf("expected at least one delivery")
	}
	if got[0].Type != "user.registered" {
		t.Fatalf("unexpected first event %s", got[0].Type)
	}
	if secrets[0] != "s3cret" {
		t.Fatalf("expected secret header")
	}
	last := got[len(got)-1].ID
	if cur := d.cursorFor(0); cur != last {
		t.Fatalf("cursor not advanced: %d vs %d", cur, last)
	}

	// a second pass delivers nothing new
	before := len(got)
	d.dispatchWebhook(0, hook)
	if len(got) != before {
		t.Fatalf("expected no redelivery, got %d new", len(got)-before)
	}
}

func TestWebhookFailureHoldsCursor(t *testing.T) {
	eng := newWebhookEngine(t)
	if _, err := eng.Register(context.Background(), engine.RegisterOptions{
		Email:    "hook@example.com",
		Password: "hunter2hunter2",
		Role:     "homeowner",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := config.WebhookConfig{URL: srv.URL}
	d := &webhookDispatcher{
		engine:   eng,
		webhooks: []config.WebhookConfig{hook},
		client:   srv.Client(),
		log:      zap.NewNop(),
		cursors:  map[int]int64{0: 0},
	}
	d.dispatchWebhook(0, hook)
	if cur := d.cursorFor(0); cur != 0 {
		t.Fatalf("cursor must not advance past a failed delivery, got %d", cur)
	}
}
