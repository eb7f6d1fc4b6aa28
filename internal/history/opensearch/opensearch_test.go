package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/swpsco/nockpool-launcher/internal/history"
)

func TestOpenSearchSinkPostsDocument(t *testing.T) {
	var gotPath string
	var gotEvent history.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotEvent)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := New(srv.URL, "launcher-history")
	e := history.Event{
		Type:       history.EventUpdateApplied,
		OccurredAt: time.Now().UTC(),
		Version:    "2.3.1",
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/launcher-history/_doc" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotEvent.Type != history.EventUpdateApplied || gotEvent.Version != "2.3.1" {
		t.Fatalf("event = %+v", gotEvent)
	}
}

func TestOpenSearchSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := New(srv.URL, "launcher-history")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventMinerStop}); err == nil {
		t.Fatalf("expected error for 5xx response")
	}
}
