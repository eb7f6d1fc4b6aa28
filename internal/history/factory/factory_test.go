package factory

import (
	"context"
	"testing"
	"time"

	"github.com/swpsco/nockpool-launcher/internal/history"
)

func TestNewSinkFromDSNSQLite(t *testing.T) {
	for _, dsn := range []string{
		t.TempDir() + "/a.db",
		"sqlite://" + t.TempDir() + "/b.db",
	} {
		sink, err := NewSinkFromDSN(dsn)
		if err != nil {
			t.Fatalf("NewSinkFromDSN(%q): %v", dsn, err)
		}
		e := history.Event{Type: history.EventMinerStart, OccurredAt: time.Now().UTC(), PID: 1}
		if err := sink.Send(context.Background(), e); err != nil {
			t.Fatalf("Send via %q: %v", dsn, err)
		}
	}
}

func TestNewSinkFromDSNRejectsUnknown(t *testing.T) {
	if _, err := NewSinkFromDSN("mysql://localhost/db"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
