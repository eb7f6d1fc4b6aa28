package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/swpsco/nockpool-launcher/internal/history"
)

func TestSQLiteSinkRoundTrip(t *testing.T) {
	dbPath := t.TempDir() + "/history.db"

	sink, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()

	events := []history.Event{
		{Type: history.EventUpdateApplied, OccurredAt: time.Now().UTC(), Version: "2.3.1"},
		{Type: history.EventMinerStart, OccurredAt: time.Now().UTC(), Version: "2.3.1", PID: 4242},
		{Type: history.EventMinerRestart, OccurredAt: time.Now().UTC(), Version: "2.3.1", Trigger: "sentinel"},
		{Type: history.EventMinerStop, OccurredAt: time.Now().UTC(), Detail: "shutdown"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Send %s: %v", e.Type, err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM launcher_history`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != len(events) {
		t.Fatalf("row count = %d, want %d", count, len(events))
	}

	var trigger string
	err = sink.db.QueryRowContext(ctx,
		`SELECT trigger_source FROM launcher_history WHERE event = ?`,
		string(history.EventMinerRestart)).Scan(&trigger)
	if err != nil || trigger != "sentinel" {
		t.Fatalf("restart trigger = %q err=%v", trigger, err)
	}
}

func TestSQLiteSinkDSNPrefixes(t *testing.T) {
	sink, err := New("sqlite://" + t.TempDir() + "/h.db")
	if err != nil {
		t.Fatalf("sqlite:// prefix: %v", err)
	}
	_ = sink.Close()

	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
