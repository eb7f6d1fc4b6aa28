package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWritersDefaultPathsFromDir(t *testing.T) {
	dir := t.TempDir()
	fc := FileConfig{Dir: dir}
	outW, errW, err := fc.Writers("nockpool-miner")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers when Dir is set")
	}
	if _, err := outW.Write([]byte("out line\n")); err != nil {
		t.Fatalf("write stdout log: %v", err)
	}
	if _, err := errW.Write([]byte("err line\n")); err != nil {
		t.Fatalf("write stderr log: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()

	b, err := os.ReadFile(filepath.Join(dir, "nockpool-miner.stdout.log"))
	if err != nil || !strings.Contains(string(b), "out line") {
		t.Fatalf("stdout log content: %v %q", err, string(b))
	}
	b, err = os.ReadFile(filepath.Join(dir, "nockpool-miner.stderr.log"))
	if err != nil || !strings.Contains(string(b), "err line") {
		t.Fatalf("stderr log content: %v %q", err, string(b))
	}
}

func TestWritersNilWhenUnconfigured(t *testing.T) {
	outW, errW, err := FileConfig{}.Writers("x")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers without config")
	}
}

func TestNewSloggerLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		cfg := Config{Slog: SlogConfig{Level: lvl}}
		if cfg.NewSlogger() == nil {
			t.Fatalf("nil logger for level %q", lvl)
		}
	}
	colored := Config{Slog: SlogConfig{Level: "info", Color: true}}
	if colored.NewSlogger() == nil {
		t.Fatalf("nil colored logger")
	}
}

func TestColorTextHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, nil, false)
	log := slog.New(h)

	log.Info("miner started", "pid", 4242)
	line := buf.String()
	if !strings.HasPrefix(line, colorGreen+"I"+colorReset+" miner started") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line, "pid=4242") {
		t.Fatalf("attr missing from %q", line)
	}

	buf.Reset()
	log.Warn("update check failed", "error", "timeout")
	if !strings.HasPrefix(buf.String(), colorYellow+"W"+colorReset) {
		t.Fatalf("warn line %q", buf.String())
	}
}

func TestColorTextHandlerShowTime(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, nil, true))
	log.Info("ready")
	// level letter, a space, then the HH:MM:SS column
	rest := strings.TrimPrefix(buf.String(), colorGreen+"I"+colorReset+" ")
	if len(rest) < 9 || rest[2] != ':' || rest[5] != ':' {
		t.Fatalf("time column missing in %q", buf.String())
	}
}

func TestColorTextHandlerLevelAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false)
	log := slog.New(h)

	log.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info emitted below warn level: %q", buf.String())
	}

	withCtx := log.With("version", "2.0.0").WithGroup("miner").With("pid", 7)
	withCtx.Error("exited")
	line := buf.String()
	if !strings.Contains(line, "version=2.0.0") || !strings.Contains(line, "miner.pid=7") {
		t.Fatalf("handler attrs missing from %q", line)
	}
}
