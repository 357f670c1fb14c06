package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()

	prev := Logger
	t.Cleanup(func() {
		Logger = prev
		if prev != nil {
			slog.SetDefault(prev)
		}
	})

	var buf bytes.Buffer
	InitWithHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return entry
}

func TestComponentResolvesLateHandler(t *testing.T) {
	log := Component("merge")
	buf := capture(t)

	log.Info("merged", "rows", 3)

	entry := decode(t, buf)
	if entry["component"] != "merge" || entry["msg"] != "merged" || entry["rows"] != float64(3) {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestWithContext(t *testing.T) {
	buf := capture(t)

	ctx := ContextWithRunID(context.Background(), "run-1")
	ctx = ContextWithSource(ctx, "a.tsv.gz")
	WithContext(ctx, Component("pipeline")).Info("log converted")

	entry := decode(t, buf)
	if entry["run_id"] != "run-1" || entry["source"] != "a.tsv.gz" || entry["component"] != "pipeline" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestWithContextGlobal(t *testing.T) {
	buf := capture(t)

	WithContext(context.Background(), nil).Info("plain")

	if strings.Contains(buf.String(), "run_id") {
		t.Errorf("expected no run_id, got %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)

	Component("reader").Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug to be filtered, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{" WARNING ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}
