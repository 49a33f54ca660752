package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestFormatLine(t *testing.T) {
	t.Parallel()

	d := 12.5
	tests := []struct {
		name string
		ev   AccessEvent
		want string
	}{
		{
			name: "denied with distance",
			ev:   AccessEvent{Type: TypeAccessDenied, EventID: "ev1", Email: "a@b.c", Reason: "GEO_BLOCKED", DistanceKm: &d, OccurredAt: "2026-01-01T00:00:00Z"},
			want: "[2026-01-01T00:00:00Z] access.denied | event_id=ev1 | email=a@b.c | reason=GEO_BLOCKED | distance_km=12.50\n",
		},
		{
			name: "bypass session",
			ev:   AccessEvent{Type: TypeSessionCreated, EventID: "ev1", SessionID: "s1", PurchaseID: "bypass:ev1:crew", Bypass: true, OccurredAt: "t"},
			want: "[t] session.created | event_id=ev1 | session_id=s1 | purchase_id=bypass:ev1:crew | bypass=true\n",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatLine(tt.ev); got != tt.want {
				t.Fatalf("FormatLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuditConsumerHandle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "access.log")
	c := NewAuditConsumer("amqp://unused", path, zap.NewNop())

	if err := c.Handle([]byte(`{"type":"access.granted","event_id":"ev1","occurred_at":"t1"}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := c.Handle([]byte(`{"type":"bypass.rotated","event_id":"ev1","occurred_at":"t2"}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	for _, bad := range []string{`not json`, `{"event_id":"ev1"}`, `{"type":"access.denied"}`} {
		if err := c.Handle([]byte(bad)); err == nil {
			t.Fatalf("Handle(%s) error = nil", bad)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
	if !strings.Contains(lines[1], "bypass.rotated") {
		t.Fatalf("second line = %q", lines[1])
	}
}
