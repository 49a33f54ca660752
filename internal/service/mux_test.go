package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iliyamo/ppv-access/internal/model"
)

func TestMuxClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, secret, ok := r.BasicAuth(); !ok || id != "tid" || secret != "tsecret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/video/v1/live-streams":
			_, _ = w.Write([]byte(`{"data":{"id":"ls1","stream_key":"sk1","status":"idle","playback_ids":[{"id":"pb1","policy":"public"}]}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/video/v1/live-streams/ls1":
			_, _ = w.Write([]byte(`{"data":{"id":"ls1","status":"active"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/video/v1/live-streams/ls2":
			_, _ = w.Write([]byte(`{"data":{"id":"ls2","status":"idle"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewMuxClient(srv.URL+"/", "tid", "tsecret", time.Second)
	ctx := context.Background()

	ls, err := c.CreateLiveStream(ctx)
	if err != nil {
		t.Fatalf("CreateLiveStream() error = %v", err)
	}
	if ls != (LiveStream{StreamID: "ls1", StreamKey: "sk1", PlaybackID: "pb1"}) {
		t.Fatalf("CreateLiveStream() = %+v", ls)
	}

	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "ls1", want: model.StreamLive},
		{id: "ls2", want: model.StreamIdle},
		{id: "missing", wantErr: true},
	}
	for _, tt := range tests {
		got, err := c.StreamStatus(ctx, tt.id)
		if (err != nil) != tt.wantErr {
			t.Fatalf("StreamStatus(%s) error = %v", tt.id, err)
		}
		if got != tt.want {
			t.Fatalf("StreamStatus(%s) = %q, want %q", tt.id, got, tt.want)
		}
	}

	bad := NewMuxClient(srv.URL, "tid", "wrong", time.Second)
	if _, err := bad.CreateLiveStream(ctx); err == nil {
		t.Fatal("CreateLiveStream() with bad credentials succeeded")
	}
}
