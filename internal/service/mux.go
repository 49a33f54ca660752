package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/ppv-access/internal/model"
)

// MuxClient talks to the Mux live streaming API.
type MuxClient struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	http        *http.Client
}

// NewMuxClient returns a client for the API at baseURL authenticated with an
// access token pair.
func NewMuxClient(baseURL, tokenID, tokenSecret string, timeout time.Duration) *MuxClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MuxClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		tokenID:     tokenID,
		tokenSecret: tokenSecret,
		http:        &http.Client{Timeout: timeout},
	}
}

type muxLiveStream struct {
	ID          string `json:"id"`
	StreamKey   string `json:"stream_key"`
	Status      string `json:"status"`
	PlaybackIDs []struct {
		ID     string `json:"id"`
		Policy string `json:"policy"`
	} `json:"playback_ids"`
}

func (c *MuxClient) do(ctx context.Context, method, path string, in any) (*muxLiveStream, error) {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("mux %s %s: status %d", method, path, res.StatusCode)
	}
	var out struct {
		Data muxLiveStream `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("mux decode: %w", err)
	}
	return &out.Data, nil
}

// CreateLiveStream provisions a live stream with a public playback id.
func (c *MuxClient) CreateLiveStream(ctx context.Context) (LiveStream, error) {
	in := map[string]any{
		"playback_policy":    []string{"public"},
		"new_asset_settings": map[string]any{"playback_policy": []string{"public"}},
	}
	ls, err := c.do(ctx, http.MethodPost, "/video/v1/live-streams", in)
	if err != nil {
		return LiveStream{}, err
	}
	if len(ls.PlaybackIDs) == 0 {
		return LiveStream{}, errors.New("mux: live stream created without playback id")
	}
	return LiveStream{StreamID: ls.ID, StreamKey: ls.StreamKey, PlaybackID: ls.PlaybackIDs[0].ID}, nil
}

// StreamStatus returns the feed status as a stream status value: "live"
// while the platform reports the stream active, "idle" otherwise.
func (c *MuxClient) StreamStatus(ctx context.Context, platformStreamID string) (string, error) {
	ls, err := c.do(ctx, http.MethodGet, "/video/v1/live-streams/"+url.PathEscape(platformStreamID), nil)
	if err != nil {
		return "", err
	}
	if ls.Status == "active" {
		return model.StreamLive, nil
	}
	return model.StreamIdle, nil
}
