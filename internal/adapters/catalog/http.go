package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mikey-austin/tandem/internal/core"
)

// HTTPConfig configures the HTTP catalog client.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTP resolves tracks from GET {base}/tracks/{id}.
type HTTP struct {
	config HTTPConfig
	http   *http.Client
}

type httpTrack struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	Duration        float64 `json:"duration"`
	DurationSeconds float64 `json:"duration_seconds"`
	StreamURL       string  `json:"stream_url"`
}

// NewHTTP validates cfg and returns a client.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base_url required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("catalog base_url: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTP{config: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

// GetTrack implements ports.Catalog.
func (c *HTTP) GetTrack(ctx context.Context, id string) (core.Track, error) {
	if strings.TrimSpace(id) == "" {
		return core.Track{}, errors.New("track id required")
	}
	var out httpTrack
	if err := c.doJSON(ctx, "/tracks/"+url.PathEscape(id), &out); err != nil {
		return core.Track{}, err
	}
	track := core.Track{
		ID:              out.ID,
		Title:           out.Title,
		Artist:          out.Artist,
		DurationSeconds: out.DurationSeconds,
		StreamURL:       out.StreamURL,
	}
	if track.ID == "" {
		track.ID = id
	}
	if track.DurationSeconds == 0 {
		track.DurationSeconds = out.Duration
	}
	if track.StreamURL == "" {
		track.StreamURL = c.streamURL(track.ID)
	}
	return track, nil
}

func (c *HTTP) doJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.ErrTrackNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("catalog error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTP) streamURL(id string) string {
	u, _ := url.Parse(c.config.BaseURL)
	u.Path = path.Join(u.Path, "/tracks/", id, "/stream")
	return u.String()
}
