package catalog

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// FeedConfig configures the feed catalog.
type FeedConfig struct {
	Feeds           []string
	RefreshInterval time.Duration
	Timeout         time.Duration
}

// Feed exposes podcast episodes as tracks. Track ids are stable hashes of
// the feed url and episode guid.
type Feed struct {
	log    *zap.Logger
	config FeedConfig
	http   *http.Client

	mu        sync.Mutex
	tracks    map[string]core.Track
	fetchedAt map[string]time.Time
}

// NewFeed validates cfg and returns a feed catalog.
func NewFeed(log *zap.Logger, cfg FeedConfig) (*Feed, error) {
	if len(cfg.Feeds) == 0 {
		return nil, errors.New("feeds required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Feed{
		log:       log,
		config:    cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		tracks:    make(map[string]core.Track),
		fetchedAt: make(map[string]time.Time),
	}, nil
}

// GetTrack implements ports.Catalog. Stale feeds are refetched before the
// lookup; a feed that fails to load is skipped.
func (f *Feed) GetTrack(ctx context.Context, id string) (core.Track, error) {
	f.mu.Lock()
	track, ok := f.tracks[id]
	f.mu.Unlock()
	if ok {
		return track, nil
	}

	for _, feedURL := range f.config.Feeds {
		if !f.isStale(feedURL) {
			continue
		}
		if err := f.refresh(ctx, feedURL); err != nil {
			f.log.Warn("feed refresh failed", zap.String("feed", feedURL), zap.Error(err))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if track, ok := f.tracks[id]; ok {
		return track, nil
	}
	return core.Track{}, core.ErrTrackNotFound
}

func (f *Feed) isStale(feedURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	fetched, ok := f.fetchedAt[feedURL]
	return !ok || time.Since(fetched) > f.config.RefreshInterval
}

func (f *Feed) refresh(ctx context.Context, feedURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "tandem/1.0")

	resp, err := f.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("feed fetch failed: %s", resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return err
	}

	feedID := hashID("feed", feedURL)
	author := feedAuthor(feed)
	found := make(map[string]core.Track, len(feed.Items))
	for _, item := range feed.Items {
		track, ok := episodeTrack(feedID, item, author)
		if !ok {
			continue
		}
		found[track.ID] = track
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, track := range found {
		f.tracks[id] = track
	}
	f.fetchedAt[feedURL] = time.Now()
	f.log.Debug("feed loaded", zap.String("feed", feedURL), zap.Int("episodes", len(found)))
	return nil
}

func episodeTrack(feedID string, item *gofeed.Item, fallbackAuthor string) (core.Track, bool) {
	if item == nil {
		return core.Track{}, false
	}
	audioURL := pickEnclosure(item)
	if audioURL == "" {
		return core.Track{}, false
	}
	key := strings.TrimSpace(item.GUID)
	if key == "" {
		key = audioURL
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = key
	}
	artist := fallbackAuthor
	if item.Author != nil && item.Author.Name != "" {
		artist = strings.TrimSpace(item.Author.Name)
	} else if item.ITunesExt != nil && item.ITunesExt.Author != "" {
		artist = strings.TrimSpace(item.ITunesExt.Author)
	}

	return core.Track{
		ID:              hashID("episode", feedID+":"+key),
		Title:           title,
		Artist:          artist,
		DurationSeconds: parseDurationSeconds(item),
		StreamURL:       audioURL,
	}, true
}

func pickEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

func feedAuthor(feed *gofeed.Feed) string {
	if feed.Author != nil && feed.Author.Name != "" {
		return strings.TrimSpace(feed.Author.Name)
	}
	if feed.ITunesExt != nil && feed.ITunesExt.Author != "" {
		return strings.TrimSpace(feed.ITunesExt.Author)
	}
	return strings.TrimSpace(feed.Title)
}

// parseDurationSeconds reads itunes:duration as seconds or [hh:]mm:ss.
func parseDurationSeconds(item *gofeed.Item) float64 {
	if item.ITunesExt == nil {
		return 0
	}
	raw := strings.TrimSpace(item.ITunesExt.Duration)
	if raw == "" {
		return 0
	}
	total := 0
	for _, part := range strings.Split(raw, ":") {
		n := 0
		if _, err := fmt.Sscanf(part, "%d", &n); err != nil {
			return 0
		}
		total = total*60 + n
	}
	return float64(total)
}

func hashID(prefix string, value string) string {
	sum := sha1.Sum([]byte(value))
	return prefix + "-" + hex.EncodeToString(sum[:8])
}
