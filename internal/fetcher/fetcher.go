// Package fetcher retrieves the ranked item list from the ranking API.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ricirt/newsdigest/internal/domain"
)

// Config describes the ranking API endpoints. It is passed by value so
// tests can point the fetcher at an httptest server.
type Config struct {
	RankingURL  string // GET -> JSON array of ids, best first
	ItemBaseURL string // GET ItemBaseURL + id + ".json" -> item object
	ItemPageURL string // fallback item URL prefix, id is appended
	Timeout     time.Duration
	Concurrency int // parallel item lookups; 1 means sequential
}

// Fetcher talks to the ranking API over HTTP.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	// onLookupFailed is called once per dropped item.
	onLookupFailed func()
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithLookupFailedHook registers a callback invoked for every item lookup
// that is dropped.
func WithLookupFailedHook(fn func()) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.onLookupFailed = fn
		}
	}
}

func New(cfg Config, logger *zap.Logger, opts ...Option) *Fetcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	f := &Fetcher{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         logger,
		onLookupFailed: func() {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns up to maxCount items in ranking order.
// Only a failure of the ranking request itself is returned as an error;
// individual item lookups that fail are logged and left out.
func (f *Fetcher) Fetch(ctx context.Context, maxCount int) ([]domain.Item, error) {
	ids, err := f.FetchRanking(ctx, maxCount)
	if err != nil {
		return nil, err
	}

	// Each lookup writes only its own slot, so ranking order survives the
	// fan-out without further synchronisation.
	slots := make([]*domain.Item, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			item, err := f.FetchItem(gctx, id)
			if err != nil {
				f.logger.Warn("dropping item", zap.Uint64("item_id", id), zap.Error(err))
				f.onLookupFailed()
				return nil
			}
			slots[i] = &item
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()

	items := make([]domain.Item, 0, len(slots))
	for _, it := range slots {
		if it == nil || it.IsZero() {
			continue
		}
		items = append(items, *it)
	}
	return items, nil
}

// FetchRanking returns the first maxCount ids of the ranking list.
func (f *Fetcher) FetchRanking(ctx context.Context, maxCount int) ([]uint64, error) {
	var ids []uint64
	if err := f.getJSON(ctx, f.cfg.RankingURL, &ids); err != nil {
		return nil, fmt.Errorf("fetch ranking: %w", err)
	}
	if maxCount < 0 {
		maxCount = 0
	}
	if len(ids) > maxCount {
		ids = ids[:maxCount]
	}
	return ids, nil
}

// FetchItem looks up one item. An item without a direct URL gets the
// discussion page URL instead; every other field must be present.
func (f *Fetcher) FetchItem(ctx context.Context, id uint64) (domain.Item, error) {
	url := f.cfg.ItemBaseURL + strconv.FormatUint(id, 10) + ".json"

	// Deleted or unknown items come back as JSON null.
	var rec *itemRecord
	if err := f.getJSON(ctx, url, &rec); err != nil {
		return domain.Item{}, fmt.Errorf("fetch item %d: %w", id, err)
	}
	if rec == nil {
		return domain.Item{}, fmt.Errorf("fetch item %d: %w", id, domain.ErrItemNotFound)
	}
	item, err := rec.toItem()
	if err != nil {
		return domain.Item{}, fmt.Errorf("fetch item %d: %w", id, err)
	}
	return item.WithDefaultURL(f.cfg.ItemPageURL), nil
}

// itemRecord is the wire form of an item. Pointers tell a missing field
// apart from a zero one: dead and deleted items carry only id and flags.
type itemRecord struct {
	ID    *uint64 `json:"id"`
	By    *string `json:"by"`
	URL   *string `json:"url"`
	Score *int    `json:"score"`
	Title *string `json:"title"`
}

func (r *itemRecord) toItem() (domain.Item, error) {
	var missing []string
	if r.ID == nil {
		missing = append(missing, "id")
	}
	if r.By == nil {
		missing = append(missing, "by")
	}
	if r.Score == nil {
		missing = append(missing, "score")
	}
	if r.Title == nil {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return domain.Item{}, fmt.Errorf("%w: %s", domain.ErrIncompleteItem, strings.Join(missing, ", "))
	}

	item := domain.Item{ID: *r.ID, Author: *r.By, Score: *r.Score, Title: *r.Title}
	if r.URL != nil {
		item.URL = *r.URL
	}
	return item, nil
}

func (f *Fetcher) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
