package fetcher_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/newsdigest/internal/domain"
	"github.com/ricirt/newsdigest/internal/fetcher"
)

const pageURL = "https://news.example.com/item?id="

// fakeRankingAPI serves a ranking list and a set of raw item bodies keyed by id.
// An id without a body answers 500.
type fakeRankingAPI struct {
	ranking     string
	items       map[string]string
	itemHits    atomic.Int32
	rankingHits atomic.Int32
}

func (api *fakeRankingAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/topstories.json":
		api.rankingHits.Add(1)
		fmt.Fprint(w, api.ranking)
	case strings.HasPrefix(r.URL.Path, "/item/"):
		api.itemHits.Add(1)
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/item/"), ".json")
		body, ok := api.items[id]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, body)
	default:
		http.NotFound(w, r)
	}
}

func itemJSON(t *testing.T, it map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(it)
	require.NoError(t, err)
	return string(raw)
}

func newFetcher(srv *httptest.Server, concurrency int, opts ...fetcher.Option) *fetcher.Fetcher {
	return fetcher.New(fetcher.Config{
		RankingURL:  srv.URL + "/topstories.json",
		ItemBaseURL: srv.URL + "/item/",
		ItemPageURL: pageURL,
		Timeout:     2 * time.Second,
		Concurrency: concurrency,
	}, zap.NewNop(), opts...)
}

func TestFetcher_Fetch_PreservesOrderAndDropsFailures(t *testing.T) {
	api := &fakeRankingAPI{
		ranking: `[5, 4, 3, 2, 1, 99, 7, 8, 98]`,
		items: map[string]string{
			"5": itemJSON(t, map[string]any{"id": 5, "by": "ann", "url": "https://a.example", "score": 12, "title": "five"}),
			"4": `{"id": 4, "by": "bob", "score": -2, "title": "ask hn: no url"}`,
			"3": `not json`,
			"2": `null`,
			// "1" missing -> 500
			"99": itemJSON(t, map[string]any{"id": 99, "by": "cy", "url": "https://c.example", "score": 0, "title": ""}),
			"7":  `{"id": 7, "deleted": true, "type": "story"}`,
			"8":  `{"id": 8, "by": "dee", "score": 3, "type": "story"}`,
		},
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			var dropped atomic.Int32
			f := newFetcher(srv, concurrency, fetcher.WithLookupFailedHook(func() { dropped.Add(1) }))

			items, err := f.Fetch(context.Background(), 8)
			require.NoError(t, err)
			require.Equal(t, []domain.Item{
				{ID: 5, Author: "ann", URL: "https://a.example", Score: 12, Title: "five"},
				{ID: 4, Author: "bob", URL: pageURL + "4", Score: -2, Title: "ask hn: no url"},
				{ID: 99, Author: "cy", URL: "https://c.example", Score: 0, Title: ""},
			}, items)
			require.EqualValues(t, 5, dropped.Load(), "invalid json, null, 500, deleted and untitled items are dropped")
		})
	}
}

func TestFetcher_FetchRanking_Truncates(t *testing.T) {
	api := &fakeRankingAPI{ranking: `[10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0]`}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ids, err := newFetcher(srv, 1).FetchRanking(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 9, 8}, ids)

	ids, err = newFetcher(srv, 1).FetchRanking(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, ids, 11)
}

func TestFetcher_Fetch_RequestsExactlyMaxItems(t *testing.T) {
	items := map[string]string{}
	for i := 1; i <= 20; i++ {
		items[fmt.Sprint(i)] = fmt.Sprintf(`{"id": %d, "by": "u", "url": "https://x/%d", "score": 1, "title": "t%d"}`, i, i, i)
	}
	api := &fakeRankingAPI{ranking: `[1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20]`, items: items}
	srv := httptest.NewServer(api)
	defer srv.Close()

	got, err := newFetcher(srv, 3).Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 10)
	require.EqualValues(t, 10, api.itemHits.Load())
	for i, it := range got {
		require.EqualValues(t, i+1, it.ID)
	}
}

func TestFetcher_Fetch_RankingFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"not": "a list"}`)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			items, err := newFetcher(srv, 2).Fetch(context.Background(), 10)
			require.Error(t, err)
			require.Empty(t, items)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		f := newFetcher(srv, 1)
		srv.Close()

		_, err := f.Fetch(context.Background(), 10)
		require.Error(t, err)
	})
}

func TestFetcher_Fetch_EmptyRanking(t *testing.T) {
	api := &fakeRankingAPI{ranking: `[]`}
	srv := httptest.NewServer(api)
	defer srv.Close()

	items, err := newFetcher(srv, 2).Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, items)
	require.Zero(t, api.itemHits.Load())
}

func TestFetcher_FetchItem_NullIsNotFound(t *testing.T) {
	api := &fakeRankingAPI{items: map[string]string{"7": "null"}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	_, err := newFetcher(srv, 1).FetchItem(context.Background(), 7)
	require.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestFetcher_FetchItem_RequiresAllFieldsButURL(t *testing.T) {
	api := &fakeRankingAPI{
		items: map[string]string{
			"1": `{"id": 1, "deleted": true, "type": "story"}`,
			"2": `{"id": 2, "by": "eve", "url": "https://e.example", "title": "no score"}`,
			"3": `{"id": 3, "by": "fay", "score": 0, "title": ""}`,
		},
	}
	srv := httptest.NewServer(api)
	defer srv.Close()
	f := newFetcher(srv, 1)

	_, err := f.FetchItem(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrIncompleteItem)
	require.ErrorContains(t, err, "by, score, title")

	_, err = f.FetchItem(context.Background(), 2)
	require.ErrorIs(t, err, domain.ErrIncompleteItem)

	item, err := f.FetchItem(context.Background(), 3)
	require.NoError(t, err, "present zero values are valid")
	require.Equal(t, domain.Item{ID: 3, Author: "fay", URL: pageURL + "3", Score: 0, Title: ""}, item)
}
