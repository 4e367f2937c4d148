package domain

import "strconv"

// Item is one ranked content entry as returned by the item endpoint.
type Item struct {
	ID     uint64 `json:"id"`
	Author string `json:"by"`
	URL    string `json:"url"`
	Score  int    `json:"score"`
	Title  string `json:"title"`
}

// IsZero reports whether every field holds its zero value.
// Such an item carries nothing to show and is never rendered.
func (i Item) IsZero() bool {
	return i == Item{}
}

// WithDefaultURL returns a copy of the item whose URL falls back to the
// discussion page (pageURL + id) when the upstream record had none.
func (i Item) WithDefaultURL(pageURL string) Item {
	if i.URL == "" {
		i.URL = pageURL + strconv.FormatUint(i.ID, 10)
	}
	return i
}
