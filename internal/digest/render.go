// Package digest renders a recipient's item list into the HTML template.
//
// Substitution is literal: tokens are replaced verbatim, with no escaping
// and no template language. A token missing from the template is simply
// not substituted.
package digest

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ricirt/newsdigest/internal/domain"
)

// Item line tokens.
const (
	TokenURL    = "{PLACE:URL}"
	TokenTitle  = "{PLACE:TITLE}"
	TokenAuthor = "{PLACE:BY}"
	TokenScore  = "{PLACE:SCORE}"
)

// Template tokens.
const (
	TokenItems          = "{PLACE:ELEMENT}"
	TokenRecipient      = "{PLACE:RECIPIENT}"
	TokenUnsubscribeURL = "{PLACE:UNSUBSCRIBE_URL}"
)

// ItemLine is the fragment rendered once per item.
const ItemLine = `<li><a href="` + TokenURL + `">` + TokenTitle + `</a><br>&emsp;by ` +
	TokenAuthor + ` | ` + TokenScore + ` points</li>`

// Pair is one token and the value that replaces it.
type Pair struct {
	Token string
	Value string
}

// Substitute replaces every occurrence of each pair's token in s.
// All pairs are applied in a single pass, so a value that happens to
// contain another token is left as is.
func Substitute(s string, pairs ...Pair) string {
	if len(pairs) == 0 {
		return s
	}
	oldnew := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		oldnew = append(oldnew, p.Token, p.Value)
	}
	return strings.NewReplacer(oldnew...).Replace(s)
}

// RenderLine renders one item into ItemLine.
func RenderLine(item domain.Item) string {
	return Substitute(ItemLine,
		Pair{TokenURL, item.URL},
		Pair{TokenTitle, item.Title},
		Pair{TokenAuthor, item.Author},
		Pair{TokenScore, strconv.Itoa(item.Score)},
	)
}

// Render produces the HTML body for one recipient. Items keep their input
// order and are joined with newlines.
func Render(items []domain.Item, recipientEmail, template, unsubscribeURL string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = RenderLine(it)
	}

	return Substitute(template,
		Pair{TokenRecipient, recipientEmail},
		Pair{TokenItems, strings.Join(lines, "\n")},
		Pair{TokenUnsubscribeURL, unsubscribeURL},
	)
}

// Slice returns the first quota items, or all of them when fewer are
// available.
func Slice(items []domain.Item, quota int) []domain.Item {
	n := min(max(quota, 0), len(items))
	return items[:n]
}

// LoadTemplate reads the digest template from path.
func LoadTemplate(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTemplate, err)
	}
	return string(raw), nil
}
