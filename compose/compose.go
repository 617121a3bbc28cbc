// Package compose renders feed entries into transport-ready HTML messages,
// keeping every rendering inside the destination's length limit.
package compose

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/scipunch/feedgram/feed"
)

// DefaultMaxLength is the Telegram message length limit.
const DefaultMaxLength = 4096

const (
	// safetyMargin covers formatting overhead (tags, separators) that is
	// not accounted for when budgeting the summary.
	safetyMargin = 50
	ellipsis     = "..."
	noLinkFooter = "No link available."
)

// Message is a rendered message ready for the send transport.
type Message struct {
	Text         string
	WithinBudget bool
}

// Composer renders entries with a fixed maximum message length.
type Composer struct {
	MaxLength int
}

// New returns a composer with the given length limit, defaulting to
// DefaultMaxLength when maxLength is not positive.
func New(maxLength int) Composer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return Composer{MaxLength: maxLength}
}

// Compose renders the full form: bold title, the summary truncated to the
// remaining budget, and a "Read more" link. The summary may carry the feed's
// own markup; it is passed through untouched since the destination renderer
// is responsible for it.
func (c Composer) Compose(e feed.Entry) Message {
	titleBlock := titleBlock(e)
	linkBlock := linkBlock(e)

	text := titleBlock
	if e.Summary != "" {
		budget := c.MaxLength - len(titleBlock) - len(linkBlock) - safetyMargin
		text += truncate(e.Summary, budget) + "\n\n"
	}
	text += linkBlock

	return Message{Text: text, WithinBudget: len(text) <= c.MaxLength}
}

// ComposeShort renders the fallback form: title and link only. It is used
// when the transport rejects the full form as over-length and must fit the
// budget on its own, so an oversized title is itself truncated. The cut is
// applied to the escaped title, since escaping can expand it well past the
// raw length.
func (c Composer) ComposeShort(e feed.Entry) Message {
	link := linkBlock(e)
	title := html.EscapeString(e.Title)
	text := renderTitle(title) + link
	if len(text) > c.MaxLength {
		title = truncateEscaped(title, c.MaxLength-(len(text)-len(title))-safetyMargin)
		text = renderTitle(title) + link
	}
	return Message{Text: text, WithinBudget: len(text) <= c.MaxLength}
}

func titleBlock(e feed.Entry) string {
	return renderTitle(html.EscapeString(e.Title))
}

func renderTitle(escaped string) string {
	return fmt.Sprintf("<b>%s</b>\n\n", escaped)
}

func linkBlock(e feed.Entry) string {
	if e.Link == "" {
		return noLinkFooter
	}
	return fmt.Sprintf(`<a href="%s">Read more</a>`, html.EscapeString(e.Link))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence,
// appending an ellipsis when anything was cut.
func truncate(s string, n int) string {
	if n <= 0 {
		return ellipsis
	}
	if len(s) <= n {
		return s
	}
	return trimPartialRune(s[:n]) + ellipsis
}

// truncateEscaped cuts an HTML-escaped string to at most n bytes, also
// making sure the cut does not land inside an entity like "&amp;".
func truncateEscaped(s string, n int) string {
	if n <= 0 {
		return ellipsis
	}
	if len(s) <= n {
		return s
	}
	cut := trimPartialRune(s[:n])
	if i := strings.LastIndexByte(cut, '&'); i >= 0 && !strings.Contains(cut[i:], ";") {
		cut = cut[:i]
	}
	return cut + ellipsis
}

// trimPartialRune strips trailing bytes that do not form a complete rune.
// Only the tail is inspected, so an invalid byte elsewhere in the string
// does not eat the whole prefix.
func trimPartialRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size != 1 {
			return s
		}
		s = s[:len(s)-1]
	}
	return s
}
