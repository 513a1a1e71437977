package mailbox

import (
	"errors"
	"strconv"
	"strings"

	"github.com/avivsinai/signalbox/internal/fsq"
)

// Sentinel errors.
var (
	// ErrCollision means every candidate stem for an outgoing item was taken.
	ErrCollision = errors.New("mailbox: timestamp collision")

	// ErrInvalidClient means the client id cannot be used as a directory name.
	ErrInvalidClient = errors.New("mailbox: invalid client id")
)

// Incoming is a received message taken out of the mailbox.
type Incoming struct {
	Timestamp string `json:"timestamp"`
	Body      string `json:"body"`
}

// Outcome classifies what drain did with one directory entry.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeMalformed Outcome = "malformed"
)

// Reasons attached to deferred entries.
const (
	ReasonClaimed        = "claimed"
	ReasonPrefixMismatch = "prefix_mismatch"
	ReasonGone           = "gone"
)

// EntryResult records the fate of one incoming entry during a drain.
type EntryResult struct {
	Name      string    `json:"name"`
	Timestamp string    `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Item      *Incoming `json:"item,omitempty"`
}

// DrainReport is the per-entry result of a drain, in result order.
type DrainReport struct {
	Results []EntryResult `json:"results"`
}

// Accepted returns the items consumed by the drain.
func (r DrainReport) Accepted() []Incoming {
	out := make([]Incoming, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Outcome == OutcomeAccepted && res.Item != nil {
			out = append(out, *res.Item)
		}
	}
	return out
}

// Count returns how many entries ended with outcome.
func (r DrainReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Outgoing is an item sitting in to-send/ waiting for the bridge.
type Outgoing struct {
	Timestamp string   `json:"timestamp"`
	Kind      fsq.Kind `json:"kind"`
	Path      string   `json:"path"`
	Payload   string   `json:"payload"`
	// Ready is false while the item's .lock marker exists.
	Ready           bool   `json:"ready"`
	QuotedTimestamp string `json:"quoted_timestamp,omitempty"`
	ReplyBody       string `json:"reply_body,omitempty"`
}

// FormatReply builds the two-part reply payload "<quoted>\n<reply>".
func FormatReply(reply, quotedTimestamp string) string {
	return quotedTimestamp + "\n" + reply
}

// ParseReply splits a reply payload into the quoted timestamp and the reply
// text. A payload without a newline is all timestamp and no text.
func ParseReply(payload string) (quotedTimestamp, reply string) {
	quotedTimestamp, reply, _ = strings.Cut(payload, "\n")
	return quotedTimestamp, reply
}

// FirstLine returns the text before the first newline, or the whole body.
func FirstLine(body string) string {
	line, _, _ := strings.Cut(body, "\n")
	return line
}

// MatchesPrefix reports whether body is addressed to prefix: its first line,
// trimmed of surrounding whitespace, equals prefix. A body without a newline
// carries no identifier line and matches any prefix, as does an empty prefix.
func MatchesPrefix(body, prefix string) bool {
	if prefix == "" {
		return true
	}
	line, _, found := strings.Cut(body, "\n")
	if !found {
		return true
	}
	return strings.TrimSpace(line) == prefix
}

// StripPrefixLine removes the first line of body when it equals prefix.
// Other bodies, including those without a newline, are returned unchanged.
func StripPrefixLine(body, prefix string) string {
	if prefix == "" {
		return body
	}
	line, rest, found := strings.Cut(body, "\n")
	if !found || strings.TrimSpace(line) != prefix {
		return body
	}
	return rest
}

// lessStem orders timestamp stems numerically when both parse as integers and
// lexically otherwise, so "999" sorts before "1000".
func lessStem(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		if ai != bi {
			return ai < bi
		}
		return a < b
	}
	if (aerr == nil) != (berr == nil) {
		return aerr == nil
	}
	return a < b
}
