// Package ledger stores direct-message history, per-recipient unread
// counters, and the call-history log.
//
// All state is keyed by display name, not connection id, so it survives
// reconnects. Like the registry, the ledger relies on the hub's run-to-
// completion discipline and is not safe for concurrent use.
package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind distinguishes plain text messages from file-attachment references.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Message is one direct message. The struct doubles as the outbound
// `chatMessage` payload.
type Message struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Type      Kind      `json:"type"`
	File      string    `json:"file,omitempty"`
}

// CallRecord is one archived call attempt. From/To are display names; a
// rejection is recorded from the callee's side.
type CallRecord struct {
	ID              string     `json:"id"`
	From            string     `json:"from"`
	To              string     `json:"to"`
	StartedAt       time.Time  `json:"startedAt"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	Answered        bool       `json:"answered"`
	Rejected        bool       `json:"rejected"`
	DurationSeconds int64      `json:"durationSeconds,omitempty"`
}

// PairKey canonicalizes an unordered pair of names: the same key comes out
// regardless of which party is the sender.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}

type Ledger struct {
	messages map[string][]Message
	unread   map[string]map[string]int
	calls    []CallRecord

	now func() time.Time
}

func New() *Ledger {
	return &Ledger{
		messages: make(map[string][]Message),
		unread:   make(map[string]map[string]int),
		now:      time.Now,
	}
}

// Append records a direct message from -> to and bumps to's unread counter
// for from.
func (l *Ledger) Append(from, to, text string, kind Kind, file string) Message {
	if kind == "" {
		kind = KindText
	}
	msg := Message{
		From:      from,
		Text:      text,
		Timestamp: l.now(),
		Type:      kind,
		File:      file,
	}
	key := PairKey(from, to)
	l.messages[key] = append(l.messages[key], msg)

	counts := l.unread[to]
	if counts == nil {
		counts = make(map[string]int)
		l.unread[to] = counts
	}
	counts[from]++
	return msg
}

// History returns the conversation between two users in insertion order.
// Unknown pairs yield an empty slice, never an error.
func (l *Ledger) History(a, b string) []Message {
	entries := l.messages[PairKey(a, b)]
	out := make([]Message, len(entries))
	copy(out, entries)
	return out
}

// ClearUnread zeroes recipient's unread counter for sender. Called when the
// recipient requests history with that sender.
func (l *Ledger) ClearUnread(recipient, sender string) {
	if counts, ok := l.unread[recipient]; ok {
		delete(counts, sender)
	}
}

// UnreadCounts returns user's unread counters as (sender, count) pairs,
// sorted by sender for deterministic output.
func (l *Ledger) UnreadCounts(user string) [][2]any {
	counts := l.unread[user]
	senders := make([]string, 0, len(counts))
	for s, n := range counts {
		if n > 0 {
			senders = append(senders, s)
		}
	}
	sort.Strings(senders)

	out := make([][2]any, 0, len(senders))
	for _, s := range senders {
		out = append(out, [2]any{s, counts[s]})
	}
	return out
}

// RecordOffer archives a new unanswered call attempt.
func (l *Ledger) RecordOffer(caller, callee string) CallRecord {
	rec := CallRecord{
		ID:        ulid.Make().String(),
		From:      caller,
		To:        callee,
		StartedAt: l.now(),
	}
	l.calls = append(l.calls, rec)
	return rec
}

// MarkAnswered flips the most recent unanswered record for (caller, callee)
// to answered. Last-match-wins when multiple unanswered offers exist.
func (l *Ledger) MarkAnswered(caller, callee string) (CallRecord, bool) {
	for i := len(l.calls) - 1; i >= 0; i-- {
		rec := &l.calls[i]
		if rec.From == caller && rec.To == callee && !rec.Answered && !rec.Rejected {
			now := l.now()
			rec.Answered = true
			rec.AnsweredAt = &now
			return *rec, true
		}
	}
	return CallRecord{}, false
}

// RecordRejected archives a rejection, attributed from the callee to the
// caller.
func (l *Ledger) RecordRejected(callee, caller string) CallRecord {
	rec := CallRecord{
		ID:        ulid.Make().String(),
		From:      callee,
		To:        caller,
		StartedAt: l.now(),
		Rejected:  true,
	}
	l.calls = append(l.calls, rec)
	return rec
}

// MarkEnded closes the most recent answered, still-open record between the
// two users (in either direction) and derives the call duration.
func (l *Ledger) MarkEnded(a, b string) (CallRecord, bool) {
	for i := len(l.calls) - 1; i >= 0; i-- {
		rec := &l.calls[i]
		paired := (rec.From == a && rec.To == b) || (rec.From == b && rec.To == a)
		if !paired || !rec.Answered || rec.EndedAt != nil {
			continue
		}
		now := l.now()
		rec.EndedAt = &now
		if rec.AnsweredAt != nil {
			rec.DurationSeconds = int64(now.Sub(*rec.AnsweredAt) / time.Second)
		}
		return *rec, true
	}
	return CallRecord{}, false
}

// Calls returns a copy of the call-history log.
func (l *Ledger) Calls() []CallRecord {
	out := make([]CallRecord, len(l.calls))
	copy(out, l.calls)
	return out
}

// Messages returns a copy of the full direct-message log for the snapshot.
func (l *Ledger) Messages() map[string][]Message {
	out := make(map[string][]Message, len(l.messages))
	for k, v := range l.messages {
		entries := make([]Message, len(v))
		copy(entries, v)
		out[k] = entries
	}
	return out
}

// Unread returns a copy of every unread counter for the snapshot.
func (l *Ledger) Unread() map[string]map[string]int {
	out := make(map[string]map[string]int, len(l.unread))
	for user, counts := range l.unread {
		cp := make(map[string]int, len(counts))
		for s, n := range counts {
			cp[s] = n
		}
		out[user] = cp
	}
	return out
}

// Seed restores persisted state. Malformed keys (not containing a pair
// separator) are dropped rather than failing the load.
func (l *Ledger) Seed(messages map[string][]Message, unread map[string]map[string]int, calls []CallRecord) {
	for key, entries := range messages {
		if !strings.Contains(key, "_") || len(entries) == 0 {
			continue
		}
		cp := make([]Message, len(entries))
		copy(cp, entries)
		l.messages[key] = cp
	}
	for user, counts := range unread {
		if user == "" {
			continue
		}
		cp := make(map[string]int, len(counts))
		for s, n := range counts {
			if n > 0 {
				cp[s] = n
			}
		}
		if len(cp) > 0 {
			l.unread[user] = cp
		}
	}
	l.calls = append(l.calls, calls...)
}
