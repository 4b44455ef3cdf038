// ABOUTME: Shared wiring and answer parsing for the concrete conversations
// ABOUTME: Flows validate input themselves and route rejections to re-ask states

package flows

import (
	"fmt"
	"strings"
	"time"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/store"
)

// Publisher is what flows need from the signal bus.
type Publisher interface {
	Publish(sig bus.Signal)
}

// Refresher is what the force-update flow needs from the throttle.
type Refresher interface {
	Allow(key string) bool
}

// Deps carries the collaborators every flow shares.
type Deps struct {
	Store store.Store
	Bus   Publisher
	// Now is swappable for tests.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// dateFormats accepted from operators, most specific first.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseStart parses a start time answer. "now" starts the event immediately.
func parseStart(answer string, now time.Time) (time.Time, error) {
	return parseDate(answer, now, false)
}

// parseEnd parses an end time answer. "tbd" marks the event open-ended.
func parseEnd(answer string, now time.Time) (time.Time, error) {
	return parseDate(answer, now, true)
}

func parseDate(answer string, now time.Time, allowOpen bool) (time.Time, error) {
	s := strings.TrimSpace(strings.ToLower(answer))
	switch s {
	case "now":
		return now, nil
	case "tbd", "open":
		if allowOpen {
			return store.FarFuture, nil
		}
		return time.Time{}, fmt.Errorf("only the end date can be %q", s)
	}

	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, strings.TrimSpace(answer)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", answer)
}

// parseTracker parses a tracking answer: a category keyword followed by an
// optional sub-selection, e.g. "skills magic" or "bosses zulrah vorkath".
func parseTracker(answer string) (store.Tracker, error) {
	fields := strings.Fields(strings.ToLower(answer))
	if len(fields) == 0 {
		return store.Tracker{}, fmt.Errorf("tracking type is required")
	}
	cat, ok := store.ParseCategory(fields[0])
	if !ok {
		return store.Tracker{}, fmt.Errorf("unknown tracking type %q", fields[0])
	}
	return store.Tracker{Category: cat, Selection: fields[1:]}, nil
}

// parseYesNo interprets a confirmation answer. ok is false when the answer
// is neither.
func parseYesNo(answer string) (yes, ok bool) {
	switch strings.TrimSpace(strings.ToLower(answer)) {
	case "yes", "y":
		return true, true
	case "no", "n":
		return false, true
	}
	return false, false
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

// trackerAnswer renders a tracker back the way operators type it.
func trackerAnswer(t store.Tracker) string {
	if len(t.Selection) == 0 {
		return fmt.Sprintf("`%s`", t.Category)
	}
	return fmt.Sprintf("`%s %s`", t.Category, strings.Join(t.Selection, " "))
}

func formatTime(t time.Time) string {
	if t.Equal(store.FarFuture) {
		return "tbd"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
