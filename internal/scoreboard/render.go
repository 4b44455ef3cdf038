// ABOUTME: Scoreboard rendering: per-category ranking of teams and players
// ABOUTME: Produces markdown with a timestamp footer, or an error footer

package scoreboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/runeclock/eventbot/internal/store"
)

// Options controls one rendering pass.
type Options struct {
	// Now anchors the derived status and the footer timestamp.
	Now time.Time
	// ErrorFooter replaces the timestamp footer when a refresh pass failed
	// and the scoreboard shows last-known-good numbers.
	ErrorFooter string
}

type row struct {
	name string
	team string
	gain int64
}

// Render produces the scoreboard markdown for an event.
func Render(e *store.Event, opts Options) string {
	var b strings.Builder

	status := e.StatusAt(opts.Now)
	fmt.Fprintf(&b, "## 🏆 %s — %s\n", e.Name, status)
	fmt.Fprintf(&b, "**Window:** %s\n", window(e))
	fmt.Fprintf(&b, "**Tracking:** %s\n", trackerLabel(e.Tracker))

	switch {
	case status == store.StatusScheduled:
		b.WriteString("\nThe event has not started yet.\n")
		writeRoster(&b, e)
	case e.Custom() || e.Tracker.Category == store.CategoryNone:
		writeRoster(&b, e)
	default:
		writeStandings(&b, e)
	}

	b.WriteString("\n")
	if opts.ErrorFooter != "" {
		fmt.Fprintf(&b, "⚠️ %s\n", opts.ErrorFooter)
	} else {
		fmt.Fprintf(&b, "_Last updated: %s_\n", opts.Now.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}

// RenderDeleted produces the tombstone shown when an event is deleted.
func RenderDeleted(e *store.Event) string {
	return fmt.Sprintf("## 🏆 %s\n\nThis event has been deleted.\n", e.Name)
}

func window(e *store.Event) string {
	start := e.StartsAt.UTC().Format("2006-01-02 15:04 UTC")
	if e.OpenEnded() {
		return start + " → no scheduled end"
	}
	return start + " → " + e.EndsAt.UTC().Format("2006-01-02 15:04 UTC")
}

func trackerLabel(t store.Tracker) string {
	if len(t.Selection) == 0 {
		return string(t.Category)
	}
	return fmt.Sprintf("%s (%s)", t.Category, strings.Join(t.Selection, ", "))
}

func writeRoster(b *strings.Builder, e *store.Event) {
	if len(e.Teams) == 0 {
		b.WriteString("\nNobody has signed up yet.\n")
		return
	}
	b.WriteString("\n**Signed up**\n")
	for _, t := range e.Teams {
		for _, p := range t.Participants {
			names := make([]string, len(p.Accounts))
			for i, a := range p.Accounts {
				names[i] = a.Name
			}
			label := p.DisplayName
			if label == "" {
				label = p.UserID
			}
			fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(names, ", "))
		}
	}
}

func writeStandings(b *strings.Builder, e *store.Event) {
	players := playerRows(e)
	if len(players) == 0 {
		b.WriteString("\nNobody has signed up yet.\n")
		return
	}

	if len(e.Teams) > 1 {
		teams := teamRows(e)
		b.WriteString("\n**Team standings**\n")
		writeRanked(b, teams, false)
	}

	b.WriteString("\n**Player standings**\n")
	writeRanked(b, players, len(e.Teams) > 1)
}

func writeRanked(b *strings.Builder, rows []row, showTeam bool) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].gain > rows[j].gain })
	for i, r := range rows {
		if showTeam && r.team != "" {
			fmt.Fprintf(b, "%d. %s (%s) — %s\n", i+1, r.name, r.team, formatInt(r.gain))
		} else {
			fmt.Fprintf(b, "%d. %s — %s\n", i+1, r.name, formatInt(r.gain))
		}
	}
}

func playerRows(e *store.Event) []row {
	var rows []row
	for _, t := range e.Teams {
		for _, p := range t.Participants {
			for _, a := range p.Accounts {
				rows = append(rows, row{name: a.Name, team: t.Name, gain: Gain(a, e.Tracker)})
			}
		}
	}
	return rows
}

func teamRows(e *store.Event) []row {
	rows := make([]row, 0, len(e.Teams))
	for _, t := range e.Teams {
		var total int64
		for _, p := range t.Participants {
			for _, a := range p.Accounts {
				total += Gain(a, e.Tracker)
			}
		}
		rows = append(rows, row{name: t.Name, gain: total})
	}
	return rows
}

// Gain computes an account's score for the event's tracking category as the
// difference between its ending and starting snapshots. Accounts missing
// either snapshot score zero.
func Gain(a store.Account, t store.Tracker) int64 {
	if a.Starting == nil || a.Ending == nil {
		return 0
	}

	switch t.Category {
	case store.CategorySkills:
		if len(t.Selection) == 0 {
			return skillGain(a, "overall")
		}
		var total int64
		for _, s := range t.Selection {
			total += skillGain(a, s)
		}
		return total

	case store.CategoryBosses:
		if len(t.Selection) == 0 {
			var total int64
			for name := range a.Ending.Activities {
				if isBoss(name) {
					total += activityGain(a, name)
				}
			}
			return total
		}
		var total int64
		for _, s := range t.Selection {
			total += activityGain(a, s)
		}
		return total

	case store.CategoryClues:
		if len(t.Selection) == 0 {
			return activityGain(a, "clue_all")
		}
		var total int64
		for _, s := range t.Selection {
			total += activityGain(a, s)
		}
		return total
	}

	return 0
}

func skillGain(a store.Account, skill string) int64 {
	g := a.Ending.Skills[skill].XP - a.Starting.Skills[skill].XP
	if g < 0 {
		return 0
	}
	return g
}

func activityGain(a store.Account, name string) int64 {
	g := a.Ending.Activities[name].Score - a.Starting.Activities[name].Score
	if g < 0 {
		return 0
	}
	return g
}

// non-boss activity prefixes on the hiscores activity list
var nonBossPrefixes = []string{
	"clue_", "league_", "deadman_", "bounty_", "lms_", "pvp_", "soul_", "rifts_",
}

func isBoss(name string) bool {
	for _, p := range nonBossPrefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	return true
}

// formatInt renders n with thousands separators.
func formatInt(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		return "-" + out
	}
	return out
}
