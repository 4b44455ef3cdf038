// ABOUTME: Event domain types: teams, participants, tracked accounts, guilds
// ABOUTME: Status is derived from the time window and is never stored

package store

import (
	"fmt"
	"time"
)

// FarFuture is the sentinel end time marking an open-ended event.
var FarFuture = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Category is the scoring rule family an event tracks.
type Category string

const (
	CategorySkills Category = "skills"
	CategoryBosses Category = "bosses"
	CategoryClues  Category = "clues"
	CategoryCustom Category = "custom"
	CategoryNone   Category = "none"
)

// ParseCategory maps a tracking keyword to a Category.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategorySkills, CategoryBosses, CategoryClues, CategoryCustom, CategoryNone:
		return Category(s), true
	}
	return "", false
}

// Status is the derived lifecycle state of an event.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusEnded     Status = "ended"
)

// Tracker describes what an event scores: a category plus an optional
// sub-selection (e.g. which skills count).
type Tracker struct {
	Category  Category `json:"category"`
	Selection []string `json:"selection,omitempty"`
}

// SkillStat is one skill row from a hiscores snapshot.
type SkillStat struct {
	Rank  int   `json:"rank"`
	Level int   `json:"level"`
	XP    int64 `json:"xp"`
}

// ActivityStat is one activity (boss, clue tier) row from a hiscores snapshot.
type ActivityStat struct {
	Rank  int   `json:"rank"`
	Score int64 `json:"score"`
}

// Snapshot is a point-in-time hiscores reading for one account.
type Snapshot struct {
	Skills     map[string]SkillStat    `json:"skills,omitempty"`
	Activities map[string]ActivityStat `json:"activities,omitempty"`
	TakenAt    time.Time               `json:"taken_at"`
}

// Account is a tracked game account. Starting is set once, on the first
// successful fetch, and never overwritten; Ending is replaced on every
// successful refresh.
type Account struct {
	Name     string    `json:"name"`
	Starting *Snapshot `json:"starting,omitempty"`
	Ending   *Snapshot `json:"ending,omitempty"`
}

// Participant is a chat user with their tracked accounts.
type Participant struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Accounts    []Account `json:"accounts"`
}

// Team is an ordered group of participants scored together.
type Team struct {
	Name         string        `json:"name"`
	Participants []Participant `json:"participants"`
}

// ScoreboardRef records the chunked scoreboard message set posted in a guild.
type ScoreboardRef struct {
	ChannelID  string   `json:"channel_id"`
	MessageIDs []string `json:"message_ids"`
}

// Guild is a chat workspace displaying an event. Exactly one guild per event
// is the creator; the rest are invited.
type Guild struct {
	GuildID    string         `json:"guild_id"`
	Scoreboard *ScoreboardRef `json:"scoreboard,omitempty"`
}

// Event is a scheduled, time-boxed competition.
// ID is empty until the event is first persisted.
type Event struct {
	ID            string    `json:"id,omitempty"`
	Name          string    `json:"name"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Tracker       Tracker   `json:"tracker"`
	Teams         []Team    `json:"teams"`
	CreatorGuild  Guild     `json:"creator_guild"`
	InvitedGuilds []Guild   `json:"invited_guilds,omitempty"`
	Global        bool      `json:"global"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusAt derives the event status at the given instant.
func (e *Event) StatusAt(now time.Time) Status {
	if now.Before(e.StartsAt) {
		return StatusScheduled
	}
	if now.Before(e.EndsAt) {
		return StatusRunning
	}
	return StatusEnded
}

// OpenEnded reports whether the event carries the far-future end sentinel.
func (e *Event) OpenEnded() bool {
	return e.EndsAt.Equal(FarFuture)
}

// Custom reports whether the event is custom-tracked (no hiscores fetches).
func (e *Event) Custom() bool {
	return e.Tracker.Category == CategoryCustom
}

// Guilds returns the creator guild followed by all invited guilds.
func (e *Event) Guilds() []Guild {
	out := make([]Guild, 0, 1+len(e.InvitedGuilds))
	out = append(out, e.CreatorGuild)
	out = append(out, e.InvitedGuilds...)
	return out
}

// HasAccount reports whether any participant already tracks the named account.
// Account membership is unique per event.
func (e *Event) HasAccount(name string) bool {
	for _, t := range e.Teams {
		for _, p := range t.Participants {
			for _, a := range p.Accounts {
				if a.Name == name {
					return true
				}
			}
		}
	}
	return false
}

// Accounts returns every tracked account across all teams, in order.
func (e *Event) Accounts() []Account {
	var out []Account
	for _, t := range e.Teams {
		for _, p := range t.Participants {
			out = append(out, p.Accounts...)
		}
	}
	return out
}

// Clone returns a deep copy. Refresh passes derive a new event from the
// persisted one instead of mutating it in place.
func (e *Event) Clone() *Event {
	c := *e
	c.Tracker.Selection = append([]string(nil), e.Tracker.Selection...)
	c.Teams = make([]Team, len(e.Teams))
	for i, t := range e.Teams {
		ct := t
		ct.Participants = make([]Participant, len(t.Participants))
		for j, p := range t.Participants {
			cp := p
			cp.Accounts = make([]Account, len(p.Accounts))
			for k, a := range p.Accounts {
				ca := a
				ca.Starting = a.Starting.clone()
				ca.Ending = a.Ending.clone()
				cp.Accounts[k] = ca
			}
			ct.Participants[j] = cp
		}
		c.Teams[i] = ct
	}
	c.CreatorGuild = e.CreatorGuild.clone()
	c.InvitedGuilds = make([]Guild, len(e.InvitedGuilds))
	for i, g := range e.InvitedGuilds {
		c.InvitedGuilds[i] = g.clone()
	}
	return &c
}

func (g Guild) clone() Guild {
	if g.Scoreboard != nil {
		ref := *g.Scoreboard
		ref.MessageIDs = append([]string(nil), g.Scoreboard.MessageIDs...)
		g.Scoreboard = &ref
	}
	return g
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := Snapshot{TakenAt: s.TakenAt}
	if s.Skills != nil {
		c.Skills = make(map[string]SkillStat, len(s.Skills))
		for k, v := range s.Skills {
			c.Skills[k] = v
		}
	}
	if s.Activities != nil {
		c.Activities = make(map[string]ActivityStat, len(s.Activities))
		for k, v := range s.Activities {
			c.Activities[k] = v
		}
	}
	return &c
}

// SetScoreboard records the scoreboard message set for the given guild,
// replacing any prior reference. Unknown guild ids are ignored.
func (e *Event) SetScoreboard(guildID string, ref *ScoreboardRef) {
	if e.CreatorGuild.GuildID == guildID {
		e.CreatorGuild.Scoreboard = ref
		return
	}
	for i := range e.InvitedGuilds {
		if e.InvitedGuilds[i].GuildID == guildID {
			e.InvitedGuilds[i].Scoreboard = ref
			return
		}
	}
}

// Validate checks the event invariants that must hold before persistence.
func (e *Event) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("event name is required")
	}
	if e.CreatorGuild.GuildID == "" {
		return fmt.Errorf("event requires a creator guild")
	}
	if !e.EndsAt.After(e.StartsAt) {
		return fmt.Errorf("event end must be after start")
	}
	return nil
}
