// ABOUTME: Create-event conversation: name, window, tracking, visibility, save
// ABOUTME: Each confirmation's "no" returns to that question, not further back

package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/store"
)

// Create-event states
const (
	createAskName conversation.State = iota
	createBadName
	createAskStart
	createBadStart
	createConfirmStart
	createAskEnd
	createBadEnd
	createConfirmEnd
	createAskTracking
	createBadTracking
	createConfirmTracking
	createAskGlobal
	createConfirmAll
)

// CreateFlow walks an operator through creating an event. On the final
// confirmation the event is persisted with an empty team list and
// willAddEvent is emitted.
type CreateFlow struct {
	deps    Deps
	guildID string

	name     string
	startsAt timeValue
	endsAt   timeValue
	tracker  store.Tracker
	global   bool

	closeMsg string
}

// timeValue distinguishes "unset" from a parsed answer without pointer noise.
type timeValue struct {
	set bool
	t   time.Time
}

// NewCreateFlow creates the flow for an operator in the given guild.
func NewCreateFlow(deps Deps, guildID string) *CreateFlow {
	return &CreateFlow{deps: deps, guildID: guildID}
}

func (f *CreateFlow) Start(ctx context.Context) (conversation.State, error) {
	return createAskName, nil
}

func (f *CreateFlow) Render(s conversation.State) string {
	switch s {
	case createAskName:
		return "What should the event be called?"
	case createBadName:
		return "The name cannot be empty. What should the event be called?"
	case createAskStart:
		return "When does it start? (`now`, `2006-01-02 15:04`, or a date)"
	case createBadStart:
		return "I could not read that as a date. When does it start? (`now`, `2006-01-02 15:04`, or a date)"
	case createConfirmStart:
		return fmt.Sprintf("Start at %s — is that right? (yes/no)", formatTime(f.startsAt.t))
	case createAskEnd:
		return "When does it end? (`tbd` for open-ended, or a date)"
	case createBadEnd:
		return "The end must be a date after the start, or `tbd`. When does it end?"
	case createConfirmEnd:
		return fmt.Sprintf("End at %s — is that right? (yes/no)", formatTime(f.endsAt.t))
	case createAskTracking:
		return "What should be tracked? (`skills [names...]`, `bosses [names...]`, `clues [tiers...]`, `custom`, `none`)"
	case createBadTracking:
		return "I did not recognize that tracking type. Options: `skills`, `bosses`, `clues`, `custom`, `none` — optionally followed by a selection."
	case createConfirmTracking:
		return fmt.Sprintf("Tracking %s — is that right? (yes/no)", trackerAnswer(f.tracker))
	case createAskGlobal:
		return "Should other guilds be able to join? (yes/no)"
	case createConfirmAll:
		return fmt.Sprintf(
			"Creating **%s**: %s → %s, tracking %s, global: %t. Save it? (yes/no)",
			f.name, formatTime(f.startsAt.t), formatTime(f.endsAt.t),
			trackerAnswer(f.tracker), f.global)
	}
	return ""
}

func (f *CreateFlow) Advance(ctx context.Context, s conversation.State, answer string) (conversation.State, error) {
	switch s {
	case createAskName, createBadName:
		name := trimmed(answer)
		if name == "" {
			return createBadName, nil
		}
		f.name = name
		return createAskStart, nil

	case createAskStart, createBadStart:
		t, err := parseStart(answer, f.deps.now())
		if err != nil {
			return createBadStart, nil
		}
		f.startsAt = timeValue{set: true, t: t}
		return createConfirmStart, nil

	case createConfirmStart:
		yes, ok := parseYesNo(answer)
		if !ok {
			return createConfirmStart, nil
		}
		if !yes {
			return createAskStart, nil
		}
		return createAskEnd, nil

	case createAskEnd, createBadEnd:
		t, err := parseEnd(answer, f.deps.now())
		if err != nil || !t.After(f.startsAt.t) {
			return createBadEnd, nil
		}
		f.endsAt = timeValue{set: true, t: t}
		return createConfirmEnd, nil

	case createConfirmEnd:
		yes, ok := parseYesNo(answer)
		if !ok {
			return createConfirmEnd, nil
		}
		if !yes {
			// Back to the end-date question, never the start-date one
			return createAskEnd, nil
		}
		return createAskTracking, nil

	case createAskTracking, createBadTracking:
		tr, err := parseTracker(answer)
		if err != nil {
			return createBadTracking, nil
		}
		f.tracker = tr
		return createConfirmTracking, nil

	case createConfirmTracking:
		yes, ok := parseYesNo(answer)
		if !ok {
			return createConfirmTracking, nil
		}
		if !yes {
			return createAskTracking, nil
		}
		return createAskGlobal, nil

	case createAskGlobal:
		yes, ok := parseYesNo(answer)
		if !ok {
			return createAskGlobal, nil
		}
		f.global = yes
		return createConfirmAll, nil

	case createConfirmAll:
		yes, ok := parseYesNo(answer)
		if !ok {
			return createConfirmAll, nil
		}
		if !yes {
			f.closeMsg = "Okay, nothing was saved."
			return conversation.Done, nil
		}
		return f.save(ctx)
	}
	return s, nil
}

func (f *CreateFlow) save(ctx context.Context) (conversation.State, error) {
	event := &store.Event{
		Name:         f.name,
		StartsAt:     f.startsAt.t,
		EndsAt:       f.endsAt.t,
		Tracker:      f.tracker,
		Teams:        []store.Team{},
		CreatorGuild: store.Guild{GuildID: f.guildID},
		Global:       f.global,
	}

	saved, err := f.deps.Store.UpsertEvent(ctx, event)
	if err != nil {
		return conversation.Done, fmt.Errorf("saving event: %w", err)
	}

	f.deps.Bus.Publish(bus.Signal{Topic: bus.WillAddEvent, Event: saved})
	f.closeMsg = fmt.Sprintf("Event **%s** created. Id: `%s`", saved.Name, saved.ID)
	return conversation.Done, nil
}

func (f *CreateFlow) CloseMessage() string {
	return f.closeMsg
}
