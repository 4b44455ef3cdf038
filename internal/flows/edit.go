// ABOUTME: Edit-event conversation: lookup by id, per-field optional edits
// ABOUTME: The final confirmation's "no" restarts the field edits, not the lookup

package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/store"
)

// Edit-event states
const (
	editAskID conversation.State = iota
	editBadID
	editAskName
	editAskStart
	editBadStart
	editAskEnd
	editBadEnd
	editConfirmAll
)

// EditFlow edits an existing event's name and window. Lookup is restricted
// to the creator guild. Every field is optional: `skip` keeps the current
// value.
type EditFlow struct {
	deps    Deps
	guildID string

	event    *store.Event
	newName  string
	newStart timeValue
	newEnd   timeValue

	closeMsg string
}

// NewEditFlow creates the flow for an operator in the given guild.
func NewEditFlow(deps Deps, guildID string) *EditFlow {
	return &EditFlow{deps: deps, guildID: guildID}
}

func (f *EditFlow) Start(ctx context.Context) (conversation.State, error) {
	return editAskID, nil
}

func (f *EditFlow) Render(s conversation.State) string {
	switch s {
	case editAskID:
		return "Which event should be edited? Give its id."
	case editBadID:
		return "Could not find an event with that id in this guild. Which event should be edited?"
	case editAskName:
		return fmt.Sprintf("Current name: **%s**. Enter a new name, or `skip`.", f.event.Name)
	case editAskStart:
		return fmt.Sprintf("Current start: %s. Enter a new start, or `skip`.", formatTime(f.start()))
	case editBadStart:
		return "I could not read that as a date. Enter a new start, or `skip`."
	case editAskEnd:
		return fmt.Sprintf("Current end: %s. Enter a new end (`tbd` for open-ended), or `skip`.", formatTime(f.end()))
	case editBadEnd:
		return "The end must be a date after the start, or `tbd`. Enter a new end, or `skip`."
	case editConfirmAll:
		return fmt.Sprintf(
			"Updating **%s**: name **%s**, window %s → %s. Save it? (yes/no)",
			f.event.Name, f.name(), formatTime(f.start()), formatTime(f.end()))
	}
	return ""
}

func (f *EditFlow) Advance(ctx context.Context, s conversation.State, answer string) (conversation.State, error) {
	switch s {
	case editAskID, editBadID:
		event, err := f.deps.Store.GetCreatorEvent(ctx, trimmed(answer), f.guildID)
		if errors.Is(err, store.ErrNotFound) {
			return editBadID, nil
		}
		if err != nil {
			return s, fmt.Errorf("looking up event: %w", err)
		}
		f.event = event
		return editAskName, nil

	case editAskName:
		if name := trimmed(answer); !isSkip(name) {
			if name == "" {
				return editAskName, nil
			}
			f.newName = name
		}
		return editAskStart, nil

	case editAskStart, editBadStart:
		if isSkip(answer) {
			return editAskEnd, nil
		}
		t, err := parseStart(answer, f.deps.now())
		if err != nil {
			return editBadStart, nil
		}
		f.newStart = timeValue{set: true, t: t}
		return editAskEnd, nil

	case editAskEnd, editBadEnd:
		if isSkip(answer) {
			if !f.end().After(f.start()) {
				return editBadEnd, nil
			}
			return editConfirmAll, nil
		}
		t, err := parseEnd(answer, f.deps.now())
		if err != nil || !t.After(f.start()) {
			return editBadEnd, nil
		}
		f.newEnd = timeValue{set: true, t: t}
		return editConfirmAll, nil

	case editConfirmAll:
		yes, ok := parseYesNo(answer)
		if !ok {
			return editConfirmAll, nil
		}
		if !yes {
			// Restart the field edits; the looked-up event is kept
			f.newName = ""
			f.newStart = timeValue{}
			f.newEnd = timeValue{}
			return editAskName, nil
		}
		return f.save(ctx)
	}
	return s, nil
}

func (f *EditFlow) save(ctx context.Context) (conversation.State, error) {
	updated := f.event.Clone()
	updated.Name = f.name()
	updated.StartsAt = f.start()
	updated.EndsAt = f.end()

	saved, err := f.deps.Store.UpsertEvent(ctx, updated)
	if err != nil {
		return conversation.Done, fmt.Errorf("saving event: %w", err)
	}

	f.deps.Bus.Publish(bus.Signal{Topic: bus.WillEditEvent, Event: saved})
	f.closeMsg = fmt.Sprintf("Event **%s** updated.", saved.Name)
	return conversation.Done, nil
}

func (f *EditFlow) CloseMessage() string {
	return f.closeMsg
}

func (f *EditFlow) name() string {
	if f.newName != "" {
		return f.newName
	}
	return f.event.Name
}

func (f *EditFlow) start() time.Time {
	if f.newStart.set {
		return f.newStart.t
	}
	return f.event.StartsAt
}

func (f *EditFlow) end() time.Time {
	if f.newEnd.set {
		return f.newEnd.t
	}
	return f.event.EndsAt
}

func isSkip(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "skip")
}
