// ABOUTME: End-event conversation: creator-guild lookup, confirm, immediate end
// ABOUTME: The event's end time is moved to now and willEndEvent is emitted

package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/store"
)

// End-event states
const (
	endAskID conversation.State = iota
	endBadID
	endConfirm
)

// EndFlow ends a running event immediately. Only the creator guild can end
// an event.
type EndFlow struct {
	deps    Deps
	guildID string

	event    *store.Event
	closeMsg string
}

// NewEndFlow creates the flow for an operator in the given guild.
func NewEndFlow(deps Deps, guildID string) *EndFlow {
	return &EndFlow{deps: deps, guildID: guildID}
}

func (f *EndFlow) Start(ctx context.Context) (conversation.State, error) {
	return endAskID, nil
}

func (f *EndFlow) Render(s conversation.State) string {
	switch s {
	case endAskID:
		return "Which event should be ended? Give its id."
	case endBadID:
		return "Could not find an event with that id created by this guild. Which event should be ended?"
	case endConfirm:
		return fmt.Sprintf("End **%s** right now? (yes/no)", f.event.Name)
	}
	return ""
}

func (f *EndFlow) Advance(ctx context.Context, s conversation.State, answer string) (conversation.State, error) {
	switch s {
	case endAskID, endBadID:
		event, err := f.deps.Store.GetCreatorEvent(ctx, trimmed(answer), f.guildID)
		if errors.Is(err, store.ErrNotFound) {
			return endBadID, nil
		}
		if err != nil {
			return s, fmt.Errorf("looking up event: %w", err)
		}
		if event.StatusAt(f.deps.now()) == store.StatusEnded {
			f.closeMsg = fmt.Sprintf("Event **%s** has already ended.", event.Name)
			return conversation.Done, nil
		}
		f.event = event
		return endConfirm, nil

	case endConfirm:
		yes, ok := parseYesNo(answer)
		if !ok {
			return endConfirm, nil
		}
		if !yes {
			f.closeMsg = "Okay, the event keeps running."
			return conversation.Done, nil
		}

		updated := f.event.Clone()
		updated.EndsAt = f.deps.now().UTC()
		if !updated.EndsAt.After(updated.StartsAt) {
			// The store keeps timestamps at second precision, so the bump
			// must survive truncation on a round-trip.
			updated.EndsAt = updated.StartsAt.Add(time.Second)
		}
		saved, err := f.deps.Store.UpsertEvent(ctx, updated)
		if err != nil {
			return conversation.Done, fmt.Errorf("saving event: %w", err)
		}

		f.deps.Bus.Publish(bus.Signal{Topic: bus.WillEndEvent, Event: saved})
		f.closeMsg = fmt.Sprintf("Event **%s** has been ended.", saved.Name)
		return conversation.Done, nil
	}
	return s, nil
}

func (f *EndFlow) CloseMessage() string {
	return f.closeMsg
}
