// ABOUTME: Force-update conversation: throttled immediate scoreboard refresh
// ABOUTME: Ended events need an extra confirmation before refreshing

package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/metrics"
	"github.com/runeclock/eventbot/internal/store"
)

// Force-update states
const (
	forceAskID conversation.State = iota
	forceBadID
	forceConfirmEnded
)

// ForceUpdateFlow requests an immediate forced refresh for an event. Lookup
// spans events the guild created or was invited to. Refreshes inside the
// per-event cool-down are dropped, and the operator is told so.
type ForceUpdateFlow struct {
	deps     Deps
	throttle Refresher
	guildID  string

	event    *store.Event
	closeMsg string
}

// NewForceUpdateFlow creates the flow for an operator in the given guild.
func NewForceUpdateFlow(deps Deps, throttle Refresher, guildID string) *ForceUpdateFlow {
	return &ForceUpdateFlow{deps: deps, throttle: throttle, guildID: guildID}
}

func (f *ForceUpdateFlow) Start(ctx context.Context) (conversation.State, error) {
	return forceAskID, nil
}

func (f *ForceUpdateFlow) Render(s conversation.State) string {
	switch s {
	case forceAskID:
		return "Which event should be refreshed? Give its id."
	case forceBadID:
		return "Could not find an event with that id for this guild. Which event should be refreshed?"
	case forceConfirmEnded:
		return fmt.Sprintf("**%s** has already ended; refresh its final scoreboard anyway? (yes/no)", f.event.Name)
	}
	return ""
}

func (f *ForceUpdateFlow) Advance(ctx context.Context, s conversation.State, answer string) (conversation.State, error) {
	switch s {
	case forceAskID, forceBadID:
		event, err := f.lookup(ctx, trimmed(answer))
		if errors.Is(err, store.ErrNotFound) {
			return forceBadID, nil
		}
		if err != nil {
			return s, fmt.Errorf("looking up event: %w", err)
		}
		f.event = event

		// Only an already-ended event needs confirming
		if event.StatusAt(f.deps.now()) == store.StatusEnded {
			return forceConfirmEnded, nil
		}
		f.enqueue()
		return conversation.Done, nil

	case forceConfirmEnded:
		yes, ok := parseYesNo(answer)
		if !ok {
			return forceConfirmEnded, nil
		}
		if !yes {
			f.closeMsg = "Okay, nothing was refreshed."
			return conversation.Done, nil
		}
		f.enqueue()
		return conversation.Done, nil
	}
	return s, nil
}

// lookup resolves the event across the guild's created and invited events.
func (f *ForceUpdateFlow) lookup(ctx context.Context, id string) (*store.Event, error) {
	event, err := f.deps.Store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, g := range event.Guilds() {
		if g.GuildID == f.guildID {
			return event, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *ForceUpdateFlow) enqueue() {
	if !f.throttle.Allow(f.event.ID) {
		metrics.ForcedRefreshesDropped.Inc()
		f.closeMsg = fmt.Sprintf(
			"A refresh for **%s** was requested less than 5 minutes ago; this one may be dropped.",
			f.event.Name)
		return
	}
	f.deps.Bus.Publish(bus.Signal{Topic: bus.WillUpdateScores, Event: f.event, Forced: true})
	f.closeMsg = fmt.Sprintf("Refreshing the scoreboard for **%s**.", f.event.Name)
}

func (f *ForceUpdateFlow) CloseMessage() string {
	return f.closeMsg
}
