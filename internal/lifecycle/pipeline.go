// ABOUTME: Lifecycle pipeline: reacts to will-signals, refreshes statistics,
// ABOUTME: rebroadcasts scoreboards per guild, and owns the transition timers

package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/dispatch"
	"github.com/runeclock/eventbot/internal/metrics"
	"github.com/runeclock/eventbot/internal/scoreboard"
	"github.com/runeclock/eventbot/internal/store"
)

// refreshErrorFooter annotates a scoreboard rebroadcast after a failed batch.
const refreshErrorFooter = "Statistics could not be refreshed; showing the last known scores."

const (
	// sweepWindow is how far ahead the daily sweep arms transition timers.
	// One hour past a day so a slow sweep never leaves a gap.
	sweepWindow = 25 * time.Hour

	// driftInterval re-emits refreshes for running events as a safety net
	// against missed signals.
	driftInterval = 6 * time.Minute
)

// Publisher is what the pipeline needs to emit follow-up signals.
type Publisher interface {
	Publish(sig bus.Signal)
}

// Sender is what the pipeline needs from the dispatch layer.
type Sender interface {
	Send(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)
	Delete(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)
}

// StatsClient is what the pipeline needs from the hiscores lookup.
type StatsClient interface {
	Lookup(ctx context.Context, account string, allowCached bool) (*store.Snapshot, error)
}

// Deps carries the pipeline's collaborators.
type Deps struct {
	Store  store.Store
	Bus    Publisher
	Chat   Sender
	Stats  StatsClient
	Logger *slog.Logger
	// Now is swappable for tests.
	Now func() time.Time
}

// Pipeline owns the event lifecycle: transition timers, statistics refresh,
// and scoreboard rebroadcast across the creator and invited guilds.
type Pipeline struct {
	deps   Deps
	starts *Scheduler
	ends   *Scheduler
	logger *slog.Logger
}

// New creates the pipeline and its timer tables.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("component", "lifecycle")
	return &Pipeline{
		deps:   deps,
		starts: NewScheduler(logger.With("table", "start")),
		ends:   NewScheduler(logger.With("table", "end")),
		logger: logger,
	}
}

// Register subscribes the pipeline's handlers on the bus.
func (p *Pipeline) Register(b *bus.Bus) {
	b.Subscribe(bus.WillAddEvent, p.HandleWillAdd)
	b.Subscribe(bus.WillEditEvent, p.HandleWillEdit)
	b.Subscribe(bus.WillStartEvent, p.HandleWillStart)
	b.Subscribe(bus.WillEndEvent, p.HandleWillEnd)
	b.Subscribe(bus.WillUpdateScores, p.HandleWillUpdateScores)
	b.Subscribe(bus.WillSignUpPlayer, p.HandleWillSignUp)
	b.Subscribe(bus.WillUnsignupPlayer, p.HandleWillUnsignup)
	b.Subscribe(bus.WillDeleteEvent, p.HandleWillDelete)
}

// Run drives the periodic sweeps until ctx is cancelled, then stops the
// timer tables.
func (p *Pipeline) Run(ctx context.Context) {
	p.sweepTimers(ctx)

	daily := time.NewTicker(24 * time.Hour)
	drift := time.NewTicker(driftInterval)
	defer daily.Stop()
	defer drift.Stop()

	for {
		select {
		case <-ctx.Done():
			p.starts.Close()
			p.ends.Close()
			return
		case <-daily.C:
			p.sweepTimers(ctx)
		case <-drift.C:
			p.sweepRunning(ctx)
		}
	}
}

func (p *Pipeline) now() time.Time {
	if p.deps.Now != nil {
		return p.deps.Now()
	}
	return time.Now()
}

// HandleWillAdd reacts to a newly persisted event: transitions already in the
// past fire immediately, a fully future or custom-tracked event gets timers
// and an initial scoreboard post.
func (p *Pipeline) HandleWillAdd(ctx context.Context, sig bus.Signal) {
	e := sig.Event
	now := p.now()

	if !now.Before(e.StartsAt) {
		p.deps.Bus.Publish(bus.Signal{Topic: bus.WillStartEvent, Event: e})
	}
	if !now.Before(e.EndsAt) {
		p.deps.Bus.Publish(bus.Signal{Topic: bus.WillEndEvent, Event: e})
	}
	if e.Custom() || now.Before(e.StartsAt) {
		p.scheduleTransitions(e)
		p.deps.Bus.Publish(bus.Signal{Topic: bus.WillUpdateScores, Event: e})
	}

	p.deps.Bus.Publish(bus.Signal{Topic: bus.DidAddEvent, Event: e})
}

// HandleWillEdit reschedules the edited event's transitions and refreshes its
// scoreboard. An edit can move either boundary across now, so both timers are
// rebuilt from scratch.
func (p *Pipeline) HandleWillEdit(ctx context.Context, sig bus.Signal) {
	e := sig.Event
	p.starts.Cancel(e.ID)
	p.ends.Cancel(e.ID)
	p.scheduleTransitions(e)

	p.deps.Bus.Publish(bus.Signal{Topic: bus.WillUpdateScores, Event: e})
	p.deps.Bus.Publish(bus.Signal{Topic: bus.DidEditEvent, Event: e})
}

// HandleWillStart clears the start timer and, for hiscores-tracked events,
// forces a refresh so starting snapshots get taken close to the start.
func (p *Pipeline) HandleWillStart(ctx context.Context, sig bus.Signal) {
	e := sig.Event
	p.starts.Cancel(e.ID)
	if !e.Custom() {
		p.deps.Bus.Publish(bus.Signal{Topic: bus.WillUpdateScores, Event: e, Forced: true})
	}
}

// HandleWillEnd clears the end timer and forces a final refresh so the
// scoreboard settles on end-of-event numbers.
func (p *Pipeline) HandleWillEnd(ctx context.Context, sig bus.Signal) {
	e := sig.Event
	p.ends.Cancel(e.ID)
	p.deps.Bus.Publish(bus.Signal{Topic: bus.WillUpdateScores, Event: e, Forced: true})
	p.deps.Bus.Publish(bus.Signal{Topic: bus.DidEndEvent, Event: e})
}

// HandleWillSignUp refreshes after a membership change. The mutation itself
// already happened in the command layer.
func (p *Pipeline) HandleWillSignUp(ctx context.Context, sig bus.Signal) {
	p.deps.Bus.Publish(bus.Signal{Topic: bus.WillUpdateScores, Event: sig.Event})
	p.deps.Bus.Publish(bus.Signal{Topic: bus.DidSignUpPlayer, Event: sig.Event, UserID: sig.UserID})
}

// HandleWillUnsignup mirrors HandleWillSignUp for withdrawals.
func (p *Pipeline) HandleWillUnsignup(ctx context.Context, sig bus.Signal) {
	p.deps.Bus.Publish(bus.Signal{Topic: bus.WillUpdateScores, Event: sig.Event})
	p.deps.Bus.Publish(bus.Signal{Topic: bus.DidUnsignupPlayer, Event: sig.Event, UserID: sig.UserID})
}

// HandleWillUpdateScores refreshes statistics and rebroadcasts the
// scoreboard. A batch-level fault falls back to rebroadcasting the original
// event with an error footer instead of stalling the scoreboard.
func (p *Pipeline) HandleWillUpdateScores(ctx context.Context, sig bus.Signal) {
	e := sig.Event
	now := p.now()
	metrics.RefreshesStarted.WithLabelValues(strconv.FormatBool(sig.Forced)).Inc()

	// Not yet started, custom, or untracked: nothing to fetch. The signal's
	// event stays untouched; the rebroadcast mutates a derived copy.
	if e.StatusAt(now) == store.StatusScheduled || e.Custom() || e.Tracker.Category == store.CategoryNone {
		p.rebroadcastAndPersist(ctx, e.Clone(), "")
		return
	}

	refreshed, err := p.refresh(ctx, e, sig.Forced)
	if err != nil {
		p.logger.Error("refresh batch failed", "event_id", e.ID, "error", err)
		p.rebroadcastAndPersist(ctx, e.Clone(), refreshErrorFooter)
		return
	}
	p.rebroadcastAndPersist(ctx, refreshed, "")
}

// HandleWillDelete replaces every guild's scoreboard with a tombstone. No new
// message-id set is recorded; the event is gone from the store already.
func (p *Pipeline) HandleWillDelete(ctx context.Context, sig bus.Signal) {
	e := sig.Event
	p.starts.Cancel(e.ID)
	p.ends.Cancel(e.ID)

	content := scoreboard.RenderDeleted(e)
	for _, g := range e.Guilds() {
		channelID, ok := p.guildChannel(ctx, g.GuildID)
		if !ok {
			continue
		}
		p.deleteScoreboard(ctx, g.Scoreboard)
		if _, err := p.deps.Chat.Send(ctx, &dispatch.Request{ChannelID: channelID, Content: content}); err != nil {
			p.logger.Warn("tombstone send failed", "event_id", e.ID, "guild", g.GuildID, "error", err)
		}
	}

	p.deps.Bus.Publish(bus.Signal{Topic: bus.DidDeleteEvent, Event: e})
}

// refresh derives a new event with fresh ending snapshots. Per-account
// failures keep the prior stats and never abort the batch; only a scheduling
// fault (cancelled context) fails the pass itself.
func (p *Pipeline) refresh(ctx context.Context, e *store.Event, forced bool) (*store.Event, error) {
	out := e.Clone()
	for ti := range out.Teams {
		for pi := range out.Teams[ti].Participants {
			accounts := out.Teams[ti].Participants[pi].Accounts
			for ai := range accounts {
				if err := ctx.Err(); err != nil {
					return nil, err
				}

				a := &accounts[ai]
				snap, err := p.deps.Stats.Lookup(ctx, a.Name, !forced)
				if err != nil {
					metrics.StatFetchFailures.Inc()
					p.logger.Warn("stat fetch failed",
						"event_id", e.ID, "account", a.Name, "error", err)
					continue
				}

				// The starting snapshot is taken once and never overwritten.
				if a.Starting == nil {
					a.Starting = snap
				}
				a.Ending = snap
			}
		}
	}
	return out, nil
}

// rebroadcastAndPersist re-posts the scoreboard to every guild, records the
// new message-id sets, persists the event, and emits didUpdateScores. An
// unreachable guild is skipped; partial success is fine.
func (p *Pipeline) rebroadcastAndPersist(ctx context.Context, e *store.Event, errorFooter string) {
	content := scoreboard.Render(e, scoreboard.Options{Now: p.now(), ErrorFooter: errorFooter})

	for _, g := range e.Guilds() {
		channelID, ok := p.guildChannel(ctx, g.GuildID)
		if !ok {
			continue
		}

		p.deleteScoreboard(ctx, g.Scoreboard)

		resp, err := p.deps.Chat.Send(ctx, &dispatch.Request{ChannelID: channelID, Content: content})
		if err != nil {
			p.logger.Warn("scoreboard send failed", "event_id", e.ID, "guild", g.GuildID, "error", err)
			continue
		}
		e.SetScoreboard(g.GuildID, &store.ScoreboardRef{
			ChannelID:  channelID,
			MessageIDs: resp.MessageIDs,
		})
	}

	saved, err := p.deps.Store.UpsertEvent(ctx, e)
	if err != nil {
		p.logger.Error("persisting refreshed event failed", "event_id", e.ID, "error", err)
		saved = e
	}
	p.deps.Bus.Publish(bus.Signal{Topic: bus.DidUpdateScores, Event: saved})
}

// guildChannel resolves the guild's configured scoreboard channel. A guild
// without settings or a channel is unreachable and gets skipped.
func (p *Pipeline) guildChannel(ctx context.Context, guildID string) (string, bool) {
	settings, err := p.deps.Store.GetSettings(ctx, guildID)
	if errors.Is(err, store.ErrNotFound) {
		p.logger.Warn("guild has no settings, skipping", "guild", guildID)
		return "", false
	}
	if err != nil {
		p.logger.Warn("guild settings unavailable, skipping", "guild", guildID, "error", err)
		return "", false
	}
	if settings.NotificationChannelID == "" {
		p.logger.Warn("guild has no scoreboard channel, skipping", "guild", guildID)
		return "", false
	}
	return settings.NotificationChannelID, true
}

// deleteScoreboard best-effort removes a prior scoreboard message set.
// Missing messages are ignored.
func (p *Pipeline) deleteScoreboard(ctx context.Context, ref *store.ScoreboardRef) {
	if ref == nil {
		return
	}
	for _, id := range ref.MessageIDs {
		if _, err := p.deps.Chat.Delete(ctx, &dispatch.Request{ChannelID: ref.ChannelID, MessageID: id}); err != nil {
			p.logger.Debug("old scoreboard delete failed", "channel", ref.ChannelID, "message", id, "error", err)
		}
	}
}

// scheduleTransitions arms start/end timers for boundaries still in the
// future. Open-ended events never get an end timer.
func (p *Pipeline) scheduleTransitions(e *store.Event) {
	now := p.now()
	if now.Before(e.StartsAt) {
		p.starts.Schedule(e.ID, e.StartsAt, p.fire(e.ID, bus.WillStartEvent))
	}
	if !e.OpenEnded() && now.Before(e.EndsAt) {
		p.ends.Schedule(e.ID, e.EndsAt, p.fire(e.ID, bus.WillEndEvent))
	}
}

// fire builds a timer callback that re-reads the event (it may have changed
// or disappeared since scheduling) before emitting the signal.
func (p *Pipeline) fire(eventID string, topic bus.Topic) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		e, err := p.deps.Store.GetEvent(ctx, eventID)
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		if err != nil {
			p.logger.Error("timer event lookup failed", "event_id", eventID, "error", err)
			return
		}
		p.deps.Bus.Publish(bus.Signal{Topic: topic, Event: e})
	}
}

// sweepTimers arms transition timers for every event whose boundary falls
// inside the next sweep window. Ids already carrying a timer are left alone.
func (p *Pipeline) sweepTimers(ctx context.Context) {
	now := p.now()
	events, err := p.deps.Store.ListEventsBetween(ctx, now, now.Add(sweepWindow))
	if err != nil {
		p.logger.Error("timer sweep query failed", "error", err)
		return
	}

	for _, e := range events {
		if now.Before(e.StartsAt) && !p.starts.Scheduled(e.ID) {
			p.starts.Schedule(e.ID, e.StartsAt, p.fire(e.ID, bus.WillStartEvent))
		}
		if !e.OpenEnded() && now.Before(e.EndsAt) && !p.ends.Scheduled(e.ID) {
			p.ends.Schedule(e.ID, e.EndsAt, p.fire(e.ID, bus.WillEndEvent))
		}
	}
	p.logger.Debug("timer sweep completed", "events", len(events))
}

// sweepRunning re-emits a refresh for every running hiscores-tracked event,
// correcting any drift from missed or lost signals.
func (p *Pipeline) sweepRunning(ctx context.Context) {
	events, err := p.deps.Store.ListRunningEvents(ctx, p.now())
	if err != nil {
		p.logger.Error("drift sweep query failed", "error", err)
		return
	}
	for _, e := range events {
		if e.Custom() || e.Tracker.Category == store.CategoryNone {
			continue
		}
		p.deps.Bus.Publish(bus.Signal{Topic: bus.WillUpdateScores, Event: e})
	}
}
