// ABOUTME: Tests for the command router
// ABOUTME: Covers routing, the admin gate, signups, delete, list, and settings

package commands

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/flows"
	"github.com/runeclock/eventbot/internal/store"
)

type memStore struct {
	events   map[string]*store.Event
	settings map[string]*store.Settings
}

func newMemStore() *memStore {
	return &memStore{
		events:   make(map[string]*store.Event),
		settings: make(map[string]*store.Settings),
	}
}

func (m *memStore) GetEvent(ctx context.Context, id string) (*store.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (m *memStore) GetCreatorEvent(ctx context.Context, id, guildID string) (*store.Event, error) {
	e, ok := m.events[id]
	if !ok || e.CreatorGuild.GuildID != guildID {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (m *memStore) ListGuildEvents(ctx context.Context, guildID string) ([]*store.Event, error) {
	var out []*store.Event
	for _, e := range m.events {
		if e.CreatorGuild.GuildID == guildID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (m *memStore) ListInvitedEvents(ctx context.Context, guildID string) ([]*store.Event, error) {
	var out []*store.Event
	for _, e := range m.events {
		for _, g := range e.InvitedGuilds {
			if g.GuildID == guildID {
				out = append(out, e.Clone())
			}
		}
	}
	return out, nil
}

func (m *memStore) ListEventsBetween(ctx context.Context, start, end time.Time) ([]*store.Event, error) {
	return nil, nil
}

func (m *memStore) ListRunningEvents(ctx context.Context, now time.Time) ([]*store.Event, error) {
	return nil, nil
}

func (m *memStore) UpsertEvent(ctx context.Context, event *store.Event) (*store.Event, error) {
	e := event.Clone()
	if e.ID == "" {
		e.ID = fmt.Sprintf("evt-%d", len(m.events)+1)
	}
	m.events[e.ID] = e
	return e.Clone(), nil
}

func (m *memStore) DeleteEvent(ctx context.Context, id string) error {
	delete(m.events, id)
	return nil
}

func (m *memStore) GetSettings(ctx context.Context, guildID string) (*store.Settings, error) {
	s, ok := m.settings[guildID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (m *memStore) SaveSettings(ctx context.Context, settings *store.Settings) error {
	m.settings[settings.GuildID] = settings
	return nil
}

func (m *memStore) Close() error { return nil }

type capturePublisher struct {
	signals []bus.Signal
}

func (c *capturePublisher) Publish(sig bus.Signal) {
	c.signals = append(c.signals, sig)
}

func (c *capturePublisher) byTopic(topic bus.Topic) []bus.Signal {
	var out []bus.Signal
	for _, s := range c.signals {
		if s.Topic == topic {
			out = append(out, s)
		}
	}
	return out
}

type fakeSessions struct {
	started []conversation.Origin
	err     error
}

func (f *fakeSessions) Start(ctx context.Context, origin conversation.Origin, flow conversation.Flow) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, origin)
	return nil
}

type allowAll struct{}

func (allowAll) Allow(key string) bool { return true }

var testNow = time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

func newTestRouter(st *memStore, pub *capturePublisher, sessions *fakeSessions) *Router {
	deps := flows.Deps{Store: st, Bus: pub, Now: func() time.Time { return testNow }}
	return NewRouter(deps, sessions, allowAll{}, nil)
}

func seedEvent(t *testing.T, st *memStore, guildID string) *store.Event {
	t.Helper()
	saved, err := st.UpsertEvent(context.Background(), &store.Event{
		Name:         "XP race",
		StartsAt:     testNow.Add(-time.Hour),
		EndsAt:       testNow.Add(24 * time.Hour),
		Tracker:      store.Tracker{Category: store.CategorySkills},
		Teams:        []store.Team{},
		CreatorGuild: store.Guild{GuildID: guildID},
	})
	require.NoError(t, err)
	return saved
}

func msg(guildID, userID, body string) Message {
	return Message{
		GuildID:   guildID,
		ChannelID: "!chan:example.org",
		UserID:    userID,
		MessageID: "$msg",
		Body:      body,
	}
}

func TestHandle_CreateStartsConversation(t *testing.T) {
	sessions := &fakeSessions{}
	r := newTestRouter(newMemStore(), &capturePublisher{}, sessions)

	reply, err := r.Handle(context.Background(), msg("!g:example.org", "@alice:example.org", "create"))
	require.NoError(t, err)
	assert.Empty(t, reply)
	require.Len(t, sessions.started, 1)
	assert.Equal(t, "@alice:example.org", sessions.started[0].UserID)
}

func TestHandle_ExistingSessionIsReported(t *testing.T) {
	sessions := &fakeSessions{err: conversation.ErrSessionExists}
	r := newTestRouter(newMemStore(), &capturePublisher{}, sessions)

	reply, err := r.Handle(context.Background(), msg("!g:example.org", "@alice:example.org", "edit"))
	require.NoError(t, err)
	assert.Contains(t, reply, "exit")
}

func TestHandle_AdminGate(t *testing.T) {
	st := newMemStore()
	st.settings["!g:example.org"] = &store.Settings{
		GuildID: "!g:example.org",
		Admins:  []string{"@admin:example.org"},
	}
	sessions := &fakeSessions{}
	r := newTestRouter(st, &capturePublisher{}, sessions)

	reply, err := r.Handle(context.Background(), msg("!g:example.org", "@alice:example.org", "create"))
	require.NoError(t, err)
	assert.Contains(t, reply, "admin")
	assert.Empty(t, sessions.started)

	reply, err = r.Handle(context.Background(), msg("!g:example.org", "@admin:example.org", "create"))
	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.Len(t, sessions.started, 1)

	// signup is open to everyone
	reply, err = r.Handle(context.Background(), msg("!g:example.org", "@alice:example.org", "signup nope acct"))
	require.NoError(t, err)
	assert.NotContains(t, reply, "admin list")
}

func TestHandle_UnknownCommand(t *testing.T) {
	r := newTestRouter(newMemStore(), &capturePublisher{}, &fakeSessions{})

	reply, err := r.Handle(context.Background(), msg("!g:example.org", "@alice:example.org", "dance"))
	require.NoError(t, err)
	assert.Contains(t, reply, "Unknown command")
}

func TestSignup_AddsAccountAndPublishes(t *testing.T) {
	st := newMemStore()
	pub := &capturePublisher{}
	r := newTestRouter(st, pub, &fakeSessions{})
	event := seedEvent(t, st, "!g:example.org")

	reply, err := r.Handle(context.Background(),
		msg("!g:example.org", "@alice:example.org", "signup "+event.ID+" alice_rs"))
	require.NoError(t, err)
	assert.Contains(t, reply, "alice_rs")

	saved := st.events[event.ID]
	require.Len(t, saved.Teams, 1)
	assert.Equal(t, defaultTeamName, saved.Teams[0].Name)
	require.Len(t, saved.Teams[0].Participants, 1)
	assert.Equal(t, "@alice:example.org", saved.Teams[0].Participants[0].UserID)

	signals := pub.byTopic(bus.WillSignUpPlayer)
	require.Len(t, signals, 1)
	assert.Equal(t, "@alice:example.org", signals[0].UserID)
}

func TestSignup_NamedTeamAndDuplicateAccount(t *testing.T) {
	st := newMemStore()
	r := newTestRouter(st, &capturePublisher{}, &fakeSessions{})
	event := seedEvent(t, st, "!g:example.org")

	_, err := r.Handle(context.Background(),
		msg("!g:example.org", "@alice:example.org", "signup "+event.ID+" alice_rs Reds"))
	require.NoError(t, err)

	saved := st.events[event.ID]
	require.Len(t, saved.Teams, 1)
	assert.Equal(t, "Reds", saved.Teams[0].Name)

	reply, err := r.Handle(context.Background(),
		msg("!g:example.org", "@bob:example.org", "signup "+event.ID+" alice_rs Blues"))
	require.NoError(t, err)
	assert.Contains(t, reply, "already signed up")
	assert.Len(t, st.events[event.ID].Teams, 1)
}

func TestSignup_EndedEventRejected(t *testing.T) {
	st := newMemStore()
	r := newTestRouter(st, &capturePublisher{}, &fakeSessions{})
	event := seedEvent(t, st, "!g:example.org")
	event.EndsAt = testNow.Add(-time.Minute)
	_, err := st.UpsertEvent(context.Background(), event)
	require.NoError(t, err)

	reply, err := r.Handle(context.Background(),
		msg("!g:example.org", "@alice:example.org", "signup "+event.ID+" alice_rs"))
	require.NoError(t, err)
	assert.Contains(t, reply, "signups are closed")
}

func TestUnsignup_RemovesParticipant(t *testing.T) {
	st := newMemStore()
	pub := &capturePublisher{}
	r := newTestRouter(st, pub, &fakeSessions{})
	event := seedEvent(t, st, "!g:example.org")

	_, err := r.Handle(context.Background(),
		msg("!g:example.org", "@alice:example.org", "signup "+event.ID+" alice_rs"))
	require.NoError(t, err)

	reply, err := r.Handle(context.Background(),
		msg("!g:example.org", "@alice:example.org", "unsignup "+event.ID))
	require.NoError(t, err)
	assert.Contains(t, reply, "removed")
	assert.Empty(t, st.events[event.ID].Teams)
	assert.Len(t, pub.byTopic(bus.WillUnsignupPlayer), 1)

	reply, err = r.Handle(context.Background(),
		msg("!g:example.org", "@alice:example.org", "unsignup "+event.ID))
	require.NoError(t, err)
	assert.Contains(t, reply, "not signed up")
}

func TestDelete_CreatorOnlyAndPublishes(t *testing.T) {
	st := newMemStore()
	pub := &capturePublisher{}
	r := newTestRouter(st, pub, &fakeSessions{})
	event := seedEvent(t, st, "!g:example.org")

	reply, err := r.Handle(context.Background(),
		msg("!other:example.org", "@alice:example.org", "delete "+event.ID))
	require.NoError(t, err)
	assert.Contains(t, reply, "Could not find")
	assert.Contains(t, st.events, event.ID)

	reply, err = r.Handle(context.Background(),
		msg("!g:example.org", "@alice:example.org", "delete "+event.ID))
	require.NoError(t, err)
	assert.Contains(t, reply, "deleted")
	assert.NotContains(t, st.events, event.ID)

	signals := pub.byTopic(bus.WillDeleteEvent)
	require.Len(t, signals, 1)
	assert.Equal(t, event.ID, signals[0].Event.ID)
}

func TestList_ShowsCreatedAndInvited(t *testing.T) {
	st := newMemStore()
	r := newTestRouter(st, &capturePublisher{}, &fakeSessions{})
	seedEvent(t, st, "!g:example.org")

	other := seedEvent(t, st, "!other:example.org")
	other.Name = "Boss bash"
	other.InvitedGuilds = []store.Guild{{GuildID: "!g:example.org"}}
	_, err := st.UpsertEvent(context.Background(), other)
	require.NoError(t, err)

	reply, err := r.Handle(context.Background(), msg("!g:example.org", "@alice:example.org", "list"))
	require.NoError(t, err)
	assert.Contains(t, reply, "XP race")
	assert.Contains(t, reply, "Boss bash")
	assert.Contains(t, reply, "Invited to")
}

func TestList_Empty(t *testing.T) {
	r := newTestRouter(newMemStore(), &capturePublisher{}, &fakeSessions{})

	reply, err := r.Handle(context.Background(), msg("!g:example.org", "@alice:example.org", "list"))
	require.NoError(t, err)
	assert.Contains(t, reply, "no events yet")
}

func TestSettings_ChannelAndAdmins(t *testing.T) {
	st := newMemStore()
	r := newTestRouter(st, &capturePublisher{}, &fakeSessions{})
	g := "!g:example.org"

	reply, err := r.Handle(context.Background(), msg(g, "@alice:example.org", "settings channel !scores:example.org"))
	require.NoError(t, err)
	assert.Contains(t, reply, "!scores:example.org")
	assert.Equal(t, "!scores:example.org", st.settings[g].NotificationChannelID)

	_, err = r.Handle(context.Background(), msg(g, "@alice:example.org", "settings admins add @alice:example.org"))
	require.NoError(t, err)
	assert.Equal(t, []string{"@alice:example.org"}, st.settings[g].Admins)

	// Once restricted, non-admins are locked out of settings
	reply, err = r.Handle(context.Background(), msg(g, "@bob:example.org", "settings show"))
	require.NoError(t, err)
	assert.Contains(t, reply, "admin list")

	reply, err = r.Handle(context.Background(), msg(g, "@alice:example.org", "settings show"))
	require.NoError(t, err)
	assert.Contains(t, reply, "Scoreboard channel")

	_, err = r.Handle(context.Background(), msg(g, "@alice:example.org", "settings admins remove @alice:example.org"))
	require.NoError(t, err)
	assert.Empty(t, st.settings[g].Admins)
}
