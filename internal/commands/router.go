// ABOUTME: First-token command router for inbound operator messages
// ABOUTME: Starts conversations for multi-step commands, answers the rest inline

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/flows"
	"github.com/runeclock/eventbot/internal/store"
)

// Message is one inbound operator message, already mapped to guild terms.
type Message struct {
	GuildID     string
	ChannelID   string
	UserID      string
	DisplayName string
	MessageID   string
	Body        string
}

// Sessions is what the router needs from the conversation manager. Session
// teardown stays inside the manager via the exit keyword.
type Sessions interface {
	Start(ctx context.Context, origin conversation.Origin, flow conversation.Flow) error
}

// Router maps a message's first token to a command. Multi-step commands
// start a conversation; the rest reply inline.
type Router struct {
	deps     flows.Deps
	sessions Sessions
	throttle flows.Refresher
	logger   *slog.Logger
}

// NewRouter creates the command router. Pass nil logger for default.
func NewRouter(deps flows.Deps, sessions Sessions, throttle flows.Refresher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		deps:     deps,
		sessions: sessions,
		throttle: throttle,
		logger:   logger.With("component", "commands"),
	}
}

// adminCommands mutate events or guild configuration and require the sender
// to be on the guild's admin list (an empty list admits everyone).
var adminCommands = map[string]bool{
	"create":   true,
	"edit":     true,
	"end":      true,
	"update":   true,
	"delete":   true,
	"settings": true,
}

// Handle routes one message. The returned string is the inline reply; it is
// empty when a conversation was started and the manager owns the dialog.
func (r *Router) Handle(ctx context.Context, msg Message) (string, error) {
	fields := strings.Fields(msg.Body)
	if len(fields) == 0 {
		return helpText, nil
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	if adminCommands[cmd] {
		ok, err := r.isAdmin(ctx, msg.GuildID, msg.UserID)
		if err != nil {
			return "", fmt.Errorf("checking admin list: %w", err)
		}
		if !ok {
			return "You are not on this guild's admin list.", nil
		}
	}

	r.logger.Debug("command received", "command", cmd, "guild", msg.GuildID, "user", msg.UserID)

	switch cmd {
	case "create":
		return r.startFlow(ctx, msg, flows.NewCreateFlow(r.deps, msg.GuildID))
	case "edit":
		return r.startFlow(ctx, msg, flows.NewEditFlow(r.deps, msg.GuildID))
	case "end":
		return r.startFlow(ctx, msg, flows.NewEndFlow(r.deps, msg.GuildID))
	case "update":
		return r.startFlow(ctx, msg, flows.NewForceUpdateFlow(r.deps, r.throttle, msg.GuildID))
	case "signup":
		return r.signup(ctx, msg, args)
	case "unsignup":
		return r.unsignup(ctx, msg, args)
	case "delete":
		return r.deleteEvent(ctx, msg, args)
	case "list":
		return r.list(ctx, msg)
	case "settings":
		return r.settings(ctx, msg, args)
	case "help":
		return helpText, nil
	}
	return fmt.Sprintf("Unknown command `%s`. Try `help`.", cmd), nil
}

func (r *Router) startFlow(ctx context.Context, msg Message, flow conversation.Flow) (string, error) {
	origin := conversation.Origin{
		UserID:    msg.UserID,
		ChannelID: msg.ChannelID,
		MessageID: msg.MessageID,
	}
	err := r.sessions.Start(ctx, origin, flow)
	if errors.Is(err, conversation.ErrSessionExists) {
		return "You already have an active conversation here; type `exit` to cancel it first.", nil
	}
	if err != nil {
		return "", err
	}
	return "", nil
}

// isAdmin resolves the guild's admin list. A guild without settings has not
// restricted commands yet.
func (r *Router) isAdmin(ctx context.Context, guildID, userID string) (bool, error) {
	settings, err := r.deps.Store.GetSettings(ctx, guildID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return settings.IsAdmin(userID), nil
}

// deleteEvent removes a creator-guild event and announces the deletion so
// every guild's scoreboard gets its tombstone.
func (r *Router) deleteEvent(ctx context.Context, msg Message, args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: `delete <event-id>`", nil
	}

	event, err := r.deps.Store.GetCreatorEvent(ctx, args[0], msg.GuildID)
	if errors.Is(err, store.ErrNotFound) {
		return "Could not find an event with that id created by this guild.", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up event: %w", err)
	}

	if err := r.deps.Store.DeleteEvent(ctx, event.ID); err != nil {
		return "", fmt.Errorf("deleting event: %w", err)
	}

	r.deps.Bus.Publish(bus.Signal{Topic: bus.WillDeleteEvent, Event: event})
	return fmt.Sprintf("Event **%s** has been deleted.", event.Name), nil
}

// list renders the guild's created and invited events.
func (r *Router) list(ctx context.Context, msg Message) (string, error) {
	created, err := r.deps.Store.ListGuildEvents(ctx, msg.GuildID)
	if err != nil {
		return "", fmt.Errorf("listing events: %w", err)
	}
	invited, err := r.deps.Store.ListInvitedEvents(ctx, msg.GuildID)
	if err != nil {
		return "", fmt.Errorf("listing invited events: %w", err)
	}

	if len(created) == 0 && len(invited) == 0 {
		return "This guild has no events yet. Start one with `create`.", nil
	}

	now := r.now()
	var b strings.Builder
	if len(created) > 0 {
		b.WriteString("**Events**\n")
		for _, e := range created {
			writeEventLine(&b, e, now)
		}
	}
	if len(invited) > 0 {
		b.WriteString("**Invited to**\n")
		for _, e := range invited {
			writeEventLine(&b, e, now)
		}
	}
	return b.String(), nil
}

func writeEventLine(b *strings.Builder, e *store.Event, now time.Time) {
	end := e.EndsAt.UTC().Format("2006-01-02")
	if e.OpenEnded() {
		end = "tbd"
	}
	fmt.Fprintf(b, "- **%s** (%s) %s → %s — `%s`\n",
		e.Name, e.StatusAt(now), e.StartsAt.UTC().Format("2006-01-02"), end, e.ID)
}

// settings configures the guild: scoreboard channel and admin list.
func (r *Router) settings(ctx context.Context, msg Message, args []string) (string, error) {
	current, err := r.deps.Store.GetSettings(ctx, msg.GuildID)
	if errors.Is(err, store.ErrNotFound) {
		current = &store.Settings{GuildID: msg.GuildID}
	} else if err != nil {
		return "", fmt.Errorf("loading settings: %w", err)
	}

	if len(args) == 0 || args[0] == "show" {
		return renderSettings(current), nil
	}

	switch args[0] {
	case "channel":
		if len(args) != 2 {
			return "Usage: `settings channel <channel-id>`", nil
		}
		current.NotificationChannelID = args[1]
		if err := r.deps.Store.SaveSettings(ctx, current); err != nil {
			return "", fmt.Errorf("saving settings: %w", err)
		}
		return fmt.Sprintf("Scoreboards will be posted in `%s`.", args[1]), nil

	case "admins":
		if len(args) != 3 || (args[1] != "add" && args[1] != "remove") {
			return "Usage: `settings admins add|remove <user-id>`", nil
		}
		userID := args[2]
		if args[1] == "add" {
			for _, a := range current.Admins {
				if a == userID {
					return fmt.Sprintf("`%s` is already an admin.", userID), nil
				}
			}
			current.Admins = append(current.Admins, userID)
		} else {
			kept := current.Admins[:0]
			for _, a := range current.Admins {
				if a != userID {
					kept = append(kept, a)
				}
			}
			current.Admins = kept
		}
		if err := r.deps.Store.SaveSettings(ctx, current); err != nil {
			return "", fmt.Errorf("saving settings: %w", err)
		}
		return "Admin list updated.", nil
	}
	return "Usage: `settings [show|channel <id>|admins add|remove <user>]`", nil
}

func renderSettings(s *store.Settings) string {
	var b strings.Builder
	b.WriteString("**Guild settings**\n")
	channel := s.NotificationChannelID
	if channel == "" {
		channel = "not set"
	}
	fmt.Fprintf(&b, "- Scoreboard channel: `%s`\n", channel)
	if len(s.Admins) == 0 {
		b.WriteString("- Admins: everyone (no list configured)\n")
	} else {
		fmt.Fprintf(&b, "- Admins: %s\n", strings.Join(s.Admins, ", "))
	}
	return b.String()
}

func (r *Router) now() time.Time {
	if r.deps.Now != nil {
		return r.deps.Now()
	}
	return time.Now()
}

const helpText = "**Commands**\n" +
	"- `create` — schedule a new event (conversation)\n" +
	"- `edit` — change an event's name or window (conversation)\n" +
	"- `end` — end a running event now (conversation)\n" +
	"- `update` — force a scoreboard refresh (conversation)\n" +
	"- `signup <event-id> <account> [team]` — join an event\n" +
	"- `unsignup <event-id>` — leave an event\n" +
	"- `delete <event-id>` — delete an event\n" +
	"- `list` — show this guild's events\n" +
	"- `settings` — show or change guild settings\n" +
	"- `exit` — cancel your active conversation\n"
