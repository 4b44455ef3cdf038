// ABOUTME: Matrix sync loop routing inbound messages to commands and sessions
// ABOUTME: Prefixed text is always a command; bare text goes to active conversations

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/runeclock/eventbot/internal/commands"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/dispatch"
)

// Sessions is what the bridge needs from the conversation manager.
type Sessions interface {
	HandleMessage(ctx context.Context, origin conversation.Origin, text string) bool
}

// CommandHandler is what the bridge needs from the command router.
type CommandHandler interface {
	Handle(ctx context.Context, msg commands.Message) (string, error)
}

// Replier sends command replies back into the room.
type Replier interface {
	Send(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)
}

// Bridge drives the Matrix sync loop. Each room doubles as the guild and the
// command channel: the room id is the guild id.
type Bridge struct {
	client       *Client
	sender       Replier
	sessions     Sessions
	router       CommandHandler
	prefix       string
	allowedRooms []string
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the bridge.
func New(client *Client, sender Replier, sessions Sessions, router CommandHandler,
	prefix string, allowedRooms []string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client:       client,
		sender:       sender,
		sessions:     sessions,
		router:       router,
		prefix:       prefix,
		allowedRooms: allowedRooms,
		logger:       logger.With("component", "bridge"),
	}
}

// Run starts the sync loop and blocks until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	syncer, ok := b.client.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	b.logger.Info("connecting to matrix homeserver")

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.client.matrix.SyncWithContext(b.ctx)
	}()

	b.logger.Info("bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down bridge")
		b.cancel()
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent processes incoming Matrix messages.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	// Ignore our own messages
	if evt.Sender == b.client.UserID() {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	if !b.isRoomAllowed(roomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	// Process in a goroutine to not block sync
	go b.route(b.ctx, evt, content.Body)
}

// route sends prefixed text to the command router and bare text to the
// sender's active conversation. Commands win even mid-conversation, so a
// second command gets the router's rejection instead of being swallowed
// as an answer.
func (b *Bridge) route(ctx context.Context, evt *event.Event, body string) {
	cmd, ok := b.stripPrefix(body)
	if !ok {
		origin := conversation.Origin{
			UserID:    evt.Sender.String(),
			ChannelID: evt.RoomID.String(),
			MessageID: evt.ID.String(),
		}
		b.sessions.HandleMessage(ctx, origin, body)
		return
	}

	reply, err := b.router.Handle(ctx, commands.Message{
		GuildID:     evt.RoomID.String(),
		ChannelID:   evt.RoomID.String(),
		UserID:      evt.Sender.String(),
		DisplayName: localpart(evt.Sender),
		MessageID:   evt.ID.String(),
		Body:        cmd,
	})
	if err != nil {
		b.logger.Error("command failed", "room", evt.RoomID, "error", err)
		reply = "Something went wrong, please try again."
	}
	if reply == "" {
		return
	}

	if _, err := b.sender.Send(ctx, &dispatch.Request{
		ChannelID: evt.RoomID.String(),
		Content:   reply,
		ReplyTo:   evt.ID.String(),
	}); err != nil {
		b.logger.Error("reply send failed", "room", evt.RoomID, "error", err)
	}
}

// stripPrefix returns the command text without the prefix. A bare prefix
// means "help".
func (b *Bridge) stripPrefix(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	if b.prefix == "" {
		return trimmed, trimmed != ""
	}
	if !strings.HasPrefix(trimmed, b.prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(trimmed, b.prefix)
	if rest != "" && !strings.HasPrefix(rest, " ") {
		// "!eventsfoo" is not a command
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "help", true
	}
	return rest, true
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.allowedRooms) == 0 {
		return true
	}
	for _, allowed := range b.allowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

// localpart extracts the local part of a Matrix user id for display.
func localpart(userID id.UserID) string {
	s := strings.TrimPrefix(userID.String(), "@")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}
