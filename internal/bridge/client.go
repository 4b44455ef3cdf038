// ABOUTME: Matrix chat client implementing the dispatch platform interface
// ABOUTME: Markdown content is rendered to HTML formatted bodies on send

package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Client wraps a mautrix client as the platform side of the dispatch layer.
type Client struct {
	matrix *mautrix.Client
	logger *slog.Logger
}

// NewClient creates the Matrix client. Login happens separately so callers
// control startup ordering.
func NewClient(homeserver string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	matrix, err := mautrix.NewClient(homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return &Client{
		matrix: matrix,
		logger: logger.With("component", "bridge"),
	}, nil
}

// Login authenticates with username and password, storing the credentials on
// the client for the sync loop.
func (c *Client) Login(ctx context.Context, username, password string) error {
	_, err := c.matrix.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: username,
		},
		Password:         password,
		StoreCredentials: true,
	})
	if err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}
	c.logger.Info("logged in", "user_id", c.matrix.UserID)
	return nil
}

// UserID returns the bot's own Matrix user id, valid after Login.
func (c *Client) UserID() id.UserID {
	return c.matrix.UserID
}

// SendMessage posts markdown to a room with an HTML formatted body, returning
// the new event id.
func (c *Client) SendMessage(ctx context.Context, channelID, markdown, replyTo string) (string, error) {
	content := c.messageContent(markdown)
	if replyTo != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(replyTo)},
		}
	}

	resp, err := c.matrix.SendMessageEvent(ctx, id.RoomID(channelID), event.EventMessage, content)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return resp.EventID.String(), nil
}

// EditMessage replaces an existing message's content.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, markdown string) error {
	content := c.messageContent(markdown)
	content.SetEdit(id.EventID(messageID))

	if _, err := c.matrix.SendMessageEvent(ctx, id.RoomID(channelID), event.EventMessage, content); err != nil {
		return fmt.Errorf("editing message: %w", err)
	}
	return nil
}

// DeleteMessage redacts a message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if _, err := c.matrix.RedactEvent(ctx, id.RoomID(channelID), id.EventID(messageID)); err != nil {
		return fmt.Errorf("redacting message: %w", err)
	}
	return nil
}

// messageContent builds a text message with the markdown rendered to HTML.
// If rendering fails the plain body still goes out.
func (c *Client) messageContent(markdown string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    markdown,
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		c.logger.Warn("markdown render failed, sending plain", "error", err)
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = buf.String()
	return content
}
