// ABOUTME: Dispatch layer turning send/edit/delete intents into tagged Responses
// ABOUTME: Oversized content is chunked; per-chunk failure never fails the call

package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/runeclock/eventbot/internal/metrics"
)

// ChatClient defines what dispatch needs from the chat platform. All calls
// are independently failable; a failed call yields "no result" for that item.
type ChatClient interface {
	// SendMessage posts markdown content to a channel, optionally as a reply,
	// and returns the new message id.
	SendMessage(ctx context.Context, channelID, markdown, replyTo string) (string, error)

	// EditMessage replaces the content of an existing message.
	EditMessage(ctx context.Context, channelID, messageID, markdown string) error

	// DeleteMessage removes a message. Deleting a missing message is an error
	// here; callers decide whether that matters.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// DefaultChunkLimit is the per-message content limit before chunking.
const DefaultChunkLimit = 4000

// Request describes one send/edit/delete intent.
type Request struct {
	// Tag correlates the Response to this request. Generated when empty.
	Tag string

	ChannelID string
	// MessageID targets an existing message (edit/delete only).
	MessageID string
	Content   string
	// ReplyTo attaches reply context; only the first chunk carries it.
	ReplyTo string
}

// Response is the single completion for one Request. MessageIDs holds the
// resulting message handles in chunk order; failed chunks are simply absent.
type Response struct {
	Tag        string
	MessageIDs []string
}

// Dispatcher converts requests into platform calls, one Response per request
// regardless of chunking.
type Dispatcher struct {
	client     ChatClient
	chunkLimit int
	logger     *slog.Logger
}

// New creates a dispatcher. Pass nil logger for default.
func New(client ChatClient, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:     client,
		chunkLimit: DefaultChunkLimit,
		logger:     logger.With("component", "dispatch"),
	}
}

// Send posts the request's content, splitting it into ordered chunks at line
// boundaries when it exceeds the platform limit. A failed chunk yields no
// handle for that chunk; only a scheduling fault (cancelled context) fails
// the call itself.
func (d *Dispatcher) Send(ctx context.Context, req *Request) (*Response, error) {
	resp := &Response{Tag: tagOf(req)}

	chunks := SplitChunks(req.Content, d.chunkLimit)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dispatch cancelled: %w", err)
		}

		replyTo := ""
		if i == 0 {
			replyTo = req.ReplyTo
		}

		id, err := d.client.SendMessage(ctx, req.ChannelID, chunk, replyTo)
		if err != nil {
			d.logger.Warn("send chunk failed",
				"tag", resp.Tag,
				"channel", req.ChannelID,
				"chunk", i,
				"error", err)
			continue
		}
		metrics.MessagesSent.Inc()
		resp.MessageIDs = append(resp.MessageIDs, id)
	}

	d.logger.Debug("send dispatched",
		"tag", resp.Tag,
		"channel", req.ChannelID,
		"chunks", len(chunks),
		"delivered", len(resp.MessageIDs))
	return resp, nil
}

// Edit replaces an existing message's content. No chunking: edits target one
// message. A platform failure resolves to an empty Response, not an error.
func (d *Dispatcher) Edit(ctx context.Context, req *Request) (*Response, error) {
	resp := &Response{Tag: tagOf(req)}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dispatch cancelled: %w", err)
	}

	if err := d.client.EditMessage(ctx, req.ChannelID, req.MessageID, req.Content); err != nil {
		d.logger.Warn("edit failed",
			"tag", resp.Tag,
			"channel", req.ChannelID,
			"message", req.MessageID,
			"error", err)
		return resp, nil
	}
	resp.MessageIDs = []string{req.MessageID}
	return resp, nil
}

// Delete removes an existing message. Missing messages resolve to an empty
// Response rather than an error.
func (d *Dispatcher) Delete(ctx context.Context, req *Request) (*Response, error) {
	resp := &Response{Tag: tagOf(req)}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dispatch cancelled: %w", err)
	}

	if err := d.client.DeleteMessage(ctx, req.ChannelID, req.MessageID); err != nil {
		d.logger.Debug("delete failed",
			"tag", resp.Tag,
			"channel", req.ChannelID,
			"message", req.MessageID,
			"error", err)
		return resp, nil
	}
	resp.MessageIDs = []string{req.MessageID}
	return resp, nil
}

func tagOf(req *Request) string {
	if req.Tag != "" {
		return req.Tag
	}
	return uuid.New().String()
}
