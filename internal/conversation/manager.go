// ABOUTME: Generic conversation driver: one session per operator+channel
// ABOUTME: Routes inbound messages, handles the global exit keyword

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/runeclock/eventbot/internal/dispatch"
)

// ExitKeyword force-terminates a session from any state. It is checked
// before any other routing.
const ExitKeyword = "exit"

// DefaultCloseMessage is sent when a flow completes without its own.
const DefaultCloseMessage = "Done."

// cancelMessage is sent when the operator exits a session.
const cancelMessage = "Cancelled."

// ErrSessionExists is returned when the operator already has an active
// session in this channel.
var ErrSessionExists = errors.New("conversation already active")

// PromptSender is what the manager needs to talk back to the operator.
type PromptSender interface {
	Send(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)
}

type session struct {
	// mu serializes message handling: exactly one Advance per inbound
	// message, even when the transport delivers messages concurrently.
	mu     sync.Mutex
	flow   Flow
	state  State
	origin Origin
	done   bool
}

// Manager drives conversation sessions. At most one session exists per
// operator+channel; sessions end on a terminal state or the exit keyword.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	sender   PromptSender
	logger   *slog.Logger
}

// NewManager creates a session manager. Pass nil logger for default.
func NewManager(sender PromptSender, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*session),
		sender:   sender,
		logger:   logger.With("component", "conversation"),
	}
}

func key(o Origin) string {
	return o.UserID + "\x00" + o.ChannelID
}

// Start creates a session for the origin and sends the initial prompt.
// Returns ErrSessionExists if the operator already has one in this channel.
func (m *Manager) Start(ctx context.Context, origin Origin, flow Flow) error {
	// Hold the session lock through the init hook so a message arriving
	// right after the slot is reserved waits for the initial state.
	s := &session{flow: flow, origin: origin}
	s.mu.Lock()
	defer s.mu.Unlock()

	m.mu.Lock()
	if _, ok := m.sessions[key(origin)]; ok {
		m.mu.Unlock()
		return ErrSessionExists
	}
	m.sessions[key(origin)] = s
	m.mu.Unlock()

	state, err := flow.Start(ctx)
	if err != nil {
		m.end(s)
		return fmt.Errorf("starting conversation: %w", err)
	}
	s.state = state

	prompt := flow.Render(state)
	if prompt == "" {
		// Completed during init (e.g. lookup-only flows that found nothing)
		m.finish(ctx, s)
		return nil
	}

	m.send(ctx, origin, prompt, origin.MessageID)
	m.logger.Debug("session started", "user", origin.UserID, "channel", origin.ChannelID)
	return nil
}

// HandleMessage routes an inbound message to the operator's session, if any.
// Returns true when the message was consumed by a session.
func (m *Manager) HandleMessage(ctx context.Context, origin Origin, text string) bool {
	m.mu.Lock()
	s, ok := m.sessions[key(origin)]
	m.mu.Unlock()
	if !ok {
		return false
	}

	// One message at a time per session. A message that was queued behind
	// the one that finished the session falls through to command routing.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}

	// The exit keyword wins over all other routing, in any state.
	if strings.EqualFold(strings.TrimSpace(text), ExitKeyword) {
		m.end(s)
		m.send(ctx, origin, cancelMessage, "")
		m.logger.Debug("session cancelled", "user", origin.UserID, "channel", origin.ChannelID)
		return true
	}

	next, err := s.flow.Advance(ctx, s.state, text)
	if err != nil {
		// Flows route expected rejections through re-ask states; an error
		// here is an internal fault. Keep the state so the operator can retry.
		m.logger.Error("advance failed",
			"user", origin.UserID,
			"channel", origin.ChannelID,
			"state", s.state,
			"error", err)
		m.send(ctx, origin, "Something went wrong, please try again.", "")
		return true
	}
	s.state = next

	prompt := s.flow.Render(next)
	if prompt == "" {
		m.finish(ctx, s)
		return true
	}

	m.send(ctx, origin, prompt, "")
	return true
}

// Stop force-terminates the origin's session, if any.
func (m *Manager) Stop(ctx context.Context, origin Origin) bool {
	m.mu.Lock()
	s, ok := m.sessions[key(origin)]
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	m.end(s)
	m.send(ctx, origin, cancelMessage, "")
	return true
}

// Active reports whether the origin has a running session.
func (m *Manager) Active(origin Origin) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[key(origin)]
	return ok
}

func (m *Manager) finish(ctx context.Context, s *session) {
	m.end(s)
	msg := s.flow.CloseMessage()
	if msg == "" {
		msg = DefaultCloseMessage
	}
	m.send(ctx, s.origin, msg, "")
	m.logger.Debug("session completed", "user", s.origin.UserID, "channel", s.origin.ChannelID)
}

// end marks the session terminal and frees the operator's slot. Callers
// hold s.mu.
func (m *Manager) end(s *session) {
	s.done = true
	m.mu.Lock()
	delete(m.sessions, key(s.origin))
	m.mu.Unlock()
}

func (m *Manager) send(ctx context.Context, origin Origin, text, replyTo string) {
	_, err := m.sender.Send(ctx, &dispatch.Request{
		ChannelID: origin.ChannelID,
		Content:   text,
		ReplyTo:   replyTo,
	})
	if err != nil {
		m.logger.Error("sending prompt failed",
			"channel", origin.ChannelID,
			"error", err)
	}
}
