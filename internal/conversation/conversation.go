// ABOUTME: Flow interface and shared states for multi-turn operator dialogs
// ABOUTME: Concrete flows define their own state enums over this contract

package conversation

import "context"

// State identifies a step in a flow's state machine. Each concrete flow
// defines its own enumeration; Done is shared.
type State int

// Done is the terminal state for every flow.
const Done State = -1

// Flow is one concrete multi-turn dialog. The generic driver holds only this
// interface; it never knows which flow it is running.
type Flow interface {
	// Start runs the flow's init hook and returns the initial state.
	Start(ctx context.Context) (State, error)

	// Render returns the prompt for a state. An empty prompt means the flow
	// is complete: the driver sends the closing message and ends the session.
	// Re-ask states are ordinary states whose prompt explains the rejection.
	Render(state State) string

	// Advance consumes the operator's answer and returns the next state. It
	// may call persistence or the network. Where a confirmation's "no"
	// returns to is the flow's own business, not the driver's.
	Advance(ctx context.Context, state State, answer string) (State, error)

	// CloseMessage is the terminal message; empty selects the default.
	CloseMessage() string
}

// Origin binds a session to the message that started it.
type Origin struct {
	UserID    string
	ChannelID string
	MessageID string
}
