// Package conversation provides the generic multi-turn dialog driver.
//
// # Overview
//
// A Flow is a finite-state machine: each state renders a prompt, each
// inbound answer advances to the next state. The Manager owns the sessions
// (at most one per operator+channel), routes inbound messages to the right
// flow, and sends prompts through the dispatch layer.
//
// The driver is deliberately dumb:
//
//   - It never inspects answers; validation and "no" routing live in each
//     flow's Advance.
//   - Re-ask states are ordinary states whose prompt explains the rejection,
//     so invalid input loops without special-casing.
//   - An empty Render output means completion: the driver sends the flow's
//     closing message (or a default) and removes the session.
//
// The global exit keyword is the one piece of routing the driver owns: it is
// checked before anything else and force-terminates the session in any state.
//
// Concrete flows (create-event, edit-event, end-event, force-update) live in
// the flows package.
package conversation
