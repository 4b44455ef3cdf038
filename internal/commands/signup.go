// ABOUTME: Signup and unsignup commands mutating event membership
// ABOUTME: Membership changes emit the matching will-signal for a refresh

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/store"
)

// defaultTeamName holds participants who did not pick a team.
const defaultTeamName = "Default"

// signup adds one of the sender's game accounts to an event, optionally on a
// named team. Account names are unique per event.
func (r *Router) signup(ctx context.Context, msg Message, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "Usage: `signup <event-id> <account> [team]`", nil
	}
	eventID, account := args[0], args[1]
	teamName := defaultTeamName
	if len(args) == 3 {
		teamName = args[2]
	}

	event, err := r.lookupForGuild(ctx, eventID, msg.GuildID)
	if errors.Is(err, store.ErrNotFound) {
		return "Could not find an event with that id for this guild.", nil
	}
	if err != nil {
		return "", err
	}

	if event.StatusAt(r.now()) == store.StatusEnded {
		return fmt.Sprintf("**%s** has already ended; signups are closed.", event.Name), nil
	}
	if event.HasAccount(account) {
		return fmt.Sprintf("`%s` is already signed up for **%s**.", account, event.Name), nil
	}

	addAccount(event, teamName, store.Participant{
		UserID:      msg.UserID,
		DisplayName: msg.DisplayName,
	}, account)

	saved, err := r.deps.Store.UpsertEvent(ctx, event)
	if err != nil {
		return "", fmt.Errorf("saving signup: %w", err)
	}

	r.deps.Bus.Publish(bus.Signal{Topic: bus.WillSignUpPlayer, Event: saved, UserID: msg.UserID})
	return fmt.Sprintf("`%s` signed up for **%s**.", account, saved.Name), nil
}

// unsignup removes the sender and all their accounts from an event.
func (r *Router) unsignup(ctx context.Context, msg Message, args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: `unsignup <event-id>`", nil
	}

	event, err := r.lookupForGuild(ctx, args[0], msg.GuildID)
	if errors.Is(err, store.ErrNotFound) {
		return "Could not find an event with that id for this guild.", nil
	}
	if err != nil {
		return "", err
	}

	if !removeParticipant(event, msg.UserID) {
		return fmt.Sprintf("You are not signed up for **%s**.", event.Name), nil
	}

	saved, err := r.deps.Store.UpsertEvent(ctx, event)
	if err != nil {
		return "", fmt.Errorf("saving withdrawal: %w", err)
	}

	r.deps.Bus.Publish(bus.Signal{Topic: bus.WillUnsignupPlayer, Event: saved, UserID: msg.UserID})
	return fmt.Sprintf("You have been removed from **%s**.", saved.Name), nil
}

// lookupForGuild resolves an event the guild created or was invited to.
func (r *Router) lookupForGuild(ctx context.Context, id, guildID string) (*store.Event, error) {
	event, err := r.deps.Store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("looking up event: %w", err)
	}
	for _, g := range event.Guilds() {
		if g.GuildID == guildID {
			return event, nil
		}
	}
	return nil, store.ErrNotFound
}

// addAccount places the account under the participant on the named team,
// creating the team or participant entry as needed.
func addAccount(e *store.Event, teamName string, p store.Participant, account string) {
	ti := -1
	for i := range e.Teams {
		if e.Teams[i].Name == teamName {
			ti = i
			break
		}
	}
	if ti == -1 {
		e.Teams = append(e.Teams, store.Team{Name: teamName})
		ti = len(e.Teams) - 1
	}

	team := &e.Teams[ti]
	for i := range team.Participants {
		if team.Participants[i].UserID == p.UserID {
			team.Participants[i].Accounts = append(team.Participants[i].Accounts,
				store.Account{Name: account})
			return
		}
	}
	p.Accounts = []store.Account{{Name: account}}
	team.Participants = append(team.Participants, p)
}

// removeParticipant drops the user from every team, pruning teams left empty.
func removeParticipant(e *store.Event, userID string) bool {
	removed := false
	teams := e.Teams[:0]
	for _, t := range e.Teams {
		participants := t.Participants[:0]
		for _, p := range t.Participants {
			if p.UserID == userID {
				removed = true
				continue
			}
			participants = append(participants, p)
		}
		t.Participants = participants
		if len(t.Participants) > 0 {
			teams = append(teams, t)
		}
	}
	e.Teams = teams
	return removed
}
