// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Nested event structure is stored as JSON columns, guild links as rows

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			event_id            TEXT PRIMARY KEY,
			name                TEXT NOT NULL,
			starts_at           TEXT NOT NULL,
			ends_at             TEXT NOT NULL,
			global              INTEGER NOT NULL DEFAULT 0,
			tracker_json        TEXT NOT NULL,
			teams_json          TEXT NOT NULL,
			creator_guild_json  TEXT NOT NULL,
			invited_guilds_json TEXT,
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_window ON events(starts_at, ends_at);

		CREATE TABLE IF NOT EXISTS event_guilds (
			event_id TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			role     TEXT NOT NULL,

			PRIMARY KEY (event_id, guild_id),
			FOREIGN KEY (event_id) REFERENCES events(event_id),
			CHECK (role IN ('creator', 'invited'))
		);

		CREATE INDEX IF NOT EXISTS idx_event_guilds_guild ON event_guilds(guild_id, role);

		CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id                TEXT PRIMARY KEY,
			admins_json             TEXT,
			notification_channel_id TEXT NOT NULL DEFAULT '',
			updated_at              TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ts encodes a time for storage. RFC3339 in UTC sorts lexicographically,
// so window queries compare directly in SQL.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

const eventColumns = `event_id, name, starts_at, ends_at, global,
	tracker_json, teams_json, creator_guild_json, invited_guilds_json,
	created_at, updated_at`

const eventColumnsQualified = `e.event_id, e.name, e.starts_at, e.ends_at, e.global,
	e.tracker_json, e.teams_json, e.creator_guild_json, e.invited_guilds_json,
	e.created_at, e.updated_at`

// scanEvent reads one event row into an Event, decoding the JSON columns.
func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var (
		e                                  Event
		startsAt, endsAt, created, updated string
		global                             int
		trackerJSON, teamsJSON             string
		creatorJSON                        string
		invitedJSON                        sql.NullString
	)
	err := row.Scan(&e.ID, &e.Name, &startsAt, &endsAt, &global,
		&trackerJSON, &teamsJSON, &creatorJSON, &invitedJSON,
		&created, &updated)
	if err != nil {
		return nil, err
	}

	if e.StartsAt, err = parseTS(startsAt); err != nil {
		return nil, fmt.Errorf("parsing starts_at: %w", err)
	}
	if e.EndsAt, err = parseTS(endsAt); err != nil {
		return nil, fmt.Errorf("parsing ends_at: %w", err)
	}
	if e.CreatedAt, err = parseTS(created); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	e.Global = global != 0

	if err := json.Unmarshal([]byte(trackerJSON), &e.Tracker); err != nil {
		return nil, fmt.Errorf("decoding tracker: %w", err)
	}
	if err := json.Unmarshal([]byte(teamsJSON), &e.Teams); err != nil {
		return nil, fmt.Errorf("decoding teams: %w", err)
	}
	if err := json.Unmarshal([]byte(creatorJSON), &e.CreatorGuild); err != nil {
		return nil, fmt.Errorf("decoding creator guild: %w", err)
	}
	if invitedJSON.Valid && invitedJSON.String != "" {
		if err := json.Unmarshal([]byte(invitedJSON.String), &e.InvitedGuilds); err != nil {
			return nil, fmt.Errorf("decoding invited guilds: %w", err)
		}
	}
	return &e, nil
}

// GetEvent returns the event with the given id, or ErrNotFound.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE event_id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// GetCreatorEvent returns the event only if the given guild is its creator.
func (s *SQLiteStore) GetCreatorEvent(ctx context.Context, id, guildID string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumnsQualified+` FROM events e
		 JOIN event_guilds g ON g.event_id = e.event_id
		 WHERE e.event_id = ? AND g.guild_id = ? AND g.role = 'creator'`,
		id, guildID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// ListGuildEvents returns every event the guild created, newest first.
func (s *SQLiteStore) ListGuildEvents(ctx context.Context, guildID string) ([]*Event, error) {
	return s.listByGuildRole(ctx, guildID, "creator")
}

// ListInvitedEvents returns every event the guild was invited to, newest first.
func (s *SQLiteStore) ListInvitedEvents(ctx context.Context, guildID string) ([]*Event, error) {
	return s.listByGuildRole(ctx, guildID, "invited")
}

func (s *SQLiteStore) listByGuildRole(ctx context.Context, guildID, role string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumnsQualified+` FROM events e
		 JOIN event_guilds g ON g.event_id = e.event_id
		 WHERE g.guild_id = ? AND g.role = ?
		 ORDER BY e.created_at DESC`,
		guildID, role)
	if err != nil {
		return nil, fmt.Errorf("querying guild events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListEventsBetween returns events whose start or end falls inside the window.
func (s *SQLiteStore) ListEventsBetween(ctx context.Context, start, end time.Time) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE (starts_at >= ? AND starts_at <= ?)
		    OR (ends_at >= ? AND ends_at <= ?)
		 ORDER BY starts_at`,
		ts(start), ts(end), ts(start), ts(end))
	if err != nil {
		return nil, fmt.Errorf("querying events between dates: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListRunningEvents returns events whose window contains the given instant.
func (s *SQLiteStore) ListRunningEvents(ctx context.Context, now time.Time) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE starts_at <= ? AND ends_at > ?
		 ORDER BY starts_at`,
		ts(now), ts(now))
	if err != nil {
		return nil, fmt.Errorf("querying running events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpsertEvent persists the event, assigning an id on first save.
func (s *SQLiteStore) UpsertEvent(ctx context.Context, event *Event) (*Event, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	e := event.Clone()
	now := time.Now().UTC().Truncate(time.Second)
	if e.ID == "" {
		e.ID = uuid.New().String()
		e.CreatedAt = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	trackerJSON, err := json.Marshal(e.Tracker)
	if err != nil {
		return nil, fmt.Errorf("encoding tracker: %w", err)
	}
	teamsJSON, err := json.Marshal(e.Teams)
	if err != nil {
		return nil, fmt.Errorf("encoding teams: %w", err)
	}
	creatorJSON, err := json.Marshal(e.CreatorGuild)
	if err != nil {
		return nil, fmt.Errorf("encoding creator guild: %w", err)
	}
	invitedJSON, err := json.Marshal(e.InvitedGuilds)
	if err != nil {
		return nil, fmt.Errorf("encoding invited guilds: %w", err)
	}

	global := 0
	if e.Global {
		global = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (event_id, name, starts_at, ends_at, global,
			tracker_json, teams_json, creator_guild_json, invited_guilds_json,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			name = excluded.name,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			global = excluded.global,
			tracker_json = excluded.tracker_json,
			teams_json = excluded.teams_json,
			creator_guild_json = excluded.creator_guild_json,
			invited_guilds_json = excluded.invited_guilds_json,
			updated_at = excluded.updated_at`,
		e.ID, e.Name, ts(e.StartsAt), ts(e.EndsAt), global,
		string(trackerJSON), string(teamsJSON), string(creatorJSON), string(invitedJSON),
		ts(e.CreatedAt), ts(e.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("upserting event: %w", err)
	}

	// Guild link rows are derived from the JSON columns; rebuild them.
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_guilds WHERE event_id = ?`, e.ID); err != nil {
		return nil, fmt.Errorf("clearing guild links: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_guilds (event_id, guild_id, role) VALUES (?, ?, 'creator')`,
		e.ID, e.CreatorGuild.GuildID); err != nil {
		return nil, fmt.Errorf("linking creator guild: %w", err)
	}
	for _, g := range e.InvitedGuilds {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_guilds (event_id, guild_id, role) VALUES (?, ?, 'invited')`,
			e.ID, g.GuildID); err != nil {
			return nil, fmt.Errorf("linking invited guild: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing event: %w", err)
	}

	s.logger.Debug("event persisted", "event_id", e.ID, "name", e.Name)
	return e, nil
}

// DeleteEvent removes the event and its guild links. Deleting a missing
// event is a no-op.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_guilds WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("deleting guild links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("event deleted", "event_id", id)
	return nil
}

// GetSettings returns the guild's settings, or ErrNotFound.
func (s *SQLiteStore) GetSettings(ctx context.Context, guildID string) (*Settings, error) {
	var (
		cfg        Settings
		adminsJSON sql.NullString
		updated    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT guild_id, admins_json, notification_channel_id, updated_at
		 FROM guild_settings WHERE guild_id = ?`, guildID).
		Scan(&cfg.GuildID, &adminsJSON, &cfg.NotificationChannelID, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	if adminsJSON.Valid && adminsJSON.String != "" {
		if err := json.Unmarshal([]byte(adminsJSON.String), &cfg.Admins); err != nil {
			return nil, fmt.Errorf("decoding admins: %w", err)
		}
	}
	if cfg.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &cfg, nil
}

// SaveSettings inserts or replaces the guild's settings.
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings *Settings) error {
	adminsJSON, err := json.Marshal(settings.Admins)
	if err != nil {
		return fmt.Errorf("encoding admins: %w", err)
	}
	settings.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, admins_json, notification_channel_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			admins_json = excluded.admins_json,
			notification_channel_id = excluded.notification_channel_id,
			updated_at = excluded.updated_at`,
		settings.GuildID, string(adminsJSON), settings.NotificationChannelID, ts(settings.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
