// ABOUTME: HTTP client for the OSRS hiscores index_lite CSV endpoint
// ABOUTME: Parses skill and activity rows into snapshots, with a TTL cache

package hiscores

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/runeclock/eventbot/internal/store"
)

// ErrPlayerNotFound means the account does not exist on the hiscores.
var ErrPlayerNotFound = errors.New("player not found")

// ErrServiceUnavailable means the hiscores service could not be reached or
// returned a server error.
var ErrServiceUnavailable = errors.New("hiscores unavailable")

// DefaultBaseURL is the official OSRS hiscores endpoint.
const DefaultBaseURL = "https://secure.runescape.com/m=hiscore_oldschool"

// Skills lists skill rows in index_lite column order.
var Skills = []string{
	"overall", "attack", "defence", "strength", "hitpoints", "ranged",
	"prayer", "magic", "cooking", "woodcutting", "fletching", "fishing",
	"firemaking", "crafting", "smithing", "mining", "herblore", "agility",
	"thieving", "slayer", "farming", "runecrafting", "hunter", "construction",
}

// Activities lists activity rows in index_lite column order. Clue tiers come
// first, bosses follow. The endpoint appends new bosses over time; rows past
// the end of this list are ignored.
var Activities = []string{
	"league_points", "deadman_points",
	"bounty_hunter_hunter", "bounty_hunter_rogue",
	"clue_all", "clue_beginner", "clue_easy", "clue_medium",
	"clue_hard", "clue_elite", "clue_master",
	"lms_rank", "pvp_arena_rank", "soul_wars_zeal", "rifts_closed",
	"abyssal_sire", "alchemical_hydra", "barrows_chests", "bryophyta",
	"callisto", "cerberus", "chambers_of_xeric", "chambers_of_xeric_cm",
	"chaos_elemental", "chaos_fanatic", "commander_zilyana", "corporeal_beast",
	"crazy_archaeologist", "dagannoth_prime", "dagannoth_rex",
	"dagannoth_supreme", "deranged_archaeologist", "general_graardor",
	"giant_mole", "grotesque_guardians", "hespori", "kalphite_queen",
	"king_black_dragon", "kraken", "kreearra", "kril_tsutsaroth",
	"mimic", "nex", "nightmare", "phosanis_nightmare", "obor",
	"sarachnis", "scorpia", "skotizo", "tempoross", "the_gauntlet",
	"the_corrupted_gauntlet", "theatre_of_blood", "theatre_of_blood_hm",
	"thermonuclear_smoke_devil", "tombs_of_amascut", "tombs_of_amascut_em",
	"tzkal_zuk", "tztok_jad", "venenatis", "vetion", "vorkath",
	"wintertodt", "zalcano", "zulrah",
}

// Client fetches player snapshots from the hiscores API.
type Client struct {
	http    *http.Client
	baseURL string
	cache   *snapshotCache
	logger  *slog.Logger
}

// NewClient creates a hiscores client. An empty baseURL selects the official
// endpoint. cacheTTL bounds how long a cached snapshot may satisfy
// allowCached lookups.
func NewClient(baseURL string, cacheTTL time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		cache:   newSnapshotCache(cacheTTL),
		logger:  slog.Default().With("component", "hiscores"),
	}
}

// Lookup fetches the account's current snapshot. With allowCached, a fresh
// enough cached snapshot is returned without a network call; forced refreshes
// pass allowCached=false.
func (c *Client) Lookup(ctx context.Context, account string, allowCached bool) (*store.Snapshot, error) {
	if allowCached {
		if snap, ok := c.cache.get(account); ok {
			c.logger.Debug("cache hit", "account", account)
			return snap, nil
		}
	}

	reqURL := fmt.Sprintf("%s/index_lite.ws?player=%s", c.baseURL, url.QueryEscape(account))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPlayerNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrServiceUnavailable, err)
	}

	snap, err := parseSnapshot(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing hiscores for %q: %w", account, err)
	}

	c.cache.put(account, snap)
	return snap, nil
}

// Close releases the client's cache resources.
func (c *Client) Close() {
	c.cache.close()
}

// parseSnapshot decodes the index_lite body: one "rank,level,xp" line per
// skill followed by one "rank,score" line per activity.
func parseSnapshot(body string) (*store.Snapshot, error) {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) < len(Skills) {
		return nil, fmt.Errorf("short response: %d lines", len(lines))
	}

	snap := &store.Snapshot{
		Skills:     make(map[string]store.SkillStat, len(Skills)),
		Activities: make(map[string]store.ActivityStat),
		TakenAt:    time.Now().UTC(),
	}

	for i, name := range Skills {
		fields := strings.Split(strings.TrimSpace(lines[i]), ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed skill row %d: %q", i, lines[i])
		}
		rank, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("skill row %d rank: %w", i, err)
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("skill row %d level: %w", i, err)
		}
		xp, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("skill row %d xp: %w", i, err)
		}
		// Unranked rows report -1
		if xp < 0 {
			xp = 0
		}
		snap.Skills[name] = store.SkillStat{Rank: rank, Level: level, XP: xp}
	}

	for i, name := range Activities {
		idx := len(Skills) + i
		if idx >= len(lines) {
			break
		}
		fields := strings.Split(strings.TrimSpace(lines[idx]), ",")
		if len(fields) != 2 {
			continue
		}
		rank, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		score, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		if score < 0 {
			score = 0
		}
		snap.Activities[name] = store.ActivityStat{Rank: rank, Score: score}
	}

	return snap, nil
}
