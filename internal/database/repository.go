package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"voicekeeper/internal/models"
)

// Repository handles database operations
type Repository struct {
	db  *DB
	log logrus.FieldLogger
}

// NewRepository creates a new repository
func NewRepository(db *DB, log logrus.FieldLogger) *Repository {
	return &Repository{db: db, log: log.WithField("component", "database")}
}

// GetGuild returns the guild's settings, or nil when the guild has no row.
func (r *Repository) GetGuild(ctx context.Context, guildID int64) (*models.GuildSettings, error) {
	ctx, cancel := r.db.bound(ctx)
	defer cancel()

	var (
		g        models.GuildSettings
		roleMenu string
	)
	err := r.db.conn.QueryRowContext(ctx,
		"SELECT id, log_channel, afk_channel, timezone, role_menu_map FROM guilds WHERE id = $1",
		guildID).Scan(&g.ID, &g.LogChannel, &g.AFKChannel, &g.Timezone, &roleMenu)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get guild", err)
	}

	g.RoleMenu = models.RoleMenuMap{}
	if roleMenu != "" {
		if err := json.Unmarshal([]byte(roleMenu), &g.RoleMenu); err != nil {
			return nil, fmt.Errorf("decode role menu of guild %d: %w", guildID, err)
		}
	}
	if g.Timezone == "" {
		g.Timezone = models.DefaultTimezone
	}

	return &g, nil
}

// NewGuild inserts a default row for the guild. Existing rows are left untouched.
func (r *Repository) NewGuild(ctx context.Context, guildID int64) error {
	ctx, cancel := r.db.bound(ctx)
	defer cancel()

	_, err := r.db.conn.ExecContext(ctx,
		"INSERT INTO guilds (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", guildID)
	return classify("new guild", err)
}

// UpdateGuild writes the given fields of an existing guild row.
func (r *Repository) UpdateGuild(ctx context.Context, guildID int64, fields ...GuildField) error {
	set := make([]assignment, 0, len(fields))
	for _, f := range fields {
		set = append(set, assignment{column: f.column, value: f.value})
	}
	query, args, err := buildUpdate("guilds", guildID, set)
	if err != nil {
		return err
	}

	ctx, cancel := r.db.bound(ctx)
	defer cancel()

	_, err = r.db.conn.ExecContext(ctx, query, args...)
	return classify("update guild", err)
}

// GetUser returns the user's record, or nil when the user has no row.
func (r *Repository) GetUser(ctx context.Context, userID int64) (*models.UserRecord, error) {
	ctx, cancel := r.db.bound(ctx)
	defer cancel()

	var (
		u     models.UserRecord
		level int
		voice string
	)
	err := r.db.conn.QueryRowContext(ctx,
		"SELECT id, access_level, voice FROM users WHERE id = $1",
		userID).Scan(&u.ID, &level, &voice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get user", err)
	}

	u.AccessLevel = models.AccessLevel(level)
	u.Voice, err = decodeVoice(voice)
	if err != nil {
		return nil, fmt.Errorf("decode voice of user %d: %w", userID, err)
	}

	return &u, nil
}

// NewUser inserts a default row for the user. Existing rows are left untouched.
func (r *Repository) NewUser(ctx context.Context, userID int64) error {
	ctx, cancel := r.db.bound(ctx)
	defer cancel()

	_, err := r.db.conn.ExecContext(ctx,
		"INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", userID)
	return classify("new user", err)
}

// UpdateUser writes the given fields of an existing user row.
func (r *Repository) UpdateUser(ctx context.Context, userID int64, fields ...UserField) error {
	set := make([]assignment, 0, len(fields))
	for _, f := range fields {
		set = append(set, assignment{column: f.column, value: f.value})
	}
	query, args, err := buildUpdate("users", userID, set)
	if err != nil {
		return err
	}

	ctx, cancel := r.db.bound(ctx)
	defer cancel()

	_, err = r.db.conn.ExecContext(ctx, query, args...)
	return classify("update user", err)
}

// GetTopVoiceTimes gets the members with the most voice time in a guild
func (r *Repository) GetTopVoiceTimes(ctx context.Context, guildID int64, limit int) ([]models.VoiceRank, error) {
	ctx, cancel := r.db.bound(ctx)
	defer cancel()

	rows, err := r.db.conn.QueryContext(ctx, "SELECT id, voice FROM users")
	if err != nil {
		return nil, classify("get top voice times", err)
	}
	defer rows.Close()

	var users []*models.UserRecord
	for rows.Next() {
		var (
			id    int64
			voice string
		)
		if err := rows.Scan(&id, &voice); err != nil {
			r.log.WithError(err).Warn("Error scanning user row")
			continue
		}
		v, err := decodeVoice(voice)
		if err != nil {
			r.log.WithError(err).WithField("user_id", id).Warn("Skipping user with undecodable voice data")
			continue
		}
		users = append(users, &models.UserRecord{ID: id, Voice: v})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("get top voice times", err)
	}

	return RankVoiceTimes(users, guildID, limit), nil
}

// RankVoiceTimes orders users with recorded time in the guild by descending time, then ascending id,
// and keeps at most limit entries. A non-positive limit keeps all of them.
func RankVoiceTimes(users []*models.UserRecord, guildID int64, limit int) []models.VoiceRank {
	ranks := make([]models.VoiceRank, 0, len(users))
	for _, u := range users {
		if u == nil {
			continue
		}
		if spent := u.Voice[guildID].TimeSpentMS; spent > 0 {
			ranks = append(ranks, models.VoiceRank{UserID: u.ID, TimeSpentMS: spent})
		}
	}

	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].TimeSpentMS != ranks[j].TimeSpentMS {
			return ranks[i].TimeSpentMS > ranks[j].TimeSpentMS
		}
		return ranks[i].UserID < ranks[j].UserID
	})

	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

func decodeVoice(raw string) (models.VoiceMap, error) {
	voice := models.VoiceMap{}
	if raw == "" {
		return voice, nil
	}
	if err := json.Unmarshal([]byte(raw), &voice); err != nil {
		return nil, err
	}
	if voice == nil {
		voice = models.VoiceMap{}
	}
	return voice, nil
}
