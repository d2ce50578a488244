// Package testutil provides in-memory collaborators for package tests.
package testutil

import (
	"context"
	"sync"

	"voicekeeper/internal/database"
	"voicekeeper/internal/models"
)

// MemStore is an in-memory stand-in for database.Repository.
// Error fields are returned by the matching operations while set.
type MemStore struct {
	mu     sync.Mutex
	guilds map[int64]*models.GuildSettings
	users  map[int64]*models.UserRecord

	GuildErr error
	UserErr  error

	// GuildWriteErr fails UpdateGuild only.
	GuildWriteErr error

	// AfterGetGuild runs (without the store lock held) after every GetGuild read,
	// before the result is returned.
	AfterGetGuild func(guildID int64)

	GuildReads  int
	GuildWrites int
	UserWrites  int
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		guilds: make(map[int64]*models.GuildSettings),
		users:  make(map[int64]*models.UserRecord),
	}
}

// SetGuildErr sets the error guild operations fail with.
func (s *MemStore) SetGuildErr(err error) {
	s.mu.Lock()
	s.GuildErr = err
	s.mu.Unlock()
}

// SetUserErr sets the error user operations fail with.
func (s *MemStore) SetUserErr(err error) {
	s.mu.Lock()
	s.UserErr = err
	s.mu.Unlock()
}

// SetGuildWriteErr sets the error UpdateGuild fails with.
func (s *MemStore) SetGuildWriteErr(err error) {
	s.mu.Lock()
	s.GuildWriteErr = err
	s.mu.Unlock()
}

// PutGuild stores a copy of g.
func (s *MemStore) PutGuild(g *models.GuildSettings) {
	s.mu.Lock()
	s.guilds[g.ID] = g.Clone()
	s.mu.Unlock()
}

// PutUser stores a copy of u.
func (s *MemStore) PutUser(u *models.UserRecord) {
	s.mu.Lock()
	s.users[u.ID] = cloneUser(u)
	s.mu.Unlock()
}

// User returns a copy of the stored user, or nil.
func (s *MemStore) User(id int64) *models.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.users[id])
}

// Counts returns guild reads, guild writes and user writes so far.
func (s *MemStore) Counts() (guildReads, guildWrites, userWrites int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.GuildReads, s.GuildWrites, s.UserWrites
}

func (s *MemStore) GetGuild(ctx context.Context, guildID int64) (*models.GuildSettings, error) {
	s.mu.Lock()
	s.GuildReads++
	err := s.GuildErr
	g := s.guilds[guildID].Clone()
	s.mu.Unlock()

	if hook := s.AfterGetGuild; hook != nil {
		hook(guildID)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *MemStore) NewGuild(ctx context.Context, guildID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.GuildErr != nil {
		return s.GuildErr
	}
	if _, ok := s.guilds[guildID]; !ok {
		s.guilds[guildID] = models.NewGuildSettings(guildID)
	}
	return nil
}

func (s *MemStore) UpdateGuild(ctx context.Context, guildID int64, fields ...database.GuildField) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.GuildErr != nil {
		return s.GuildErr
	}
	if s.GuildWriteErr != nil {
		return s.GuildWriteErr
	}
	s.GuildWrites++
	if g, ok := s.guilds[guildID]; ok {
		for _, f := range fields {
			f.Apply(g)
		}
	}
	return nil
}

func (s *MemStore) GetUser(ctx context.Context, userID int64) (*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UserErr != nil {
		return nil, s.UserErr
	}
	return cloneUser(s.users[userID]), nil
}

func (s *MemStore) NewUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UserErr != nil {
		return s.UserErr
	}
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = models.NewUserRecord(userID)
	}
	return nil
}

func (s *MemStore) UpdateUser(ctx context.Context, userID int64, fields ...database.UserField) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UserErr != nil {
		return s.UserErr
	}
	s.UserWrites++
	if u, ok := s.users[userID]; ok {
		for _, f := range fields {
			f.Apply(u)
		}
	}
	return nil
}

func (s *MemStore) GetTopVoiceTimes(ctx context.Context, guildID int64, limit int) ([]models.VoiceRank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UserErr != nil {
		return nil, s.UserErr
	}
	users := make([]*models.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return database.RankVoiceTimes(users, guildID, limit), nil
}

func cloneUser(u *models.UserRecord) *models.UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	c.Voice = u.Voice.Clone()
	return &c
}
