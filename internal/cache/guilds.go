// Package cache keeps guild settings in memory in front of the store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"voicekeeper/internal/database"
	"voicekeeper/internal/keylock"
	"voicekeeper/internal/models"
	"voicekeeper/internal/telemetry"
)

// State describes what the cache knows about a guild.
type State int

const (
	// Unknown means the guild has not been looked up since the last invalidation.
	Unknown State = iota
	// Absent means the store had no row for the guild.
	Absent
	// Present means settings are cached.
	Present
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	}
	return "unknown"
}

// Store is the part of the store adapter the cache reads and writes through.
type Store interface {
	GetGuild(ctx context.Context, guildID int64) (*models.GuildSettings, error)
	NewGuild(ctx context.Context, guildID int64) error
	UpdateGuild(ctx context.Context, guildID int64, fields ...database.GuildField) error
}

// entry with nil settings records a guild the store has no row for.
type entry struct {
	settings *models.GuildSettings
}

// Guilds caches guild settings until they are explicitly invalidated.
//
// Cached settings are immutable snapshots; Update replaces a snapshot instead of
// mutating it, so readers see either all or none of an update's fields.
type Guilds struct {
	store Store
	log   logrus.FieldLogger

	mu       sync.RWMutex
	entries  map[int64]entry
	versions map[int64]uint64
	epoch    uint64

	loads  singleflight.Group
	writes *keylock.Pool
}

// New creates an empty cache over store.
func New(store Store, log logrus.FieldLogger) *Guilds {
	return &Guilds{
		store:    store,
		log:      log.WithField("component", "guild_cache"),
		entries:  make(map[int64]entry),
		versions: make(map[int64]uint64),
		writes:   keylock.New(),
	}
}

// Get returns the guild's settings, loading them on a miss. It returns nil, nil when the
// guild has no settings. The returned value is a copy owned by the caller.
func (c *Guilds) Get(ctx context.Context, guildID int64) (*models.GuildSettings, error) {
	c.mu.RLock()
	e, ok := c.entries[guildID]
	version, epoch := c.versions[guildID], c.epoch
	c.mu.RUnlock()

	if ok {
		if e.settings == nil {
			telemetry.ObserveCacheLookup("absent")
			return nil, nil
		}
		telemetry.ObserveCacheLookup("hit")
		return e.settings.Clone(), nil
	}

	telemetry.ObserveCacheLookup("miss")

	// Loads started before a write or invalidation use a different key, so a Get issued
	// after a successful Update never joins them.
	key := fmt.Sprintf("%d:%d:%d", guildID, epoch, version)
	ch := c.loads.DoChan(key, func() (any, error) {
		// Joined callers must not fail because the first caller gave up.
		return c.load(context.WithoutCancel(ctx), guildID, version, epoch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			telemetry.ObserveCacheLookup("error")
			return nil, res.Err
		}
		g, _ := res.Val.(*models.GuildSettings)
		return g.Clone(), nil
	case <-ctx.Done():
		telemetry.ObserveCacheLookup("error")
		return nil, ctx.Err()
	}
}

// load reads the guild from the store and caches the result unless an update or
// invalidation happened since version and epoch were observed.
func (c *Guilds) load(ctx context.Context, guildID int64, version, epoch uint64) (*models.GuildSettings, error) {
	g, err := c.store.GetGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch || c.versions[guildID] != version {
		c.log.WithField("guild_id", guildID).Debug("Discarding guild load that raced with a write")
		return g, nil
	}
	if _, ok := c.entries[guildID]; !ok {
		c.entries[guildID] = entry{settings: g}
	}
	return g, nil
}

// Update writes fields through to the store, creating the guild row if needed, and merges
// them into the cached snapshot once the write succeeded. Updates of one guild are serialized.
func (c *Guilds) Update(ctx context.Context, guildID int64, fields ...database.GuildField) error {
	if len(fields) == 0 {
		return errors.New("update guild: no fields")
	}

	unlock := c.writes.Lock(guildID)
	defer unlock()

	if err := c.store.NewGuild(ctx, guildID); err != nil {
		return err
	}

	if err := c.store.UpdateGuild(ctx, guildID, fields...); err != nil {
		// The write may have landed before the failure was reported.
		c.forget(guildID)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.versions[guildID]++
	e, ok := c.entries[guildID]
	switch {
	case !ok:
	case e.settings == nil:
		// The row exists now; let the next Get load it.
		delete(c.entries, guildID)
	default:
		next := e.settings.Clone()
		for _, f := range fields {
			f.Apply(next)
		}
		c.entries[guildID] = entry{settings: next}
	}

	return nil
}

func (c *Guilds) forget(guildID int64) {
	c.mu.Lock()
	c.versions[guildID]++
	delete(c.entries, guildID)
	c.mu.Unlock()
}

// Peek returns what is cached for the guild without touching the store.
func (c *Guilds) Peek(guildID int64) (*models.GuildSettings, State) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[guildID]
	switch {
	case !ok:
		return nil, Unknown
	case e.settings == nil:
		return nil, Absent
	}
	return e.settings.Clone(), Present
}

// InvalidateAll drops every cached entry.
func (c *Guilds) InvalidateAll() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[int64]entry)
	c.versions = make(map[int64]uint64)
	c.epoch++
	c.mu.Unlock()

	c.log.WithField("entries", n).Info("Guild cache cleared")
}

// Len returns the number of cached entries, absent markers included.
func (c *Guilds) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
