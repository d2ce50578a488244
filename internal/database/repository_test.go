package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicekeeper/internal/models"
)

func openSQLite(t *testing.T) *Repository {
	t.Helper()
	db, err := New(context.Background(), Options{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "voicekeeper.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log, _ := test.NewNullLogger()
	return NewRepository(db, log)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: "mysql", DSN: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestNew_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicekeeper.db")
	for i := 0; i < 3; i++ {
		db, err := New(context.Background(), Options{Driver: DriverSQLite, DSN: path})
		require.NoError(t, err, "iteration %d", i)
		db.Close()
	}
}

func TestRepository_GuildAbsent(t *testing.T) {
	repo := openSQLite(t)

	g, err := repo.GetGuild(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestRepository_GuildRoundTrip(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, repo.NewGuild(ctx, 10))
	require.NoError(t, repo.NewGuild(ctx, 10), "second insert must be a no-op")

	g, err := repo.GetGuild(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, models.NewGuildSettings(10), g)

	menu := models.RoleMenuMap{"1": {"2": {"👍": "3"}}}
	require.NoError(t, repo.UpdateGuild(ctx, 10,
		SetLogChannel(100),
		SetAFKChannel(42),
		SetTimezone("Europe/Berlin"),
		SetRoleMenu(menu),
	))

	g, err = repo.GetGuild(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, &models.GuildSettings{
		ID:         10,
		LogChannel: 100,
		AFKChannel: 42,
		Timezone:   "Europe/Berlin",
		RoleMenu:   menu,
	}, g)
}

func TestRepository_UserRoundTrip(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	u, err := repo.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, repo.NewUser(ctx, 7))
	u, err = repo.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.NewUserRecord(7), u)

	voice := models.VoiceMap{
		100: {LastJoinedMS: 0, TimeSpentMS: 9000},
		200: {LastJoinedMS: 1_700_000_000_123, TimeSpentMS: 1},
	}
	require.NoError(t, repo.UpdateUser(ctx, 7, SetVoice(voice)))
	require.NoError(t, repo.UpdateUser(ctx, 7, SetAccessLevel(models.AccessTrusted)))

	u, err = repo.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.AccessTrusted, u.AccessLevel)
	assert.Equal(t, voice, u.Voice)
}

func TestRepository_UpdateWithoutFields(t *testing.T) {
	repo := openSQLite(t)
	assert.Error(t, repo.UpdateUser(context.Background(), 1))
	assert.Error(t, repo.UpdateGuild(context.Background(), 1))
}

func TestRepository_GetTopVoiceTimes(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	const guildID = 500
	for i := int64(1); i <= 15; i++ {
		require.NoError(t, repo.NewUser(ctx, i))
		require.NoError(t, repo.UpdateUser(ctx, i, SetVoice(models.VoiceMap{
			guildID: {TimeSpentMS: i * 1000},
			999:     {TimeSpentMS: 1_000_000},
		})))
	}
	// A member of another guild only.
	require.NoError(t, repo.NewUser(ctx, 99))
	require.NoError(t, repo.UpdateUser(ctx, 99, SetVoice(models.VoiceMap{999: {TimeSpentMS: 5}})))

	top, err := repo.GetTopVoiceTimes(ctx, guildID, 10)
	require.NoError(t, err)
	require.Len(t, top, 10)
	for i, rank := range top {
		assert.Equal(t, int64(15-i), rank.UserID)
		assert.Equal(t, int64(15-i)*1000, rank.TimeSpentMS)
	}
}

func TestRepository_ExpiredDeadlineIsUnavailable(t *testing.T) {
	repo := openSQLite(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := repo.GetUser(ctx, 1)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres repository test")
	}

	for _, driver := range []string{DriverPostgres, DriverPgx} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			db, err := New(ctx, Options{Driver: driver, DSN: dsn, QueryTimeout: 10 * time.Second})
			require.NoError(t, err)
			defer db.Close()

			log, _ := test.NewNullLogger()
			repo := NewRepository(db, log)

			id := time.Now().UnixNano()
			require.NoError(t, repo.NewUser(ctx, id))
			require.NoError(t, repo.UpdateUser(ctx, id, SetVoice(models.VoiceMap{1: {TimeSpentMS: 42}})))

			u, err := repo.GetUser(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(42), u.Voice[1].TimeSpentMS)

			require.NoError(t, repo.NewGuild(ctx, id))
			require.NoError(t, repo.UpdateGuild(ctx, id, SetTimezone("Asia/Kolkata")))
			g, err := repo.GetGuild(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "Asia/Kolkata", g.Timezone)
		})
	}
}
