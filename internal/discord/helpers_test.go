package discord

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicekeeper/internal/models"
	"voicekeeper/internal/testutil"
	"voicekeeper/internal/voice"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		content string
		name    string
		args    []string
		ok      bool
	}{
		{"!voice time", "voice", []string{"time"}, true},
		{"  !VOICE   top  ", "voice", []string{"top"}, true},
		{"!kick <@1> being rude", "kick", []string{"<@1>", "being", "rude"}, true},
		{"!", "", nil, false},
		{"hello !voice", "", nil, false},
		{"?voice", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			name, args, ok := parseCommand(tt.content, "!")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			if tt.ok && len(tt.args) > 0 {
				assert.Equal(t, tt.args, args)
			}
		})
	}

	_, _, ok := parseCommand("!voice", "")
	assert.False(t, ok)
}

func TestTransitionFrom(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)

	vs := &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID:   "100",
			UserID:    "7",
			ChannelID: "12",
			Member:    &discordgo.Member{User: &discordgo.User{ID: "7"}},
		},
		BeforeUpdate: &discordgo.VoiceState{ChannelID: "11"},
	}

	tr, err := transitionFrom(vs, at)
	require.NoError(t, err)
	assert.Equal(t, voice.Transition{GuildID: 100, UserID: 7, Before: 11, After: 12, At: at}, tr)

	vs.BeforeUpdate = nil
	vs.ChannelID = ""
	vs.Member.User.Bot = true
	tr, err = transitionFrom(vs, at)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tr.Before)
	assert.Equal(t, int64(0), tr.After)
	assert.True(t, tr.IsBot)
}

func TestTransitionFrom_Malformed(t *testing.T) {
	for name, vs := range map[string]*discordgo.VoiceStateUpdate{
		"nil":          nil,
		"no state":     {},
		"no guild":     {VoiceState: &discordgo.VoiceState{UserID: "7"}},
		"bad user":     {VoiceState: &discordgo.VoiceState{GuildID: "1", UserID: "x"}},
		"bad channel":  {VoiceState: &discordgo.VoiceState{GuildID: "1", UserID: "7", ChannelID: "abc"}},
		"bad previous": {VoiceState: &discordgo.VoiceState{GuildID: "1", UserID: "7"}, BeforeUpdate: &discordgo.VoiceState{ChannelID: "?"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := transitionFrom(vs, time.Now())
			assert.ErrorIs(t, err, models.ErrMalformedEvent)
		})
	}
}

func TestDiffRoles(t *testing.T) {
	added, removed := diffRoles([]string{"1", "2", "3"}, []string{"3", "4", "1", "5"})
	assert.Equal(t, []string{"4", "5"}, added)
	assert.Equal(t, []string{"2"}, removed)

	added, removed = diffRoles([]string{"1"}, []string{"1"})
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestMenuRole(t *testing.T) {
	menu := models.RoleMenuMap{}
	setMenuRole(menu, "10", "20", "👍", "30")
	setMenuRole(menu, "10", "20", "555", "31")

	role, ok := menuRole(menu, "10", "20", discordgo.Emoji{Name: "👍"})
	assert.True(t, ok)
	assert.Equal(t, "30", role)

	role, ok = menuRole(menu, "10", "20", discordgo.Emoji{ID: "555", Name: "party"})
	assert.True(t, ok)
	assert.Equal(t, "31", role)

	_, ok = menuRole(menu, "10", "21", discordgo.Emoji{Name: "👍"})
	assert.False(t, ok)
	_, ok = menuRole(nil, "10", "20", discordgo.Emoji{Name: "👍"})
	assert.False(t, ok)

	assert.True(t, removeMenuRole(menu, "10", "20", "👍"))
	assert.False(t, removeMenuRole(menu, "10", "20", "👍"))
	assert.True(t, removeMenuRole(menu, "10", "20", "555"))
	assert.Empty(t, menu)
}

func TestEmojiKey(t *testing.T) {
	assert.Equal(t, "123", emojiKey("<:party:123>"))
	assert.Equal(t, "456", emojiKey("<a:dance:456>"))
	assert.Equal(t, "👍", emojiKey("👍"))
}

func TestOutranks(t *testing.T) {
	guild := &discordgo.Guild{
		OwnerID: "1",
		Roles: []*discordgo.Role{
			{ID: "mod", Position: 5},
			{ID: "member", Position: 2},
			{ID: "admin", Position: 9},
		},
	}
	member := func(id string, roles ...string) *discordgo.Member {
		return &discordgo.Member{User: &discordgo.User{ID: id}, Roles: roles}
	}

	owner := member("1")
	mod := member("2", "member", "mod")
	plain := member("3", "member")
	admin := member("4", "admin")
	nobody := member("5")

	assert.True(t, outranks(guild, owner, admin))
	assert.True(t, outranks(guild, mod, plain))
	assert.True(t, outranks(guild, plain, nobody))
	assert.False(t, outranks(guild, plain, mod))
	assert.False(t, outranks(guild, mod, member("6", "member", "mod")), "equal rank")
	assert.False(t, outranks(guild, admin, owner))
	assert.False(t, outranks(guild, mod, mod))
	assert.False(t, outranks(guild, nil, plain))
}

func TestPermits(t *testing.T) {
	assert.True(t, permits(discordgo.PermissionKickMembers|discordgo.PermissionSendMessages, discordgo.PermissionKickMembers))
	assert.False(t, permits(discordgo.PermissionSendMessages, discordgo.PermissionBanMembers))
	assert.True(t, permits(discordgo.PermissionAdministrator, discordgo.PermissionManageServer))
}

func TestFormatVoiceTime(t *testing.T) {
	assert.Equal(t, "bob has no voice time recorded.", formatVoiceTime("bob", 0))
	assert.Equal(t, "bob has no voice time recorded.", formatVoiceTime("bob", 999))
	assert.Equal(t, "bob has spent 1h 1s in voice channels.", formatVoiceTime("bob", 3_601_000))
}

func TestFormatTop(t *testing.T) {
	assert.Equal(t, "No voice time has been recorded in this guild.", formatTop(nil, nil))

	names := map[int64]string{1: "alice", 2: "bob", 3: "carol", 4: "dave"}
	got := formatTop([]models.VoiceRank{
		{UserID: 1, TimeSpentMS: 7_200_000},
		{UserID: 2, TimeSpentMS: 60_000},
		{UserID: 3, TimeSpentMS: 5000},
		{UserID: 4, TimeSpentMS: 1000},
	}, func(id int64) string { return names[id] })

	assert.Equal(t, "🥇 alice - 2h\n🥈 bob - 1m\n🥉 carol - 5s\n4. dave - 1s", got)
}

func TestYAMLBlock(t *testing.T) {
	out, err := yamlBlock(&models.GuildSettings{ID: 1, Timezone: "UTC"})
	require.NoError(t, err)
	assert.Contains(t, out, "```yaml\n")
	assert.Contains(t, out, "timezone: UTC\n")
}

func TestDescribeChannel(t *testing.T) {
	assert.Equal(t, "No logs channel set.", describeChannel("Logging", "logs", 0))
	assert.Equal(t, "Logging channel is set to <#5> (5)", describeChannel("Logging", "logs", 5))
	assert.Equal(t, "AFK channel cleared.", describeChannelSet("AFK", 0))
	assert.Equal(t, "AFK channel set to <#9> (9)", describeChannelSet("AFK", 9))
}

func TestRequiredID(t *testing.T) {
	id, err := requiredID("123")
	require.NoError(t, err)
	assert.Equal(t, int64(123), id)

	_, err = requiredID("")
	assert.ErrorIs(t, err, models.ErrMalformedEvent)

	id, err = optionalID("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)

	_, err = optionalID("guild")
	assert.ErrorIs(t, err, models.ErrMalformedEvent)
}

func TestNewConfiguresSession(t *testing.T) {
	log, _ := testutil.NewLogger()

	b, err := New(Options{Token: "token", Prefix: "!"}, nil, log)
	require.NoError(t, err)

	intents := b.session.Identify.Intents
	for _, want := range []discordgo.Intent{
		discordgo.IntentsGuilds,
		discordgo.IntentsGuildMembers,
		discordgo.IntentsGuildBans,
		discordgo.IntentsGuildVoiceStates,
		discordgo.IntentsGuildMessages,
		discordgo.IntentsGuildMessageReactions,
		discordgo.IntentsMessageContent,
	} {
		assert.Equal(t, want, intents&want, "intent %d", want)
	}
	assert.True(t, b.session.SyncEvents)
	assert.Contains(t, b.commands, "voice")
}
