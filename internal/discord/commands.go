package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"voicekeeper/internal/access"
	"voicekeeper/internal/cache"
	"voicekeeper/internal/database"
	"voicekeeper/internal/logemit"
	"voicekeeper/internal/models"
	"voicekeeper/internal/telemetry"
	"voicekeeper/pkg/utils"
)

const (
	missingPermissions = "You don't have the required permissions to use this command."
	genericFailure     = "Something went wrong."
	invalidSubcommand  = "You must provide a valid subcommand."
	invalidTimezone    = "Invalid timezone. See <https://en.wikipedia.org/wiki/List_of_tz_database_time_zones#List>" +
		" for a list of valid timezones. Timezone must be from the `TZ database name` column."

	topLimit = 10
)

// usageError is shown to the invoker verbatim.
type usageError string

func (e usageError) Error() string { return string(e) }

type command struct {
	level models.AccessLevel
	// perm is a platform permission the invoker needs in the channel, if non-zero.
	perm int64
	run  func(ctx context.Context, c *commandContext) error
}

type commandContext struct {
	s        *discordgo.Session
	m        *discordgo.MessageCreate
	guildID  int64
	authorID int64
	args     []string
	log      logrus.FieldLogger
}

func (c *commandContext) reply(content string) error {
	_, err := c.s.ChannelMessageSend(c.m.ChannelID, utils.TruncateString(content, utils.MaxMessageLength))
	return err
}

// arg returns the i-th argument or "".
func (c *commandContext) arg(i int) string {
	if i < len(c.args) {
		return c.args[i]
	}
	return ""
}

func (b *Bot) commandTable() map[string]command {
	return map[string]command{
		"voice":    {level: models.AccessUser, run: b.voiceCommand},
		"config":   {level: models.AccessUser, perm: discordgo.PermissionManageServer, run: b.configCommand},
		"rolemenu": {level: models.AccessUser, perm: discordgo.PermissionManageRoles, run: b.roleMenuCommand},
		"cache":    {level: models.AccessTrusted, run: b.cacheCommand},
		"db":       {level: models.AccessTrusted, run: b.dbCommand},
		"access":   {level: models.AccessAdmin, run: b.accessCommand},
		"kick":     {level: models.AccessUser, perm: discordgo.PermissionKickMembers, run: b.kickCommand},
		"ban":      {level: models.AccessUser, perm: discordgo.PermissionBanMembers, run: b.banCommand},
		"unban":    {level: models.AccessUser, perm: discordgo.PermissionBanMembers, run: b.unbanCommand},
	}
}

// parseCommand splits a prefixed message into a lowercase command name and its arguments.
func parseCommand(content, prefix string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}

	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// messageCreate handles message creation events
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	name, args, ok := parseCommand(m.Content, b.prefix)
	if !ok {
		if b.mentionsSelf(s, m.Message) {
			b.sendInfo(s, m.ChannelID)
		}
		return
	}

	cmd, ok := b.commands[name]
	if !ok {
		return
	}

	log := b.eventLog("command").WithFields(logrus.Fields{
		"command":    name,
		"guild_id":   m.GuildID,
		"author_id":  m.Author.ID,
		"channel_id": m.ChannelID,
	})

	guildID, err := requiredID(m.GuildID)
	if err != nil {
		log.WithError(err).Debug("Skipping command")
		return
	}
	authorID, err := requiredID(m.Author.ID)
	if err != nil {
		log.WithError(err).Debug("Skipping command")
		return
	}

	c := &commandContext{s: s, m: m, guildID: guildID, authorID: authorID, args: args, log: log}
	b.dispatch(guildID, log, func(ctx context.Context) {
		b.runCommand(ctx, cmd, c)
	})
}

func (b *Bot) runCommand(ctx context.Context, cmd command, c *commandContext) {
	outcome := "ok"
	defer func() { telemetry.ObserveCommand(outcome) }()

	allowed, err := b.gate.Resolve(ctx, c.authorID, cmd.level)
	var denied *access.PermissionDeniedError
	switch {
	case errors.As(err, &denied):
		outcome = "denied"
		b.replyOrLog(c, denied.Reason)
		return
	case err != nil:
		outcome = "error"
		c.log.WithError(err).Error("Failed to resolve access level")
		b.replyOrLog(c, genericFailure)
		return
	case !allowed:
		outcome = "forbidden"
		b.replyOrLog(c, missingPermissions)
		return
	}

	if cmd.perm != 0 && !hasPermission(c.s, c.m.Author.ID, c.m.ChannelID, cmd.perm) {
		outcome = "forbidden"
		b.replyOrLog(c, missingPermissions)
		return
	}

	if err := cmd.run(ctx, c); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			outcome = "usage"
			b.replyOrLog(c, string(usage))
			return
		}
		outcome = "error"
		c.log.WithError(err).WithField("args", c.args).Error("Command failed")
		b.replyOrLog(c, genericFailure)
	}
}

func (b *Bot) replyOrLog(c *commandContext, content string) {
	if err := c.reply(content); err != nil {
		c.log.WithError(err).Warn("Failed to reply to command")
	}
}

func (b *Bot) mentionsSelf(s *discordgo.Session, m *discordgo.Message) bool {
	if s.State == nil || s.State.User == nil {
		return false
	}
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			return true
		}
	}
	return false
}

func (b *Bot) sendInfo(s *discordgo.Session, channelID string) {
	embed := &discordgo.MessageEmbed{
		Title:       s.State.User.Username,
		Description: fmt.Sprintf("Tracks voice time and keeps a moderation log.\nMy prefix is `%s`. Try `%svoice time`.", b.prefix, b.prefix),
		Color:       0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Version", Value: b.version, Inline: true},
			{Name: "Servers", Value: fmt.Sprint(len(s.State.Guilds)), Inline: true},
		},
	}
	if _, err := s.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.log.WithError(err).Warn("Failed to send info embed")
	}
}

// voice time [@user] | voice top
func (b *Bot) voiceCommand(ctx context.Context, c *commandContext) error {
	switch c.arg(0) {
	case "time":
		target := c.authorID
		if raw := c.arg(1); raw != "" {
			id, err := utils.ParseID(raw)
			if err != nil {
				return usageError("Unknown user.")
			}
			target = id
		}

		state, _, err := b.tracker.Stats(ctx, c.guildID, target)
		if err != nil {
			return err
		}
		return c.reply(formatVoiceTime(displayName(c.s, c.m.GuildID, target), state.TimeSpentMS))

	case "top":
		ranks, err := b.tracker.Top(ctx, c.guildID, topLimit)
		if err != nil {
			return err
		}
		return c.reply(formatTop(ranks, func(id int64) string { return displayName(c.s, c.m.GuildID, id) }))
	}
	return usageError(invalidSubcommand)
}

func formatVoiceTime(name string, ms int64) string {
	if ms/1000 == 0 {
		return fmt.Sprintf("%s has no voice time recorded.", name)
	}
	return fmt.Sprintf("%s has spent %s in voice channels.", name, utils.FormatDuration(ms))
}

func formatTop(ranks []models.VoiceRank, name func(int64) string) string {
	if len(ranks) == 0 {
		return "No voice time has been recorded in this guild."
	}
	lines := make([]string, len(ranks))
	for i, r := range ranks {
		lines[i] = utils.FormatLeaderboardEntry(i+1, name(r.UserID), utils.FormatDuration(r.TimeSpentMS))
	}
	return strings.Join(lines, "\n")
}

// config logs|afk [#channel|none] | config timezone [zone]
func (b *Bot) configCommand(ctx context.Context, c *commandContext) error {
	settings, err := b.guilds.Get(ctx, c.guildID)
	if err != nil {
		return err
	}
	if settings == nil {
		settings = models.NewGuildSettings(c.guildID)
	}

	switch sub, value := c.arg(0), c.arg(1); sub {
	case "logs":
		if value == "" {
			return c.reply(describeChannel("Logging", "logs", settings.LogChannel))
		}
		id, err := b.configChannel(c, value, false)
		if err != nil {
			return err
		}
		if err := b.guilds.Update(ctx, c.guildID, database.SetLogChannel(id)); err != nil {
			return err
		}
		return c.reply(describeChannelSet("Logging", id))

	case "afk":
		if value == "" {
			return c.reply(describeChannel("AFK", "AFK", settings.AFKChannel))
		}
		id, err := b.configChannel(c, value, true)
		if err != nil {
			return err
		}
		if err := b.guilds.Update(ctx, c.guildID, database.SetAFKChannel(id)); err != nil {
			return err
		}
		return c.reply(describeChannelSet("AFK", id))

	case "timezone":
		if value == "" {
			return c.reply("Timezone is set to " + settings.Timezone)
		}
		if !logemit.ValidTimezone(value) {
			return usageError(invalidTimezone)
		}
		if err := b.guilds.Update(ctx, c.guildID, database.SetTimezone(value)); err != nil {
			return err
		}
		return c.reply("Timezone set to " + value)
	}
	return usageError(invalidSubcommand)
}

// configChannel resolves a channel argument. "none" clears the setting.
func (b *Bot) configChannel(c *commandContext, value string, wantVoice bool) (int64, error) {
	if strings.EqualFold(value, "none") {
		return 0, nil
	}

	id, err := utils.ParseID(value)
	if err != nil {
		return 0, usageError("Unknown channel.")
	}
	ch, err := c.s.State.Channel(utils.FormatID(id))
	if err != nil || ch.GuildID != c.m.GuildID {
		return 0, usageError("Unknown channel.")
	}

	if wantVoice {
		if ch.Type != discordgo.ChannelTypeGuildVoice && ch.Type != discordgo.ChannelTypeGuildStageVoice {
			return 0, usageError("That is not a voice channel.")
		}
		return id, nil
	}

	if !hasPermission(c.s, c.s.State.User.ID, ch.ID, discordgo.PermissionSendMessages) {
		return 0, usageError("I do not have permission to send messages in that channel.")
	}
	return id, nil
}

func describeChannel(label, noun string, id int64) string {
	if id == 0 {
		return fmt.Sprintf("No %s channel set.", noun)
	}
	return fmt.Sprintf("%s channel is set to %s (%d)", label, utils.FormatChannelMention(id), id)
}

func describeChannelSet(label string, id int64) string {
	if id == 0 {
		return label + " channel cleared."
	}
	return fmt.Sprintf("%s channel set to %s (%d)", label, utils.FormatChannelMention(id), id)
}

// rolemenu add <#channel> <message id> <emoji> <@role> | rolemenu remove <#channel> <message id> <emoji>
func (b *Bot) roleMenuCommand(ctx context.Context, c *commandContext) error {
	settings, err := b.guilds.Get(ctx, c.guildID)
	if err != nil {
		return err
	}
	menu := models.RoleMenuMap{}
	if settings != nil {
		menu = settings.RoleMenu.Clone()
	}

	sub := c.arg(0)
	channelID, errC := utils.ParseID(c.arg(1))
	messageID, errM := utils.ParseID(c.arg(2))
	emoji := emojiKey(c.arg(3))
	if sub != "add" && sub != "remove" {
		return usageError(invalidSubcommand)
	}
	if errC != nil || errM != nil || emoji == "" {
		return usageError(fmt.Sprintf("Usage: `%srolemenu add <#channel> <message id> <emoji> <@role>`", b.prefix))
	}

	ch, msg := utils.FormatID(channelID), utils.FormatID(messageID)
	if sub == "add" {
		roleID, err := utils.ParseID(c.arg(4))
		if err != nil {
			return usageError("Unknown role.")
		}
		setMenuRole(menu, ch, msg, emoji, utils.FormatID(roleID))
	} else if !removeMenuRole(menu, ch, msg, emoji) {
		return usageError("No role is bound to that emoji.")
	}

	if err := b.guilds.Update(ctx, c.guildID, database.SetRoleMenu(menu)); err != nil {
		return err
	}
	return c.reply("Role menu updated.")
}

func setMenuRole(menu models.RoleMenuMap, channelID, messageID, emoji, roleID string) {
	if menu[channelID] == nil {
		menu[channelID] = map[string]map[string]string{}
	}
	if menu[channelID][messageID] == nil {
		menu[channelID][messageID] = map[string]string{}
	}
	menu[channelID][messageID][emoji] = roleID
}

func removeMenuRole(menu models.RoleMenuMap, channelID, messageID, emoji string) bool {
	if _, ok := menu[channelID][messageID][emoji]; !ok {
		return false
	}
	delete(menu[channelID][messageID], emoji)
	if len(menu[channelID][messageID]) == 0 {
		delete(menu[channelID], messageID)
	}
	if len(menu[channelID]) == 0 {
		delete(menu, channelID)
	}
	return true
}

// cache clear | cache get [guild id]
func (b *Bot) cacheCommand(ctx context.Context, c *commandContext) error {
	switch c.arg(0) {
	case "clear":
		b.guilds.InvalidateAll()
		return c.reply("Cache cleared.")

	case "get":
		guildID, err := c.idArg(1, c.guildID)
		if err != nil {
			return err
		}
		settings, state := b.guilds.Peek(guildID)
		switch state {
		case cache.Unknown:
			return c.reply("No cache found.")
		case cache.Absent:
			return c.reply(fmt.Sprintf("Cache for %d: no settings stored.", guildID))
		}
		return c.replyYAML(fmt.Sprintf("Cache for %d:", guildID), settings)
	}
	return usageError(invalidSubcommand)
}

// db guild [guild id] | db user [@user]
func (b *Bot) dbCommand(ctx context.Context, c *commandContext) error {
	switch c.arg(0) {
	case "guild":
		guildID, err := c.idArg(1, c.guildID)
		if err != nil {
			return err
		}
		g, err := b.repository.GetGuild(ctx, guildID)
		if err != nil {
			return err
		}
		if g == nil {
			return c.reply("No entry found.")
		}
		return c.replyYAML(fmt.Sprintf("Entry for %d:", guildID), g)

	case "user":
		userID, err := c.idArg(1, c.authorID)
		if err != nil {
			return err
		}
		u, err := b.repository.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return c.reply("No entry found.")
		}
		return c.replyYAML(fmt.Sprintf("Entry for %d:", userID), u)
	}
	return usageError(invalidSubcommand)
}

// access get [@user] | access set <@user> <level>
func (b *Bot) accessCommand(ctx context.Context, c *commandContext) error {
	switch c.arg(0) {
	case "get":
		userID, err := c.idArg(1, c.authorID)
		if err != nil {
			return err
		}
		level, err := b.gate.Level(ctx, userID)
		if err != nil {
			return err
		}
		return c.reply(fmt.Sprintf("%s has access level %s.", displayName(c.s, c.m.GuildID, userID), level))

	case "set":
		userID, err := utils.ParseID(c.arg(1))
		if err != nil {
			return usageError("Unknown user.")
		}
		level, ok := models.ParseAccessLevel(strings.ToLower(c.arg(2)))
		if !ok {
			return usageError("Access level must be one of blacklisted, user, trusted or admin.")
		}
		if userID == c.authorID {
			return usageError("You cannot change your own access level.")
		}
		if err := b.gate.SetLevel(ctx, userID, level); err != nil {
			return err
		}
		return c.reply(fmt.Sprintf("Access level of %s set to %s.", displayName(c.s, c.m.GuildID, userID), level))
	}
	return usageError(invalidSubcommand)
}

// idArg parses the i-th argument as an id, falling back to def when it is missing.
func (c *commandContext) idArg(i int, def int64) (int64, error) {
	raw := c.arg(i)
	if raw == "" {
		return def, nil
	}
	id, err := utils.ParseID(raw)
	if err != nil {
		return 0, usageError("Invalid id.")
	}
	return id, nil
}

func (c *commandContext) replyYAML(title string, v any) error {
	block, err := yamlBlock(v)
	if err != nil {
		return err
	}
	return c.reply(title + " " + block)
}

func yamlBlock(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal yaml: %w", err)
	}
	return "```yaml\n" + string(out) + "```", nil
}

func displayName(s *discordgo.Session, guildID string, userID int64) string {
	id := utils.FormatID(userID)
	if m, err := s.State.Member(guildID, id); err == nil && m.User != nil {
		return m.User.String()
	}
	if u, err := s.User(id); err == nil {
		return u.String()
	}
	return "Unknown#0000"
}
