package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"voicekeeper/internal/models"
)

func (b *Bot) messageReactionAdd(s *discordgo.Session, e *discordgo.MessageReactionAdd) {
	if e.MessageReaction == nil || e.GuildID == "" || b.isSelf(s, e.UserID) {
		return
	}
	if e.Member != nil && e.Member.User != nil && e.Member.User.Bot {
		return
	}
	b.applyRoleMenu("message_reaction_add", s, e.MessageReaction, true)
}

func (b *Bot) messageReactionRemove(s *discordgo.Session, e *discordgo.MessageReactionRemove) {
	if e.MessageReaction == nil || e.GuildID == "" || b.isSelf(s, e.UserID) {
		return
	}
	b.applyRoleMenu("message_reaction_remove", s, e.MessageReaction, false)
}

// applyRoleMenu grants or revokes the role bound to the reacted emoji, if any.
func (b *Bot) applyRoleMenu(event string, s *discordgo.Session, r *discordgo.MessageReaction, grant bool) {
	guildID, err := requiredID(r.GuildID)
	if err != nil {
		b.eventLog(event).WithError(err).Debug("Skipping event")
		return
	}
	log := b.eventLog(event).WithFields(logrus.Fields{"guild_id": guildID, "user_id": r.UserID})

	b.dispatch(guildID, log, func(ctx context.Context) {
		settings, err := b.guilds.Get(ctx, guildID)
		if err != nil {
			log.WithError(err).Warn("Guild settings unavailable, ignoring reaction")
			return
		}
		if settings == nil {
			return
		}

		roleID, ok := menuRole(settings.RoleMenu, r.ChannelID, r.MessageID, r.Emoji)
		if !ok {
			return
		}

		if grant {
			err = s.GuildMemberRoleAdd(r.GuildID, r.UserID, roleID)
		} else {
			err = s.GuildMemberRoleRemove(r.GuildID, r.UserID, roleID)
		}
		if err != nil {
			log.WithError(err).WithField("role_id", roleID).Warn("Failed to update role from role menu")
		}
	})
}

// menuRole looks up the role bound to an emoji on a message. Custom emojis are keyed by
// id, unicode emojis by name.
func menuRole(menu models.RoleMenuMap, channelID, messageID string, emoji discordgo.Emoji) (string, bool) {
	key := emoji.Name
	if emoji.ID != "" {
		key = emoji.ID
	}
	role, ok := menu[channelID][messageID][key]
	return role, ok && role != ""
}

// emojiKey converts a command argument into a role menu key. "<:name:id>" and
// "<a:name:id>" yield the id; anything else is used as is.
func emojiKey(arg string) string {
	if strings.HasPrefix(arg, "<") && strings.HasSuffix(arg, ">") {
		parts := strings.Split(strings.Trim(arg, "<>"), ":")
		if len(parts) == 3 {
			return parts[2]
		}
	}
	return arg
}

func (b *Bot) isSelf(s *discordgo.Session, userID string) bool {
	return s.State != nil && s.State.User != nil && s.State.User.ID == userID
}
