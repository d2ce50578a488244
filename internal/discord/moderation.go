package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"voicekeeper/internal/logemit"
	"voicekeeper/pkg/utils"
)

// kick <@user> [reason]
func (b *Bot) kickCommand(ctx context.Context, c *commandContext) error {
	if !hasPermission(c.s, c.s.State.User.ID, c.m.ChannelID, discordgo.PermissionKickMembers) {
		return usageError("I do not have permission to kick members.")
	}

	target, err := c.targetArg()
	if err != nil {
		return err
	}
	member, err := c.s.State.Member(c.m.GuildID, target)
	if err != nil {
		if member, err = c.s.GuildMember(c.m.GuildID, target); err != nil {
			return usageError("Unknown member.")
		}
	}
	if err := c.checkHierarchy(member, "kick"); err != nil {
		return err
	}

	reason := c.reason()
	if err := c.s.GuildMemberDeleteWithReason(c.m.GuildID, target, reason); err != nil {
		return fmt.Errorf("kick member: %w", err)
	}

	b.emit(ctx, c.guildID, logemit.Moderated(userOf(member.User), "kicked", userOf(c.m.Author), reason))
	return c.reply(member.User.String() + " was kicked.")
}

// ban <@user> [reason]
func (b *Bot) banCommand(ctx context.Context, c *commandContext) error {
	if !hasPermission(c.s, c.s.State.User.ID, c.m.ChannelID, discordgo.PermissionBanMembers) {
		return usageError("I do not have permission to ban members.")
	}

	target, err := c.targetArg()
	if err != nil {
		return err
	}

	var user *discordgo.User
	if member, err := c.s.State.Member(c.m.GuildID, target); err == nil {
		if err := c.checkHierarchy(member, "ban"); err != nil {
			return err
		}
		user = member.User
	} else if user, err = c.s.User(target); err != nil {
		return usageError("Unknown user.")
	}

	reason := c.reason()
	if err := c.s.GuildBanCreateWithReason(c.m.GuildID, target, reason, 0); err != nil {
		return fmt.Errorf("ban user: %w", err)
	}

	b.emit(ctx, c.guildID, logemit.Moderated(userOf(user), "banned", userOf(c.m.Author), reason))
	return c.reply(user.String() + " was banned.")
}

// unban <@user> [reason]
func (b *Bot) unbanCommand(ctx context.Context, c *commandContext) error {
	if !hasPermission(c.s, c.s.State.User.ID, c.m.ChannelID, discordgo.PermissionBanMembers) {
		return usageError("I do not have permission to (un)ban members.")
	}

	target, err := c.targetArg()
	if err != nil {
		return err
	}
	user, err := c.s.User(target)
	if err != nil {
		return usageError("Unknown user.")
	}

	if err := c.s.GuildBanDelete(c.m.GuildID, target); err != nil {
		return fmt.Errorf("unban user: %w", err)
	}

	b.emit(ctx, c.guildID, logemit.Moderated(userOf(user), "unbanned", userOf(c.m.Author), c.reason()))
	return c.reply(user.String() + " was unbanned.")
}

func (c *commandContext) targetArg() (string, error) {
	id, err := utils.ParseID(c.arg(0))
	if err != nil {
		return "", usageError("You must mention a user.")
	}
	return utils.FormatID(id), nil
}

// reason joins everything after the target.
func (c *commandContext) reason() string {
	if len(c.args) < 2 {
		return ""
	}
	return strings.Join(c.args[1:], " ")
}

// checkHierarchy verifies both the invoker and the bot rank above target.
func (c *commandContext) checkHierarchy(target *discordgo.Member, verb string) error {
	guild, err := c.s.State.Guild(c.m.GuildID)
	if err != nil {
		return fmt.Errorf("resolve guild: %w", err)
	}

	author, err := c.s.State.Member(c.m.GuildID, c.m.Author.ID)
	if err != nil || !outranks(guild, author, target) {
		return usageError(fmt.Sprintf("You cannot %s this user.", verb))
	}

	self, err := c.s.State.Member(c.m.GuildID, c.s.State.User.ID)
	if err != nil || !outranks(guild, self, target) {
		return usageError(fmt.Sprintf("I cannot %s this user.", verb))
	}
	return nil
}

// outranks reports whether actor may moderate target: the owner outranks everyone, and
// otherwise the actor's highest role must sit strictly above the target's.
func outranks(guild *discordgo.Guild, actor, target *discordgo.Member) bool {
	if actor == nil || target == nil || actor.User == nil || target.User == nil {
		return false
	}
	if actor.User.ID == target.User.ID || target.User.ID == guild.OwnerID {
		return false
	}
	if actor.User.ID == guild.OwnerID {
		return true
	}
	return topPosition(guild.Roles, actor.Roles) > topPosition(guild.Roles, target.Roles)
}

// topPosition returns the highest position among the member's roles, 0 for @everyone only.
func topPosition(guildRoles []*discordgo.Role, memberRoles []string) int {
	top := 0
	for _, r := range guildRoles {
		for _, id := range memberRoles {
			if r.ID == id && r.Position > top {
				top = r.Position
			}
		}
	}
	return top
}

// hasPermission checks a channel permission, falling back to the API when the state
// cache cannot answer.
func hasPermission(s *discordgo.Session, userID, channelID string, perm int64) bool {
	perms, err := s.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		if perms, err = s.UserChannelPermissions(userID, channelID); err != nil {
			return false
		}
	}
	return permits(perms, perm)
}

func permits(perms, want int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&want == want
}
