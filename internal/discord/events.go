package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"voicekeeper/internal/logemit"
	"voicekeeper/internal/models"
	"voicekeeper/internal/voice"
	"voicekeeper/pkg/utils"
)

// voiceStateUpdate handles voice state updates
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	at := b.now()
	log := b.eventLog("voice_state_update")

	tr, err := transitionFrom(vs, at)
	if err != nil {
		log.WithError(err).Debug("Skipping voice event")
		return
	}
	if tr.IsBot || tr.Before == tr.After {
		return
	}

	log = log.WithFields(logrus.Fields{"guild_id": tr.GuildID, "user_id": tr.UserID})
	user := memberUser(vs.Member, tr.UserID)

	b.dispatch(tr.UserID, log, func(ctx context.Context) {
		res, err := b.tracker.RecordTransition(ctx, tr)
		if err != nil {
			log.WithError(err).Debug("Voice transition not recorded")
		}

		var line string
		switch res.Kind {
		case voice.Joined:
			line = logemit.VoiceJoined(user, channelName(s, tr.After))
		case voice.Left:
			line = logemit.VoiceLeft(user, channelName(s, tr.Before))
		case voice.Moved:
			line = logemit.VoiceMoved(user, channelName(s, tr.Before), channelName(s, tr.After))
		default:
			return
		}
		b.emit(ctx, tr.GuildID, line)
	})
}

// transitionFrom converts a gateway voice state update. The previous channel comes from
// the session state cache.
func transitionFrom(vs *discordgo.VoiceStateUpdate, at time.Time) (voice.Transition, error) {
	if vs == nil || vs.VoiceState == nil {
		return voice.Transition{}, models.ErrMalformedEvent
	}

	guildID, err := requiredID(vs.GuildID)
	if err != nil {
		return voice.Transition{}, err
	}
	userID, err := requiredID(vs.UserID)
	if err != nil {
		return voice.Transition{}, err
	}
	after, err := optionalID(vs.ChannelID)
	if err != nil {
		return voice.Transition{}, err
	}

	var before int64
	if vs.BeforeUpdate != nil {
		if before, err = optionalID(vs.BeforeUpdate.ChannelID); err != nil {
			return voice.Transition{}, err
		}
	}

	return voice.Transition{
		GuildID: guildID,
		UserID:  userID,
		Before:  before,
		After:   after,
		IsBot:   vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot,
		At:      at,
	}, nil
}

func (b *Bot) guildMemberAdd(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil || e.User == nil {
		return
	}
	b.guildLine("guild_member_add", e.GuildID, func(ctx context.Context) (string, bool) {
		return logemit.MemberJoined(userOf(e.User)), true
	})
}

func (b *Bot) guildMemberRemove(s *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.Member == nil || e.User == nil {
		return
	}
	b.guildLine("guild_member_remove", e.GuildID, func(ctx context.Context) (string, bool) {
		// A ban also removes the member; the ban event logs that.
		if _, err := s.GuildBan(e.GuildID, e.User.ID); err == nil {
			return "", false
		}
		return logemit.MemberLeft(userOf(e.User)), true
	})
}

func (b *Bot) guildBanAdd(s *discordgo.Session, e *discordgo.GuildBanAdd) {
	if e.User == nil || e.User.Bot {
		return
	}
	b.guildLine("guild_ban_add", e.GuildID, func(ctx context.Context) (string, bool) {
		return logemit.Banned(userOf(e.User)), true
	})
}

func (b *Bot) guildBanRemove(s *discordgo.Session, e *discordgo.GuildBanRemove) {
	if e.User == nil || e.User.Bot {
		return
	}
	b.guildLine("guild_ban_remove", e.GuildID, func(ctx context.Context) (string, bool) {
		return logemit.Unbanned(userOf(e.User)), true
	})
}

func (b *Bot) guildMemberUpdate(s *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	if e.Member == nil || e.User == nil || e.User.Bot || e.BeforeUpdate == nil {
		return
	}
	before, after := e.BeforeUpdate, e.Member

	guildID, err := requiredID(e.GuildID)
	if err != nil {
		b.eventLog("guild_member_update").WithError(err).Debug("Skipping event")
		return
	}

	user := userOf(after.User)
	added, removed := diffRoles(before.Roles, after.Roles)
	nickChanged := before.Nick != after.Nick
	if !nickChanged && len(added) == 0 && len(removed) == 0 {
		return
	}

	log := b.eventLog("guild_member_update").WithField("guild_id", guildID)
	b.dispatch(guildID, log, func(ctx context.Context) {
		if nickChanged {
			b.emit(ctx, guildID, logemit.NickChanged(user, before.Nick, after.Nick))
		}
		if len(added) > 0 {
			b.emit(ctx, guildID, logemit.RolesAdded(user, roles(s, e.GuildID, added)))
		}
		if len(removed) > 0 {
			b.emit(ctx, guildID, logemit.RolesRemoved(user, roles(s, e.GuildID, removed)))
		}
	})
}

func (b *Bot) messageDelete(s *discordgo.Session, e *discordgo.MessageDelete) {
	m := e.BeforeDelete
	if m == nil || m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return
	}

	attachments := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, a.URL)
	}

	b.guildLine("message_delete", m.GuildID, func(ctx context.Context) (string, bool) {
		return logemit.MessageDeleted(userOf(m.Author), channelNameByID(s, m.ChannelID), m.Content, attachments), true
	})
}

func (b *Bot) messageUpdate(s *discordgo.Session, e *discordgo.MessageUpdate) {
	before, after := e.BeforeUpdate, e.Message
	if after == nil || before == nil || e.GuildID == "" || before.Author == nil || before.Author.Bot {
		return
	}
	if before.Pinned != after.Pinned || before.Content == after.Content {
		return
	}

	b.guildLine("message_update", e.GuildID, func(ctx context.Context) (string, bool) {
		return logemit.MessageEdited(userOf(before.Author), channelNameByID(s, before.ChannelID), before.Content, after.Content), true
	})
}

// guildLine queues a log line for the guild. build runs on the guild's queue.
func (b *Bot) guildLine(event, rawGuildID string, build func(ctx context.Context) (string, bool)) {
	log := b.eventLog(event)

	guildID, err := requiredID(rawGuildID)
	if err != nil {
		log.WithError(err).Debug("Skipping event")
		return
	}

	b.dispatch(guildID, log.WithField("guild_id", guildID), func(ctx context.Context) {
		if line, ok := build(ctx); ok {
			b.emit(ctx, guildID, line)
		}
	})
}

// diffRoles returns the role ids only in after and only in before, in their original order.
func diffRoles(before, after []string) (added, removed []string) {
	in := func(list []string, id string) bool {
		for _, v := range list {
			if v == id {
				return true
			}
		}
		return false
	}

	for _, id := range after {
		if !in(before, id) {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if !in(after, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func roles(s *discordgo.Session, guildID string, ids []string) []logemit.Role {
	out := make([]logemit.Role, 0, len(ids))
	for _, raw := range ids {
		id, _ := utils.ParseID(raw)
		name := raw
		if r, err := s.State.Role(guildID, raw); err == nil {
			name = r.Name
		}
		out = append(out, logemit.Role{ID: id, Name: name})
	}
	return out
}

func userOf(u *discordgo.User) logemit.User {
	id, _ := utils.ParseID(u.ID)
	return logemit.User{ID: id, Name: u.String()}
}

func memberUser(m *discordgo.Member, id int64) logemit.User {
	if m == nil || m.User == nil {
		return logemit.User{ID: id, Name: utils.FormatID(id)}
	}
	return logemit.User{ID: id, Name: m.User.String()}
}

func channelName(s *discordgo.Session, id int64) string {
	return channelNameByID(s, utils.FormatID(id))
}

func channelNameByID(s *discordgo.Session, id string) string {
	if ch, err := s.State.Channel(id); err == nil {
		return ch.Name
	}
	return id
}

func requiredID(raw string) (int64, error) {
	id, err := utils.ParseID(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrMalformedEvent, err)
	}
	return id, nil
}

func optionalID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return requiredID(raw)
}
