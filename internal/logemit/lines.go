package logemit

import (
	"fmt"
	"strings"

	"voicekeeper/pkg/utils"
)

// User is a member or user as it appears in a log line.
type User struct {
	ID   int64
	Name string
}

func (u User) String() string {
	return fmt.Sprintf("%s (`%d`)", utils.EscapeMarkdown(u.Name), u.ID)
}

// Role is a guild role as it appears in a log line.
type Role struct {
	ID   int64
	Name string
}

const noReason = "No reason provided."

func VoiceJoined(u User, channel string) string {
	return fmt.Sprintf("☎️ %s joined **#%s**", u, channel)
}

func VoiceLeft(u User, channel string) string {
	return fmt.Sprintf("☎️ %s left **#%s**", u, channel)
}

func VoiceMoved(u User, from, to string) string {
	return fmt.Sprintf("☎️ %s moved from **#%s** to **#%s**", u, from, to)
}

func MemberJoined(u User) string {
	return fmt.Sprintf("📥 %s joined the server.", u)
}

func MemberLeft(u User) string {
	return fmt.Sprintf("📤 %s left the server.", u)
}

func Banned(u User) string {
	return fmt.Sprintf("🚨 %s was banned", u)
}

func Unbanned(u User) string {
	return fmt.Sprintf("🚨 %s was unbanned", u)
}

// Moderated reports a moderation action taken through a command. action is a past
// participle such as "kicked".
func Moderated(u User, action string, moderator User, reason string) string {
	if reason == "" {
		reason = noReason
	}
	return fmt.Sprintf("🚨 %s was %s by %s for %s", u, action, moderator, reason)
}

func NickChanged(u User, before, after string) string {
	return fmt.Sprintf("🔄 %s nickname changed:\n`%s` → `%s`", u, orNone(before), orNone(after))
}

func RolesAdded(u User, roles []Role) string {
	return fmt.Sprintf("🔑 %s has been given the role(s):\n%s", u, roleList(roles))
}

func RolesRemoved(u User, roles []Role) string {
	return fmt.Sprintf("🔑 %s has been removed from the role(s):\n%s", u, roleList(roles))
}

func MessageDeleted(u User, channel, content string, attachments []string) string {
	att := "None"
	if len(attachments) > 0 {
		att = strings.Join(attachments, "\n")
	}
	return fmt.Sprintf("🗑️ %s message deleted in **#%s**:\n%s\nAttachments:\n%s", u, channel, content, att)
}

func MessageEdited(u User, channel, before, after string) string {
	return fmt.Sprintf("✏️ %s message edited in **#%s**:\n**B:** %s\n**A:** %s", u, channel, before, after)
}

func roleList(roles []Role) string {
	lines := make([]string, len(roles))
	for i, r := range roles {
		lines[i] = fmt.Sprintf("%s (`%d`)", r.Name, r.ID)
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
