package logemit

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestLineFormats(t *testing.T) {
	u := User{ID: 7, Name: "ali*ce_"}
	mod := User{ID: 9, Name: "mod"}
	roles := []Role{{ID: 1, Name: "Admin"}, {ID: 2, Name: "DJ"}}

	lines := []string{
		VoiceJoined(u, "General"),
		VoiceLeft(u, "General"),
		VoiceMoved(u, "General", "Gaming"),
		MemberJoined(u),
		MemberLeft(u),
		Banned(u),
		Unbanned(u),
		Moderated(u, "kicked", mod, ""),
		Moderated(u, "banned", mod, "spam"),
		NickChanged(u, "", "Ally"),
		RolesAdded(u, roles),
		RolesRemoved(u, roles[:1]),
		MessageDeleted(u, "chat", "hello", nil),
		MessageDeleted(u, "chat", "", []string{"https://cdn.example/a.png", "https://cdn.example/b.png"}),
		MessageEdited(u, "chat", "helo", "hello"),
	}

	g := goldie.New(t)
	g.Assert(t, "lines", []byte(strings.Join(lines, "\n---\n")+"\n"))
}
