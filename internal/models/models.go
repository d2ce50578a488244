package models

// AccessLevel is an ordered permission tier used to gate privileged actions.
type AccessLevel int

const (
	AccessBlacklisted AccessLevel = -1
	AccessUser        AccessLevel = 0
	AccessTrusted     AccessLevel = 1
	AccessAdmin       AccessLevel = 2
)

// String returns the lowercase tier name.
func (l AccessLevel) String() string {
	switch l {
	case AccessBlacklisted:
		return "blacklisted"
	case AccessUser:
		return "user"
	case AccessTrusted:
		return "trusted"
	case AccessAdmin:
		return "admin"
	}
	return "unknown"
}

// ParseAccessLevel accepts a tier name or its numeric value.
func ParseAccessLevel(s string) (AccessLevel, bool) {
	switch s {
	case "blacklisted", "-1":
		return AccessBlacklisted, true
	case "user", "0":
		return AccessUser, true
	case "trusted", "1":
		return AccessTrusted, true
	case "admin", "2":
		return AccessAdmin, true
	}
	return 0, false
}

// DefaultTimezone is used for guilds without a configured zone.
const DefaultTimezone = "UTC"

// RoleMenuMap maps channel -> message -> emoji -> role.
type RoleMenuMap map[string]map[string]map[string]string

// GuildSettings represents the stored settings of one guild
type GuildSettings struct {
	ID         int64       `json:"id" yaml:"id"`
	LogChannel int64       `json:"log_channel" yaml:"log_channel"`
	AFKChannel int64       `json:"afk_channel" yaml:"afk_channel"`
	Timezone   string      `json:"timezone" yaml:"timezone"`
	RoleMenu   RoleMenuMap `json:"role_menu_map" yaml:"role_menu_map"`
}

// NewGuildSettings returns the settings a freshly inserted guild row holds.
func NewGuildSettings(id int64) *GuildSettings {
	return &GuildSettings{
		ID:       id,
		Timezone: DefaultTimezone,
		RoleMenu: RoleMenuMap{},
	}
}

// Clone returns a deep copy of the settings.
func (g *GuildSettings) Clone() *GuildSettings {
	if g == nil {
		return nil
	}
	c := *g
	c.RoleMenu = g.RoleMenu.Clone()
	return &c
}

// Clone returns a deep copy of the role menu.
func (m RoleMenuMap) Clone() RoleMenuMap {
	out := make(RoleMenuMap, len(m))
	for ch, messages := range m {
		mc := make(map[string]map[string]string, len(messages))
		for msg, emojis := range messages {
			ec := make(map[string]string, len(emojis))
			for emoji, role := range emojis {
				ec[emoji] = role
			}
			mc[msg] = ec
		}
		out[ch] = mc
	}
	return out
}

// VoiceState represents a member's voice accounting in one guild
type VoiceState struct {
	LastJoinedMS int64 `json:"voice_last_joined_ms" yaml:"voice_last_joined_ms"`
	TimeSpentMS  int64 `json:"voice_time_spent_ms" yaml:"voice_time_spent_ms"`
}

// Accruing reports whether time is currently being accumulated.
func (v VoiceState) Accruing() bool {
	return v.LastJoinedMS != 0
}

// VoiceMap is keyed by guild id.
type VoiceMap map[int64]VoiceState

// Clone returns a copy of the map.
func (m VoiceMap) Clone() VoiceMap {
	out := make(VoiceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// UserRecord represents a member across all guilds
type UserRecord struct {
	ID          int64       `json:"id" yaml:"id"`
	AccessLevel AccessLevel `json:"access_level" yaml:"access_level"`
	Voice       VoiceMap    `json:"voice" yaml:"voice"`
}

// NewUserRecord returns the record a first contact creates.
func NewUserRecord(id int64) *UserRecord {
	return &UserRecord{
		ID:          id,
		AccessLevel: AccessUser,
		Voice:       VoiceMap{},
	}
}

// VoiceRank is one leaderboard entry
type VoiceRank struct {
	UserID      int64
	TimeSpentMS int64
}
