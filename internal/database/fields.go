package database

import (
	"encoding/json"
	"fmt"

	"voicekeeper/internal/models"
)

type valueKind uint8

const (
	scalarValue valueKind = iota
	nestedValue
)

// fieldValue is either a scalar bound as-is or a nested structure persisted as JSON text.
type fieldValue struct {
	kind   valueKind
	scalar any
	nested any
}

func scalar(v any) fieldValue { return fieldValue{kind: scalarValue, scalar: v} }
func nested(v any) fieldValue { return fieldValue{kind: nestedValue, nested: v} }

func (v fieldValue) encode() (any, error) {
	if v.kind == nestedValue {
		b, err := json.Marshal(v.nested)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v.scalar, nil
}

// GuildField is one updatable column of the guilds table.
type GuildField struct {
	column string
	value  fieldValue
	apply  func(*models.GuildSettings)
}

// Column returns the column name the field writes.
func (f GuildField) Column() string { return f.column }

// Apply merges the field into g.
func (f GuildField) Apply(g *models.GuildSettings) { f.apply(g) }

func SetLogChannel(channelID int64) GuildField {
	return GuildField{
		column: "log_channel",
		value:  scalar(channelID),
		apply:  func(g *models.GuildSettings) { g.LogChannel = channelID },
	}
}

func SetAFKChannel(channelID int64) GuildField {
	return GuildField{
		column: "afk_channel",
		value:  scalar(channelID),
		apply:  func(g *models.GuildSettings) { g.AFKChannel = channelID },
	}
}

func SetTimezone(zone string) GuildField {
	return GuildField{
		column: "timezone",
		value:  scalar(zone),
		apply:  func(g *models.GuildSettings) { g.Timezone = zone },
	}
}

func SetRoleMenu(menu models.RoleMenuMap) GuildField {
	menu = menu.Clone()
	return GuildField{
		column: "role_menu_map",
		value:  nested(menu),
		apply:  func(g *models.GuildSettings) { g.RoleMenu = menu.Clone() },
	}
}

// UserField is one updatable column of the users table.
type UserField struct {
	column string
	value  fieldValue
	apply  func(*models.UserRecord)
}

// Column returns the column name the field writes.
func (f UserField) Column() string { return f.column }

// Apply merges the field into u.
func (f UserField) Apply(u *models.UserRecord) { f.apply(u) }

func SetAccessLevel(level models.AccessLevel) UserField {
	return UserField{
		column: "access_level",
		value:  scalar(int(level)),
		apply:  func(u *models.UserRecord) { u.AccessLevel = level },
	}
}

func SetVoice(voice models.VoiceMap) UserField {
	voice = voice.Clone()
	return UserField{
		column: "voice",
		value:  nested(voice),
		apply:  func(u *models.UserRecord) { u.Voice = voice.Clone() },
	}
}

type assignment struct {
	column string
	value  fieldValue
}

// buildUpdate renders "UPDATE table SET a = $1, b = $2 WHERE id = $3".
// Placeholders are numbered in order of appearance so sqlite binds them positionally too.
// A column assigned twice keeps its last value.
func buildUpdate(table string, id int64, fields []assignment) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("update %s: no fields", table)
	}

	order := make([]string, 0, len(fields))
	latest := make(map[string]fieldValue, len(fields))
	for _, f := range fields {
		if _, seen := latest[f.column]; !seen {
			order = append(order, f.column)
		}
		latest[f.column] = f.value
	}

	query := "UPDATE " + table + " SET "
	args := make([]any, 0, len(order)+1)
	for i, column := range order {
		v, err := latest[column].encode()
		if err != nil {
			return "", nil, fmt.Errorf("encode %s.%s: %w", table, column, err)
		}
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("%s = $%d", column, i+1)
		args = append(args, v)
	}
	query += fmt.Sprintf(" WHERE id = $%d", len(order)+1)
	args = append(args, id)

	return query, args, nil
}
