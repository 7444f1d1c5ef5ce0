package platform

import (
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
)

// Directory resolves the symbolic names used by effects to guild snowflakes.
// Unconfigured roles and categories resolve to false and are skipped.
type Directory struct {
	GuildID       snowflake.ID
	SelfID        snowflake.ID
	AdminLog      snowflake.ID
	PingReset     snowflake.ID
	RecoveryPanel snowflake.ID
	Roles         map[slots.Role]snowflake.ID
	Categories    map[slots.Category]snowflake.ID
}

func (d *Directory) Role(r slots.Role) (snowflake.ID, bool) {
	id, ok := d.Roles[r]
	return id, ok && id != 0
}

func (d *Directory) Category(c slots.Category) (snowflake.ID, bool) {
	id, ok := d.Categories[c]
	return id, ok && id != 0
}

// Overwrite resolves a subject to an overwrite target and its type.
func (d *Directory) Overwrite(s slots.Subject) (snowflake.ID, discord.PermissionOverwriteType, bool) {
	switch s.Kind {
	case slots.SubjectEveryone:
		// @everyone shares the guild ID
		return d.GuildID, discord.PermissionOverwriteTypeRole, d.GuildID != 0
	case slots.SubjectSelf:
		return d.SelfID, discord.PermissionOverwriteTypeMember, d.SelfID != 0
	case slots.SubjectRole:
		id, ok := d.Role(s.Role)
		return id, discord.PermissionOverwriteTypeRole, ok
	case slots.SubjectUser:
		id, err := ParseID(s.UserID)
		return id, discord.PermissionOverwriteTypeMember, err == nil
	}
	return 0, 0, false
}

// ParseID parses a Discord snowflake stored as a reference string.
func ParseID(ref string) (snowflake.ID, error) {
	v, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || v == 0 {
		return 0, &InvalidRefError{Ref: ref}
	}
	return snowflake.ID(v), nil
}

type InvalidRefError struct {
	Ref string
}

func (e *InvalidRefError) Error() string {
	return "invalid discord reference " + strconv.Quote(e.Ref)
}

// ChannelName builds the channel name of a slot from its display name.
func ChannelName(name string) string {
	return "ᯓ・" + strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
