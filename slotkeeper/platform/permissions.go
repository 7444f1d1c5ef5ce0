package platform

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
)

var capabilityPermissions = []struct {
	cap  slots.Capability
	perm discord.Permissions
}{
	{slots.CapView, discord.PermissionViewChannel},
	{slots.CapSend, discord.PermissionSendMessages},
	{slots.CapMentionEveryone, discord.PermissionMentionEveryone},
	{slots.CapEmbedLinks, discord.PermissionEmbedLinks},
	{slots.CapAttachFiles, discord.PermissionAttachFiles},
	{slots.CapExternalEmojis, discord.PermissionUseExternalEmojis},
}

// Permissions maps symbolic capabilities onto Discord permission bits.
func Permissions(c slots.Capability) discord.Permissions {
	var p discord.Permissions
	for _, m := range capabilityPermissions {
		if c.Has(m.cap) {
			p = p.Add(m.perm)
		}
	}
	return p
}
