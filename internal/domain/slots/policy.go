package slots

// Permission policy: which subject gets which capability on a slot channel in
// each state. The adapter applies these as overwrites on the channel.

// ownerGrant is the overwrite for the owner in the slot's current state.
func ownerGrant(s *Slot) Effect {
	if s.Held {
		return grant(s.OwnerID, s.ChannelRef, User(s.OwnerID), OwnerCapabilities&^CapSend, CapSend)
	}
	return grant(s.OwnerID, s.ChannelRef, User(s.OwnerID), OwnerCapabilities, 0)
}

// activeLayout places the channel in its plan category and applies the full
// active overwrite set. Members may read, nobody but the owner may write.
func activeLayout(s *Slot, spec PlanSpec) []Effect {
	return []Effect{
		relocate(s.OwnerID, s.ChannelRef, spec.Category),
		grant(s.OwnerID, s.ChannelRef, Everyone, 0, CapView),
		grant(s.OwnerID, s.ChannelRef, Self, CapView|CapSend, 0),
		grant(s.OwnerID, s.ChannelRef, RoleSubject(RoleHidden), 0, CapView),
		grant(s.OwnerID, s.ChannelRef, RoleSubject(RoleMember), CapView, CapSend),
		ownerGrant(s),
	}
}

// revokedLayout moves the channel to the revoked category, where only staff,
// admins and the bot can see it.
func revokedLayout(s *Slot) []Effect {
	return []Effect{
		clearOverwrite(s.OwnerID, s.ChannelRef, Everyone),
		clearOverwrite(s.OwnerID, s.ChannelRef, User(s.OwnerID)),
		grant(s.OwnerID, s.ChannelRef, Self, CapView|CapSend, 0),
		grant(s.OwnerID, s.ChannelRef, RoleSubject(RoleHidden), 0, CapView),
		grant(s.OwnerID, s.ChannelRef, RoleSubject(RoleMember), 0, CapView),
		grant(s.OwnerID, s.ChannelRef, RoleSubject(RoleAdmin), CapView, 0),
		grant(s.OwnerID, s.ChannelRef, RoleSubject(RoleStaff), CapView, 0),
		relocate(s.OwnerID, s.ChannelRef, CategoryRevoked),
	}
}

// grantRoles gives user the shared access role and the plan roles.
func grantRoles(owner, user string, spec PlanSpec) []Effect {
	out := []Effect{addRole(owner, user, RoleAccess)}
	for _, r := range spec.Roles {
		out = append(out, addRole(owner, user, r))
	}
	return out
}

// stripRoles takes every slot role away from user, including the hold marker.
func stripRoles(owner, user string, spec PlanSpec) []Effect {
	out := []Effect{removeRole(owner, user, RoleAccess)}
	for _, r := range spec.Roles {
		out = append(out, removeRole(owner, user, r))
	}
	return append(out, removeRole(owner, user, RoleOnHold))
}

// swapPlanRoles replaces the roles of one plan with those of another.
func swapPlanRoles(owner, user string, from, to PlanSpec) []Effect {
	keep := make(map[Role]bool, len(to.Roles))
	for _, r := range to.Roles {
		keep[r] = true
	}
	var out []Effect
	for _, r := range from.Roles {
		if !keep[r] {
			out = append(out, removeRole(owner, user, r))
		}
	}
	had := make(map[Role]bool, len(from.Roles))
	for _, r := range from.Roles {
		had[r] = true
	}
	for _, r := range to.Roles {
		if !had[r] {
			out = append(out, addRole(owner, user, r))
		}
	}
	return out
}
