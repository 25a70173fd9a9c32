package chat

// Well-known singleton group names. User conversation groups are derived
// deterministically from the normalized username, so a staff connection
// can address any user without a lookup table.
const (
	// GroupStaff is the broadcast group every attendant connection joins.
	GroupStaff = "chat_admins"
	// GroupAll contains every open connection regardless of role. Presence
	// announcements go here so already-connected users see attendants come
	// and go without reconnecting.
	GroupAll = "chat_all"
)

// UserGroup returns the private conversation group name for a username.
func UserGroup(username string) string {
	return "chat_user_" + NormalizeUsername(username)
}
