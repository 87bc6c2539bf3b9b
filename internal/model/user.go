package model

// DiscordUser is the public identity of a logged-in user. Avatar is nil when
// the user has no custom avatar.
type DiscordUser struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar"`
}
