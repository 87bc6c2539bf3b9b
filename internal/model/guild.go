package model

import "encoding/json"

// Guild is a guild as returned by the current-user guilds endpoint.
// Permissions stays raw because Discord sends it as a decimal string and
// an unparseable value must not fail the whole list.
type Guild struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Icon        *string         `json:"icon"`
	Owner       bool            `json:"owner"`
	Permissions json.RawMessage `json:"permissions"`
	Features    []string        `json:"features"`
}

type GuildSummary struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Icon *string `json:"icon"`
}

type GuildCounts struct {
	Members       int    `json:"members"`
	OnlineMembers int    `json:"online_members"`
	Channels      int    `json:"channels"`
	TextChannels  int    `json:"text_channels"`
	VoiceChannels int    `json:"voice_channels"`
	Commands      int    `json:"commands"`
	Uptime        string `json:"uptime"`
}

type GuildStats struct {
	Guild GuildSummary `json:"guild"`
	Stats GuildCounts  `json:"stats"`
}
