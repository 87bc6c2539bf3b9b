package model

import "time"

const (
	DefaultPrefix   = "!"
	DefaultLanguage = "pt-BR"
)

type GuildSettings struct {
	GuildID      string     `json:"guild_id"`
	Prefix       string     `json:"prefix"`
	LogChannelID *string    `json:"log_channel_id"`
	Language     string     `json:"language"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// DefaultGuildSettings returns the settings a guild has before anything is saved.
func DefaultGuildSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID:  guildID,
		Prefix:   DefaultPrefix,
		Language: DefaultLanguage,
	}
}
