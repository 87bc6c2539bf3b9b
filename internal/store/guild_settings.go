package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/guilddash/internal/database"
	"github.com/dukerupert/guilddash/internal/model"
)

type GuildSettingsStore struct {
	db *database.DB
}

func NewGuildSettingsStore(db *database.DB) *GuildSettingsStore {
	return &GuildSettingsStore{db: db}
}

const guildSettingsCols = `guild_id, prefix, log_channel_id, language, created_at, updated_at`

func scanGuildSettings(scanner interface{ Scan(...any) error }) (*model.GuildSettings, error) {
	var (
		gs                   model.GuildSettings
		logChannel           sql.NullString
		createdAt, updatedAt time.Time
	)
	err := scanner.Scan(&gs.GuildID, &gs.Prefix, &logChannel, &gs.Language, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if logChannel.Valid {
		gs.LogChannelID = &logChannel.String
	}
	gs.CreatedAt = &createdAt
	gs.UpdatedAt = &updatedAt
	return &gs, nil
}

// Get returns the stored settings for a guild, or the defaults when the
// guild has never been saved.
func (s *GuildSettingsStore) Get(ctx context.Context, guildID string) (*model.GuildSettings, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+guildSettingsCols+` FROM guild_settings WHERE guild_id = ?`),
		guildID,
	)
	gs, err := scanGuildSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultGuildSettings(guildID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get guild settings %s: %w", guildID, err)
	}
	return gs, nil
}

// Upsert inserts the settings row or updates it in place, keeping created_at.
func (s *GuildSettingsStore) Upsert(ctx context.Context, gs *model.GuildSettings) (*model.GuildSettings, error) {
	now := time.Now().UTC()

	var logChannel sql.NullString
	if gs.LogChannelID != nil {
		logChannel = sql.NullString{String: *gs.LogChannelID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO guild_settings (guild_id, prefix, log_channel_id, language, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
		   prefix = excluded.prefix,
		   log_channel_id = excluded.log_channel_id,
		   language = excluded.language,
		   updated_at = excluded.updated_at`),
		gs.GuildID, gs.Prefix, logChannel, gs.Language, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert guild settings %s: %w", gs.GuildID, err)
	}
	return s.Get(ctx, gs.GuildID)
}
