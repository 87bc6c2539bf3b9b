package discord

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/dukerupert/guilddash/internal/model"
)

var adminBit = big.NewInt(discordgo.PermissionAdministrator)

// ParsePermissions decodes a permissions value sent either as a JSON
// string or a JSON number. Strings may carry a 0x, 0o or 0b prefix;
// values are arbitrary precision.
func ParsePermissions(raw json.RawMessage) (*big.Int, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, false
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, false
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return nil, false
		}
	}
	base := 10
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 10 {
			s = s[2:]
		}
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, false
	}
	return n, true
}

// HasAdmin reports whether the permissions value has the administrator
// bit set. Unparseable values never grant admin.
func HasAdmin(raw json.RawMessage) bool {
	n, ok := ParsePermissions(raw)
	if !ok {
		return false
	}
	return new(big.Int).And(n, adminBit).Cmp(adminBit) == 0
}

// FilterAdminGuilds keeps the guilds where the user is an administrator,
// preserving order.
func FilterAdminGuilds(guilds []model.Guild) []model.Guild {
	out := make([]model.Guild, 0, len(guilds))
	for _, g := range guilds {
		if HasAdmin(g.Permissions) {
			out = append(out, g)
		}
	}
	return out
}
