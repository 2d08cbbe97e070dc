package supabase

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

// ============================================================
// Row mapping
// ============================================================

// userRow maps the ledger_users table. The full record lives in the jsonb
// column; email and invite_code are copied out for the unique indexes.
type userRow struct {
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	InviteCode string          `json:"invite_code"`
	Version    int64           `json:"version"`
	Record     json.RawMessage `json:"record"`
	CreatedAt  time.Time       `json:"created_at"`
}

func toRow(u *domain.User) (*userRow, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}
	return &userRow{
		ID:         u.ID,
		Email:      strings.ToLower(u.Email),
		InviteCode: strings.ToUpper(u.InviteCode),
		Version:    u.Version,
		Record:     raw,
		CreatedAt:  u.CreatedAt,
	}, nil
}

func fromRow(r userRow) (*domain.User, error) {
	var u domain.User
	if err := json.Unmarshal(r.Record, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", r.ID, err)
	}
	u.ID = r.ID
	u.Version = r.Version
	return &u, nil
}

func decodeRows(body []byte) ([]userRow, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var rows []userRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return rows, nil
}

// eq builds a PostgREST equality filter value.
func eq(v string) string {
	return "eq." + url.QueryEscape(v)
}
