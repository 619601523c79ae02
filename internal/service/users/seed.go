package users

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"admindash/internal/models"
)

// SeedUser is one entry of a seed file. Timestamps are optional so fixtures
// can backfill analytics history.
type SeedUser struct {
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type seedFile struct {
	Users []SeedUser `json:"users"`
}

// DecodeSeed reads a {"users": [...]} document.
func DecodeSeed(r io.Reader) ([]SeedUser, error) {
	var f seedFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return f.Users, nil
}

// Import bulk-inserts users, skipping rows whose email already exists.
// It returns the number of rows written.
func (s *Service) Import(ctx context.Context, seeds []SeedUser) (int64, error) {
	if len(seeds) == 0 {
		return 0, nil
	}
	now := s.now()
	rows := make([]models.User, 0, len(seeds))
	for i, seed := range seeds {
		email := strings.TrimSpace(seed.Email)
		name := strings.TrimSpace(seed.Name)
		if email == "" || name == "" {
			return 0, fmt.Errorf("%w: seed entry %d needs name and email", ErrInvalidInput, i)
		}
		u := models.User{
			Name:      name,
			Email:     email,
			Phone:     strings.TrimSpace(seed.Phone),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if seed.CreatedAt != nil {
			u.CreatedAt = seed.CreatedAt.UTC()
		}
		if seed.UpdatedAt != nil {
			u.UpdatedAt = seed.UpdatedAt.UTC()
		} else if seed.CreatedAt != nil {
			u.UpdatedAt = u.CreatedAt
		}
		if seed.DeletedAt != nil {
			deleted := seed.DeletedAt.UTC()
			u.DeletedAt = &deleted
		}
		rows = append(rows, u)
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, 100)
	if res.Error != nil {
		return 0, fmt.Errorf("import users: %w", res.Error)
	}
	return res.RowsAffected, nil
}
