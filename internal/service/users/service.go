package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"admindash/internal/models"
	"admindash/internal/storage"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already in use")
	ErrInvalidInput   = errors.New("invalid input")
)

// FieldError reports a missing required field. It matches ErrInvalidInput.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return e.Field + " is required"
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Service owns the users table: creation, partial updates, soft deletes and
// the read paths used by the dashboard.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source used for updatedAt and deletedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a users service on top of an open database.
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries the fields accepted on creation.
type CreateInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Patch lists the fields to change; nil fields are left untouched.
type Patch struct {
	Name      *string
	Email     *string
	Phone     *string
	DeletedAt *time.Time
}

func (p Patch) onlyDeletion() bool {
	return p.DeletedAt != nil && p.Name == nil && p.Email == nil && p.Phone == nil
}

// Create inserts a new active user.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Email == "" {
		return nil, &FieldError{Field: "Email"}
	}
	if in.Name == "" {
		return nil, &FieldError{Field: "Name"}
	}

	now := s.now()
	user := &models.User{
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if storage.IsDuplicateKey(err) {
			return nil, fmt.Errorf("create user: %w", ErrDuplicateEmail)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Get loads a user by id, including soft-deleted ones.
func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	if id == 0 {
		return nil, &FieldError{Field: "User ID"}
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// Update applies a partial change. updatedAt is stamped unless the patch only
// marks the record deleted.
func (s *Service) Update(ctx context.Context, id uint, patch Patch) (*models.User, error) {
	if id == 0 {
		return nil, &FieldError{Field: "User ID"}
	}
	columns := make(map[string]interface{}, 5)
	if patch.Name != nil {
		columns["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if email == "" {
			return nil, &FieldError{Field: "Email"}
		}
		columns["email"] = email
	}
	if patch.Phone != nil {
		columns["phone"] = strings.TrimSpace(*patch.Phone)
	}
	if patch.DeletedAt != nil {
		columns["deleted_at"] = patch.DeletedAt.UTC()
	}
	if !patch.onlyDeletion() {
		columns["updated_at"] = s.now()
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return err
		}
		if err := tx.Model(&user).UpdateColumns(columns).Error; err != nil {
			return err
		}
		return tx.First(&user, id).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrNotFound
		case storage.IsDuplicateKey(err):
			return nil, fmt.Errorf("update user: %w", ErrDuplicateEmail)
		default:
			return nil, fmt.Errorf("update user: %w", err)
		}
	}
	return &user, nil
}

// SoftDelete stamps deletedAt with the current time. The row stays in place.
func (s *Service) SoftDelete(ctx context.Context, id uint) (*models.User, error) {
	now := s.now()
	return s.Update(ctx, id, Patch{DeletedAt: &now})
}

// ListOptions controls ordering of List.
type ListOptions struct {
	Sort  string
	Order string
}

var sortColumns = map[string]string{
	"id":        "id",
	"name":      "name",
	"email":     "email",
	"phone":     "phone",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"deletedAt": "deleted_at",
}

// List returns every user, soft-deleted ones included.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.User, error) {
	column := "name"
	if opts.Sort != "" {
		c, ok := sortColumns[opts.Sort]
		if !ok {
			return nil, fmt.Errorf("%w: unknown sort field %q", ErrInvalidInput, opts.Sort)
		}
		column = c
	}
	direction := "ASC"
	switch strings.ToLower(opts.Order) {
	case "", "asc":
	case "desc":
		direction = "DESC"
	default:
		return nil, fmt.Errorf("%w: unknown sort order %q", ErrInvalidInput, opts.Order)
	}

	users := make([]models.User, 0)
	if err := s.db.WithContext(ctx).Order(column + " " + direction).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
