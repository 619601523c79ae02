package models

import "time"

// User is a dashboard-managed person record. A non-nil DeletedAt marks the
// record as soft-deleted; rows are never removed.
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"size:255;not null" json:"name"`
	Email     string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Phone     string     `gorm:"size:64" json:"phone"`
	CreatedAt time.Time  `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"not null;index" json:"updatedAt"`
	DeletedAt *time.Time `gorm:"index" json:"deletedAt"`
}

// Active reports whether the record has not been soft-deleted.
func (u *User) Active() bool {
	return u != nil && u.DeletedAt == nil
}
