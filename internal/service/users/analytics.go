package users

import (
	"context"
	"fmt"
	"time"

	"admindash/internal/models"
)

// Counts is the analytics summary for a date range. Categories overlap: a row
// updated and deleted inside the range is counted in both.
type Counts struct {
	Created  int64 `json:"created"`
	Modified int64 `json:"modified"`
	Deleted  int64 `json:"deleted"`
}

// DayRange widens [from, to] to whole calendar days in loc: 00:00:00.000 of
// from through 23:59:59.999 of to.
func DayRange(from, to time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	from = from.In(loc)
	to = to.In(loc)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}

// ParseDay accepts RFC 3339 timestamps or plain YYYY-MM-DD dates; plain dates
// are read in loc.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, value)
}

// Analytics counts users whose createdAt, updatedAt and deletedAt fall inside
// the inclusive range [start, end].
func (s *Service) Analytics(ctx context.Context, start, end time.Time) (Counts, error) {
	var counts Counts
	if end.Before(start) {
		return counts, fmt.Errorf("%w: range end precedes start", ErrInvalidInput)
	}
	start, end = start.UTC(), end.UTC()
	db := s.db.WithContext(ctx).Model(&models.User{})

	if err := db.Where("created_at >= ? AND created_at <= ?", start, end).Count(&counts.Created).Error; err != nil {
		return counts, fmt.Errorf("count created: %w", err)
	}
	db = s.db.WithContext(ctx).Model(&models.User{})
	if err := db.Where("updated_at >= ? AND updated_at <= ?", start, end).Count(&counts.Modified).Error; err != nil {
		return counts, fmt.Errorf("count modified: %w", err)
	}
	db = s.db.WithContext(ctx).Model(&models.User{})
	if err := db.Where("deleted_at IS NOT NULL AND deleted_at >= ? AND deleted_at <= ?", start, end).Count(&counts.Deleted).Error; err != nil {
		return counts, fmt.Errorf("count deleted: %w", err)
	}
	return counts, nil
}
