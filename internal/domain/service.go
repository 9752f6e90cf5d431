// Package domain defines the business logic for the wellness activity service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/wellness/internal/observability"
)

var (
	// ErrValidation marks input rejected before it reaches storage.
	ErrValidation = errors.New("validation failed")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
)

// ActivityRepository captures persistence operations.
type ActivityRepository interface {
	Create(ctx context.Context, record ActivityRecord) error
	Get(ctx context.Context, activityID string) (*ActivityRecord, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error)
	ListAllByUser(ctx context.Context, userID string) ([]ActivityRecord, error)
}

// Cursor models the pagination token.
type Cursor struct {
	CompletedAt time.Time
	ID          string
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the source of the current time.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Service orchestrates activity workflows.
type Service struct {
	repo  ActivityRepository
	clock func() time.Time
}

// NewService constructs a Service.
func NewService(repo ActivityRepository, opts ...Option) *Service {
	s := &Service{repo: repo, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogActivityInput captures the payload from the API layer.
type LogActivityInput struct {
	UserID          string
	Type            string
	Name            string
	Slug            string
	DurationSeconds int
	// CompletedAt optionally backdates the activity. Empty means now.
	CompletedAt string
}

// Validate ensures the input describes a loggable activity.
func (in LogActivityInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(in.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrValidation)
	}
	if _, ok := ParseActivityType(in.Type); !ok {
		return fmt.Errorf("%w: type must be one of meditation, exercise, strategy", ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(in.Slug) == "" {
		return fmt.Errorf("%w: slug is required", ErrValidation)
	}
	if in.DurationSeconds < 0 {
		return fmt.Errorf("%w: duration_seconds must be >= 0", ErrValidation)
	}
	if strings.TrimSpace(in.CompletedAt) != "" && ParseCompletedAt(in.CompletedAt).IsZero() {
		return fmt.Errorf("%w: completed_at is not a recognised timestamp", ErrValidation)
	}
	return nil
}

// LogActivity validates and persists a completed activity. CompletedAt defaults to the current time.
func (s *Service) LogActivity(ctx context.Context, input LogActivityInput) (*ActivityRecord, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	activityType, _ := ParseActivityType(input.Type)
	now := s.clock().UTC()
	completedAt := now
	if ts := ParseCompletedAt(input.CompletedAt); !ts.IsZero() {
		if ts.After(now) {
			return nil, fmt.Errorf("%w: completed_at is in the future", ErrValidation)
		}
		completedAt = ts
	}
	record := ActivityRecord{
		ID:              uuid.NewString(),
		UserID:          strings.TrimSpace(input.UserID),
		Type:            activityType,
		Name:            strings.TrimSpace(input.Name),
		Slug:            strings.TrimSpace(input.Slug),
		DurationSeconds: input.DurationSeconds,
		CompletedAt:     completedAt,
		CreatedAt:       now,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, activityID string) (*ActivityRecord, error) {
	rec, err := s.repo.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrActivityNotFound
	}
	return rec, nil
}

// ListActivities fetches a user's activities with cursor pagination, most recent first.
func (s *Service) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error) {
	return s.repo.ListByUser(ctx, userID, cursor, limit)
}

// ActivityOverview pairs a user's most recent records with stats over their whole history.
type ActivityOverview struct {
	Recent []ActivityRecord
	Stats  ActivityStats
}

// GetStats loads every record the user owns and summarises them as of the service clock.
func (s *Service) GetStats(ctx context.Context, userID string, recentLimit int) (*ActivityOverview, error) {
	records, err := s.repo.ListAllByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stats := ComputeStats(records, s.clock())
	observability.ObserveStatsComputed(time.Since(start), stats.Streak)

	return &ActivityOverview{
		Recent: mostRecent(records, recentLimit),
		Stats:  stats,
	}, nil
}

func mostRecent(records []ActivityRecord, limit int) []ActivityRecord {
	sorted := append([]ActivityRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CompletedAt.Equal(sorted[j].CompletedAt) {
			return sorted[i].CompletedAt.After(sorted[j].CompletedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
