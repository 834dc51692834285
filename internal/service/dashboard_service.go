package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/catams-api/internal/dto"
	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/internal/repository"
	appErrors "github.com/noah-isme/catams-api/pkg/errors"
)

const dashboardCachePrefix = "dashboard:summary:"

type dashboardTimesheetStore interface {
	CountByStatusForTutor(ctx context.Context, tutorID string) ([]repository.StatusCount, error)
	CountByStatusForLecturer(ctx context.Context, lecturerID string) ([]repository.StatusCount, error)
	CountByStatus(ctx context.Context) ([]repository.StatusCount, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	ObserveCacheWrite(duration time.Duration)
}

// DashboardService builds per-role pending-queue summaries. Results are
// cached in Redis and invalidated whenever a timesheet changes.
type DashboardService struct {
	timesheets dashboardTimesheetStore
	cache      summaryCache
	metrics    cacheObserver
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewDashboardService constructs the service. A zero TTL disables expiry
// pressure and falls back to thirty seconds.
func NewDashboardService(timesheets dashboardTimesheetStore, cache summaryCache, metrics cacheObserver, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DashboardService{
		timesheets: timesheets,
		cache:      cache,
		metrics:    metrics,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

// Summary returns the status breakdown visible to the caller: tutors see
// their own timesheets, lecturers their courses, HR and admins everything.
func (s *DashboardService) Summary(ctx context.Context, actor *models.JWTClaims) (*dto.DashboardSummaryResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	key := dashboardCachePrefix + string(actor.Role) + ":" + actor.UserID
	if s.cache != nil {
		var cached dto.DashboardSummaryResponse
		start := s.now()
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		}
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache lookup failed", zap.Error(err))
		}
	}

	var (
		counts []repository.StatusCount
		err    error
	)
	switch actor.Role {
	case models.RoleTutor:
		counts, err = s.timesheets.CountByStatusForTutor(ctx, actor.UserID)
	case models.RoleLecturer:
		counts, err = s.timesheets.CountByStatusForLecturer(ctx, actor.UserID)
	case models.RoleHR, models.RoleAdmin:
		counts, err = s.timesheets.CountByStatus(ctx)
	default:
		return nil, appErrors.ErrForbidden
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate timesheets")
	}

	summary := &dto.DashboardSummaryResponse{
		Role:        actor.Role,
		Counts:      make(map[models.TimesheetStatus]int, len(counts)),
		GeneratedAt: s.now().UTC(),
	}
	for _, c := range counts {
		summary.Counts[c.Status] = c.Count
		summary.Total += c.Count
	}

	if s.cache != nil {
		start := s.now()
		if err := s.cache.Set(ctx, key, summary, s.ttl); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		} else if s.metrics != nil {
			s.metrics.ObserveCacheWrite(time.Since(start))
		}
	}
	return summary, nil
}

// InvalidateSummaries drops every cached summary. Called after any timesheet
// mutation so no role sees a stale queue.
func (s *DashboardService) InvalidateSummaries(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, dashboardCachePrefix+"*"); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
