package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/pkg/jobs"
)

const jobTypeTransition = "timesheet.transition"

// NotificationService fans committed workflow transitions out to the parties
// who need to act next: the tutor on rejection or modification request, the
// lecturer when a claim enters their queue, HR when a claim awaits final
// confirmation. Delivery runs on a background queue and never blocks or
// fails the originating request.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService builds the service and its delivery queue. Call
// Start before enqueueing and Stop on shutdown.
func NewNotificationService(cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, cfg)
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyTransition enqueues delivery for a committed transition.
func (s *NotificationService) NotifyTransition(ctx context.Context, event TransitionEvent) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeTransition,
		Payload: event,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue transition notification",
			zap.String("timesheet_id", event.TimesheetID), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(TransitionEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type for job %s", job.ID)
	}

	// Recipients follow who owns the next step of the workflow.
	var recipient string
	switch event.NewStatus {
	case models.StatusPendingTutorReview, models.StatusApprovedByTutor:
		recipient = "lecturer"
	case models.StatusPendingHRReview:
		recipient = "hr"
	case models.StatusRejected, models.StatusModificationRequested, models.StatusFinalConfirmed:
		recipient = "tutor"
	default:
		return nil
	}

	s.logger.Info("timesheet transition notification",
		zap.String("timesheet_id", event.TimesheetID),
		zap.String("recipient", recipient),
		zap.String("tutor_id", event.TutorID),
		zap.String("course_id", event.CourseID),
		zap.String("action", string(event.Action)),
		zap.String("new_status", string(event.NewStatus)),
		zap.Time("at", event.At),
	)
	return nil
}
