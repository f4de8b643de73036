package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/monitoring"
	"github.com/Blackie360/Persona-Studio/utils"
)

// ImageGenerator is the external AI call: opaque, slow, fallible, and
// non-idempotent. The core only decides whether it may run and accounts for
// the outcome.
type ImageGenerator interface {
	Generate(ctx context.Context, req *models.GenerateRequest) (*models.GeneratedImage, error)
}

type attemptCompleter interface {
	RecordAttemptEnd(ctx context.Context, attemptID string, status models.AttemptStatus, imageURL string) error
}

// AdmissionDeniedError carries the decision so the transport layer can
// answer 429 with the remaining count.
type AdmissionDeniedError struct {
	Decision Decision
}

func (e *AdmissionDeniedError) Error() string {
	return "generation not admitted: " + e.Decision.Reason
}

// GenerationService runs the full generation flow: block check, admission,
// the external call, and ledger completion.
type GenerationService struct {
	blocklist *BlocklistService
	admission *AdmissionService
	usage     attemptCompleter
	generator ImageGenerator
	logger    *utils.Logger
}

func CreateGenerationService(
	blocklist *BlocklistService,
	admission *AdmissionService,
	usage attemptCompleter,
	generator ImageGenerator,
) *GenerationService {
	return &GenerationService{
		blocklist: blocklist,
		admission: admission,
		usage:     usage,
		generator: generator,
		logger:    utils.NewLogger("generation"),
	}
}

// Generate admits, invokes the external call, and settles the ledger. On
// failure or cancellation the attempt row goes to failed and any paid
// half-units reserved at admission are returned; ledger completion itself is
// best-effort and never turns a produced image into a user-facing error.
func (s *GenerationService) Generate(ctx context.Context, identity Identity, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	if s.blocklist.IsBlocked(ctx, identity) {
		// Deliberately indistinguishable from an ordinary denial; the
		// blocked party learns nothing about moderation state.
		monitoring.AdmissionsTotal.WithLabelValues("denied", "blocked").Inc()
		return nil, &AdmissionDeniedError{Decision: Decision{Reason: ReasonRateLimited}}
	}

	costClass := req.CostClass
	if costClass == "" {
		costClass = models.CostClassFull
	}

	attempt := &models.GenerationAttempt{
		ID:          uuid.NewString(),
		CostClass:   costClass,
		Prompt:      req.Prompt,
		AvatarStyle: req.AvatarStyle,
		Background:  req.Background,
		ColorMood:   req.ColorMood,
	}
	if identity.SessionID != "" {
		attempt.SessionID = &identity.SessionID
	}

	result, err := s.admission.Admit(ctx, identity, attempt)
	if err != nil {
		return nil, utils.ErrServiceUnavailable
	}
	if !result.Decision.Allowed {
		return nil, &AdmissionDeniedError{Decision: result.Decision}
	}

	start := time.Now()
	image, err := s.generator.Generate(ctx, req)
	monitoring.GenerationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.completeAttempt(result.AttemptID, models.AttemptStatusFailed, "")
		s.admission.Refund(context.WithoutCancel(ctx), identity, result.Charges)
		monitoring.GenerationsTotal.WithLabelValues(string(models.AttemptStatusFailed)).Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error(ctx, "external generation call failed", map[string]interface{}{"error": err.Error()})
		return nil, utils.ErrGenerationFailed
	}

	s.completeAttempt(result.AttemptID, models.AttemptStatusSucceeded, image.URL)
	monitoring.GenerationsTotal.WithLabelValues(string(models.AttemptStatusSucceeded)).Inc()

	return &models.GenerateResponse{
		URL:         image.URL,
		Prompt:      req.Prompt,
		Description: image.Description,
		Remaining:   result.Decision.Remaining,
	}, nil
}

// completeAttempt settles the ledger row off the request context so client
// disconnects cannot abort the bookkeeping. A failure here is logged and
// swallowed: it must never surface to the user once the external call is
// done.
func (s *GenerationService) completeAttempt(attemptID string, status models.AttemptStatus, imageURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.usage.RecordAttemptEnd(ctx, attemptID, status, imageURL); err != nil {
		s.logger.Error(ctx, "failed to complete attempt row", map[string]interface{}{
			"error":      err.Error(),
			"attempt_id": attemptID,
			"status":     string(status),
		})
	}
}
