package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dermascan/dermascan/internal/imagestore"
	"github.com/dermascan/dermascan/internal/imaging"
	"github.com/dermascan/dermascan/internal/inference"
	"github.com/dermascan/dermascan/internal/metrics"
	"github.com/dermascan/dermascan/internal/model"
	"github.com/dermascan/dermascan/internal/repository"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// AnalyzeInput is one image submitted for analysis.
type AnalyzeInput struct {
	ImageName string
	Data      []byte
	// Session is nil for anonymous callers; nothing is persisted then.
	Session *model.Session
}

// AnalysisResult is the outcome of Analyze.
type AnalysisResult struct {
	Diagnosis *model.Diagnosis
	ImageRef  string
	// HistoryID is set when the result was saved.
	HistoryID string
}

// Saved reports whether a history record was written.
func (r *AnalysisResult) Saved() bool {
	return r.HistoryID != ""
}

// HistoryPage is one page of a user's history plus the total record count.
type HistoryPage struct {
	Records []*model.HistoryRecord
	Total   int
}

// AnalysisService runs the analyze pipeline: validate, classify, store.
type AnalysisService struct {
	repo       *repository.Repository
	classifier inference.Classifier
	// budget bounds the whole classifier call, retries included.
	budget  time.Duration
	images  *imaging.Validator
	store   *imagestore.Store
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(
	repo *repository.Repository,
	classifier inference.Classifier,
	budget time.Duration,
	images *imaging.Validator,
	store *imagestore.Store,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *AnalysisService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = imagestore.New(nil, "", logger)
	}
	return &AnalysisService{
		repo:       repo,
		classifier: classifier,
		budget:     budget,
		images:     images,
		store:      store,
		metrics:    recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Analyze validates the image, asks the classifier for a diagnosis and, for
// authenticated callers, appends one history record.
func (s *AnalysisService) Analyze(ctx context.Context, in AnalyzeInput) (*AnalysisResult, error) {
	img, err := s.images.Validate(in.ImageName, in.Data)
	if err != nil {
		s.metrics.IncAnalysis(metrics.OutcomeRejected)
		switch {
		case errors.Is(err, imaging.ErrTooLarge):
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, s.images.MaxBytes())
		case errors.Is(err, imaging.ErrEmpty):
			return nil, fmt.Errorf("%w: image is empty", ErrValidation)
		default:
			return nil, fmt.Errorf("%w: upload must be a PNG, JPEG or WEBP image", ErrValidation)
		}
	}

	diagnosis, err := s.classify(ctx, img)
	if err != nil {
		s.metrics.IncAnalysis(metrics.OutcomeInferenceFailed)
		s.logger.Error("inference failed",
			"model", s.classifier.Model(),
			"mime_type", img.MIMEType,
			"error", err,
		)
		if !errors.Is(err, inference.ErrInference) {
			err = fmt.Errorf("%w: %v", inference.ErrUpstream, err)
		}
		return nil, err
	}

	result := &AnalysisResult{
		Diagnosis: diagnosis,
		ImageRef:  s.store.Reference(ctx, img),
	}

	if in.Session == nil {
		s.metrics.IncAnalysis(metrics.OutcomeSuccess)
		return result, nil
	}

	userID := in.Session.UserID
	rec := &model.HistoryRecord{
		ID:             ulid.Make().String(),
		UserID:         &userID,
		ImageName:      img.Name,
		ImageRef:       result.ImageRef,
		PredictedLabel: diagnosis.Disease,
		Confidence:     diagnosis.Confidence,
		TreatmentText:  diagnosis.TreatmentText(),
		Result:         diagnosis,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.repo.CreateHistoryRecord(ctx, rec); err != nil {
		s.metrics.IncAnalysis(metrics.OutcomeStoreFailed)
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	result.HistoryID = rec.ID
	s.metrics.IncHistorySaved()
	s.metrics.IncAnalysis(metrics.OutcomeSuccess)

	s.logger.Info("analysis saved",
		"history_id", rec.ID,
		"user_id", userID,
		"label", rec.PredictedLabel,
	)

	return result, nil
}

// classify runs the classifier under the inference budget. The budget
// covers retries, and the history write afterwards uses the caller's context.
func (s *AnalysisService) classify(ctx context.Context, img imaging.Image) (*model.Diagnosis, error) {
	if s.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	start := time.Now()
	diagnosis, err := s.classifier.Analyze(ctx, inference.Image{Data: img.Data, MIMEType: img.MIMEType})
	s.metrics.ObserveInferenceDuration(time.Since(start))
	if err != nil && !errors.Is(err, inference.ErrInference) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", inference.ErrTimeout, err)
	}
	return diagnosis, err
}

// History returns one page of the session user's records, newest first, and
// the user's total record count. A zero limit selects DefaultHistoryLimit;
// values above MaxHistoryLimit are rejected.
func (s *AnalysisService) History(ctx context.Context, session *model.Session, limit int) (*HistoryPage, error) {
	if session == nil {
		return nil, ErrInvalidCredentials
	}
	if limit < 0 || limit > MaxHistoryLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, MaxHistoryLimit)
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	records, err := s.repo.ListHistoryByUser(ctx, session.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	total, err := s.repo.CountHistoryByUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return &HistoryPage{Records: records, Total: total}, nil
}

// ModelName returns the classifier's model for health reporting.
func (s *AnalysisService) ModelName() string {
	return s.classifier.Model()
}
