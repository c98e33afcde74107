package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingDraft    = errors.New("draft is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a dotted operation code identifying the failing step.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "drafts.service.new"
	opSaveDraft   = "drafts.save_draft"
	opListDrafts  = "drafts.list_drafts"
	opDeleteDraft = "drafts.delete_draft"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies for the draft store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service persists drafts in the local database. It is the default Store
// wired by the harness; the recording notifier only sees the interface.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the draft store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// SaveDraft inserts or updates a draft record.
func (s *Service) SaveDraft(ctx context.Context, draft *Draft) error {
	if draft == nil {
		return newServiceError(opSaveDraft, "missing_draft", errMissingDraft)
	}
	if _, err := NewDraftID(draft.DraftID); err != nil {
		return newServiceError(opSaveDraft, "invalid_draft_id", err)
	}

	now := s.clock().UTC().Unix()
	if draft.CreatedAtSeconds == 0 {
		draft.CreatedAtSeconds = now
	}
	draft.UpdatedAtSeconds = now

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(draft).Error
	if err != nil {
		s.logError(opSaveDraft, "save_failed", err, zap.String("draft_id", draft.DraftID))
		return newServiceError(opSaveDraft, "save_failed", err)
	}
	return nil
}

// ListDrafts returns all drafts, newest first.
func (s *Service) ListDrafts(ctx context.Context) ([]Draft, error) {
	var records []Draft
	err := s.db.WithContext(ctx).
		Order("created_at_s DESC").
		Find(&records).Error
	if err != nil {
		s.logError(opListDrafts, "query_failed", err)
		return nil, newServiceError(opListDrafts, "query_failed", err)
	}
	return records, nil
}

// DeleteDraft removes a draft by identifier. Deleting an absent draft is not
// an error.
func (s *Service) DeleteDraft(ctx context.Context, id DraftID) error {
	if id == "" {
		return newServiceError(opDeleteDraft, "invalid_draft_id", ErrInvalidDraftID)
	}
	err := s.db.WithContext(ctx).
		Where("draft_id = ?", id.String()).
		Delete(&Draft{}).Error
	if err != nil {
		s.logError(opDeleteDraft, "delete_failed", err, zap.String("draft_id", id.String()))
		return newServiceError(opDeleteDraft, "delete_failed", err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("draft store error", attrs...)
}
