package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

// ErrInvalidDraftID indicates that a draft identifier is empty or exceeds storage bounds.
var ErrInvalidDraftID = errors.New("drafts: invalid draft id")

// DraftID represents a validated draft identifier.
type DraftID string

// NewDraftID validates raw input and returns a DraftID.
func NewDraftID(rawInput string) (DraftID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDraftID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDraftID, maxIdentifierLength)
	}
	return DraftID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DraftID) String() string {
	return string(id)
}

// Draft models an unpublished recording persisted on device. ProofManifest
// carries the signed capture manifest when proof mode was active for the
// session.
type Draft struct {
	DraftID          string `gorm:"column:draft_id;primaryKey;size:190;not null"`
	FilePath         string `gorm:"column:file_path;type:text;not null"`
	Title            string `gorm:"column:title;size:320;not null;default:''"`
	Description      string `gorm:"column:description;type:text;not null;default:''"`
	HashtagsJSON     string `gorm:"column:hashtags_json;type:text;not null;default:'[]'"`
	ProofManifest    string `gorm:"column:proof_manifest;type:text;not null;default:''"`
	DurationMillis   int64  `gorm:"column:duration_ms;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_drafts_created"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Draft) TableName() string {
	return "drafts"
}

// Store is the draft persistence contract the recording notifier depends on.
type Store interface {
	SaveDraft(ctx context.Context, draft *Draft) error
	ListDrafts(ctx context.Context) ([]Draft, error)
	DeleteDraft(ctx context.Context, id DraftID) error
}
