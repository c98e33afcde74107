package drafts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:drafts_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Draft{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }
	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct draft store: %v", err)
	}
	return service
}

func TestSaveDraftPersistsAndLists(t *testing.T) {
	service := newTestService(t)

	draft := &Draft{
		DraftID:  "draft-1",
		FilePath: "/tmp/clip-1.mp4",
		Title:    "first clip",
	}
	if err := service.SaveDraft(context.Background(), draft); err != nil {
		t.Fatalf("save: %v", err)
	}
	if draft.CreatedAtSeconds != 1700000600 {
		t.Fatalf("created_at not stamped: %d", draft.CreatedAtSeconds)
	}

	listed, err := service.ListDrafts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].DraftID != "draft-1" {
		t.Fatalf("unexpected listing: %+v", listed)
	}
}

func TestSaveDraftUpsertsExisting(t *testing.T) {
	service := newTestService(t)

	draft := &Draft{DraftID: "draft-1", FilePath: "/tmp/a.mp4"}
	if err := service.SaveDraft(context.Background(), draft); err != nil {
		t.Fatalf("save: %v", err)
	}
	draft.Title = "renamed"
	if err := service.SaveDraft(context.Background(), draft); err != nil {
		t.Fatalf("second save: %v", err)
	}

	listed, err := service.ListDrafts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected upsert, got %d rows", len(listed))
	}
	if listed[0].Title != "renamed" {
		t.Fatalf("update lost: %+v", listed[0])
	}
}

func TestSaveDraftRejectsInvalidID(t *testing.T) {
	service := newTestService(t)

	err := service.SaveDraft(context.Background(), &Draft{DraftID: "  "})
	if err == nil {
		t.Fatalf("expected error for empty draft id")
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if serviceErr.Code() != "drafts.save_draft.invalid_draft_id" {
		t.Fatalf("unexpected code %q", serviceErr.Code())
	}
}

func TestDeleteDraftRemovesRow(t *testing.T) {
	service := newTestService(t)

	if err := service.SaveDraft(context.Background(), &Draft{DraftID: "draft-1", FilePath: "/tmp/a.mp4"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := service.DeleteDraft(context.Background(), DraftID("draft-1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	listed, err := service.ListDrafts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("draft not deleted: %+v", listed)
	}

	// Absent draft: not an error.
	if err := service.DeleteDraft(context.Background(), DraftID("missing")); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestListDraftsNewestFirst(t *testing.T) {
	dsn := fmt.Sprintf("file:drafts_order_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Draft{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	current := time.Unix(1700000000, 0).UTC()
	service, err := NewService(ServiceConfig{Database: db, Clock: func() time.Time { return current }})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	if err := service.SaveDraft(context.Background(), &Draft{DraftID: "older", FilePath: "/tmp/a.mp4"}); err != nil {
		t.Fatalf("save older: %v", err)
	}
	current = current.Add(time.Hour)
	if err := service.SaveDraft(context.Background(), &Draft{DraftID: "newer", FilePath: "/tmp/b.mp4"}); err != nil {
		t.Fatalf("save newer: %v", err)
	}

	listed, err := service.ListDrafts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].DraftID != "newer" {
		t.Fatalf("expected newest first, got %+v", listed)
	}
}
