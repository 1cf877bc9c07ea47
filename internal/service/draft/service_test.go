package draft

import (
	"context"
	"errors"
	"testing"

	"support-console/internal/model"
)

type failingRepository struct {
	*MemoryRepository
	putErr error
}

func (f *failingRepository) PutDraft(ctx context.Context, item model.DraftItem) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemoryRepository.PutDraft(ctx, item)
}

func TestSetAndGetDraft(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, "admin-1", nil)

	if err := svc.Set(context.Background(), "s-1", "half typed"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if got := svc.Get("s-1"); got != "half typed" {
		t.Fatalf("unexpected draft %q", got)
	}
	item, err := repo.GetDraft(context.Background(), "admin-1", "s-1")
	if err != nil {
		t.Fatalf("draft not persisted: %v", err)
	}
	if item.PK != "admin-1#s-1" || item.UpdatedAt == "" {
		t.Fatalf("unexpected stored item %+v", item)
	}
}

func TestBlankDraftClears(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, "admin-1", nil)
	svc.Set(context.Background(), "s-1", "text")

	if err := svc.Set(context.Background(), "s-1", "   "); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if svc.Get("s-1") != "" {
		t.Fatal("expected draft cleared")
	}
	if _, err := repo.GetDraft(context.Background(), "admin-1", "s-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stored draft deleted, got %v", err)
	}
}

func TestLoadRestoresOnlyOwnDrafts(t *testing.T) {
	repo := NewMemoryRepository()
	NewService(repo, "admin-1", nil).Set(context.Background(), "s-1", "mine")
	NewService(repo, "admin-2", nil).Set(context.Background(), "s-1", "theirs")

	svc := NewService(repo, "admin-1", nil)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := svc.Get("s-1"); got != "mine" {
		t.Fatalf("unexpected draft %q", got)
	}
}

func TestPersistFailureKeepsCachedDraft(t *testing.T) {
	boom := errors.New("throttled")
	svc := NewService(&failingRepository{MemoryRepository: NewMemoryRepository(), putErr: boom}, "admin-1", nil)

	if err := svc.Set(context.Background(), "s-1", "keep me"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := svc.Get("s-1"); got != "keep me" {
		t.Fatalf("cached draft lost: %q", got)
	}
}
