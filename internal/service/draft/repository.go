package draft

import (
	"context"
	"errors"
	"sync"

	"support-console/internal/database"
	"support-console/internal/model"
)

var ErrNotFound = errors.New("draft repository: not found")

type Repository interface {
	GetDraft(ctx context.Context, adminID, sessionID string) (model.DraftItem, error)
	PutDraft(ctx context.Context, item model.DraftItem) error
	DeleteDraft(ctx context.Context, adminID, sessionID string) error
	ListDrafts(ctx context.Context, adminID string) ([]model.DraftItem, error)
}

type DynamoRepository struct {
	table database.Table
}

func NewDynamoRepository(db *database.DynamoDBClient, table string) Repository {
	if table == "" {
		table = model.DraftsTable
	}
	return &DynamoRepository{table: db.Table(table)}
}

func (r *DynamoRepository) GetDraft(ctx context.Context, adminID, sessionID string) (model.DraftItem, error) {
	var item model.DraftItem
	if err := r.table.Get(ctx, draftKey(adminID, sessionID), &item); err != nil {
		if errors.Is(err, database.ErrItemNotFound) {
			return model.DraftItem{}, ErrNotFound
		}
		return model.DraftItem{}, err
	}
	return item, nil
}

func (r *DynamoRepository) PutDraft(ctx context.Context, item model.DraftItem) error {
	item.PK = model.DraftPK(item.AdminID, item.SessionID)
	return r.table.Put(ctx, item)
}

func (r *DynamoRepository) DeleteDraft(ctx context.Context, adminID, sessionID string) error {
	return r.table.Delete(ctx, draftKey(adminID, sessionID))
}

func (r *DynamoRepository) ListDrafts(ctx context.Context, adminID string) ([]model.DraftItem, error) {
	var items []model.DraftItem
	if err := r.table.QueryIndex(ctx, model.DraftsAdminIndex, "adminId", adminID, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func draftKey(adminID, sessionID string) database.Key {
	return database.StringKey("pk", model.DraftPK(adminID, sessionID))
}

// MemoryRepository keeps drafts for the life of the process.
type MemoryRepository struct {
	mu     sync.Mutex
	drafts map[string]model.DraftItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{drafts: make(map[string]model.DraftItem)}
}

func (m *MemoryRepository) GetDraft(ctx context.Context, adminID, sessionID string) (model.DraftItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.drafts[model.DraftPK(adminID, sessionID)]
	if !ok {
		return model.DraftItem{}, ErrNotFound
	}
	return item, nil
}

func (m *MemoryRepository) PutDraft(ctx context.Context, item model.DraftItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[item.PK] = item
	return nil
}

func (m *MemoryRepository) DeleteDraft(ctx context.Context, adminID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, model.DraftPK(adminID, sessionID))
	return nil
}

func (m *MemoryRepository) ListDrafts(ctx context.Context, adminID string) ([]model.DraftItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DraftItem
	for _, item := range m.drafts {
		if item.AdminID == adminID {
			out = append(out, item)
		}
	}
	return out, nil
}
