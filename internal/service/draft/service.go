// Package draft keeps the admin's unsent replies per session.
package draft

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"support-console/internal/model"
)

// Service is a write-through cache over a Repository. Reads never leave the
// process once Load has run.
type Service struct {
	repo    Repository
	adminID string
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	drafts map[string]string
}

func NewService(repo Repository, adminID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if adminID == "" {
		adminID = "admin"
	}
	return &Service{
		repo:    repo,
		adminID: adminID,
		logger:  logger,
		now:     time.Now,
		drafts:  make(map[string]string),
	}
}

// Load pulls every stored draft for the admin into memory.
func (s *Service) Load(ctx context.Context) error {
	items, err := s.repo.ListDrafts(ctx, s.adminID)
	if err != nil {
		return fmt.Errorf("load drafts: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.drafts[item.SessionID] = item.Body
	}
	s.logger.Info("drafts loaded", "admin_id", s.adminID, "count", len(items))
	return nil
}

func (s *Service) Get(sessionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drafts[sessionID]
}

// Set stores body for sessionID. A blank body removes the draft. The cached
// value is kept even when persisting fails.
func (s *Service) Set(ctx context.Context, sessionID, body string) error {
	if sessionID == "" {
		return fmt.Errorf("draft: session id required")
	}
	if strings.TrimSpace(body) == "" {
		return s.Clear(ctx, sessionID)
	}

	s.mu.Lock()
	s.drafts[sessionID] = body
	s.mu.Unlock()

	err := s.repo.PutDraft(ctx, model.DraftItem{
		PK:        model.DraftPK(s.adminID, sessionID),
		AdminID:   s.adminID,
		SessionID: sessionID,
		Body:      body,
		UpdatedAt: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("save draft for %s: %w", sessionID, err)
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	_, had := s.drafts[sessionID]
	delete(s.drafts, sessionID)
	s.mu.Unlock()

	if !had {
		return nil
	}
	if err := s.repo.DeleteDraft(ctx, s.adminID, sessionID); err != nil {
		return fmt.Errorf("clear draft for %s: %w", sessionID, err)
	}
	return nil
}
