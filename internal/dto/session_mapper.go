package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"support-console/internal/model"
)

var ErrInvalidPayload = errors.New("dto: invalid payload")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

func ToSession(p SessionPayload) (model.Session, error) {
	id := strings.TrimSpace(p.SessionID)
	if id == "" {
		return model.Session{}, invalid("session id missing")
	}
	status, err := model.ParseSessionStatus(p.Status)
	if err != nil {
		return model.Session{}, fmt.Errorf("session %s: %w", id, err)
	}
	if p.MessageCount < 0 {
		return model.Session{}, invalid("session %s: negative message count %d", id, p.MessageCount)
	}
	createdAt, err := parseTime(p.CreatedAt)
	if err != nil {
		return model.Session{}, invalid("session %s: createdAt: %v", id, err)
	}

	s := model.Session{
		ID:              id,
		Status:          status,
		Language:        p.Language,
		Domain:          p.Domain,
		CollectedInfo:   cloneInfo(p.CollectedInfo),
		CreatedAt:       createdAt,
		MessageCount:    p.MessageCount,
		LastMessage:     p.LastMessage,
		AssignedAdminID: p.AssignedAdminID,
	}
	if p.User != nil {
		s.User = model.UserRef{
			ID:         p.User.ID,
			Nickname:   p.User.Nickname,
			University: p.User.University,
			Phone:      p.User.Phone,
		}
	}
	return s, nil
}

// ToSessions narrows a whole page. One bad row fails the page, so a roster is
// never applied with silently missing sessions.
func ToSessions(in []SessionPayload) ([]model.Session, error) {
	out := make([]model.Session, 0, len(in))
	for _, p := range in {
		s, err := ToSession(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ToMessage narrows a message. sessionID fills in an omitted session field.
// Metadata is display-only: a malformed block is dropped, not fatal.
func ToMessage(p MessagePayload, sessionID string) (model.Message, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return model.Message{}, invalid("message id missing")
	}
	sender, err := model.ParseSenderType(p.SenderType)
	if err != nil {
		return model.Message{}, fmt.Errorf("message %s: %w", id, err)
	}
	createdAt, err := parseTime(p.CreatedAt)
	if err != nil {
		return model.Message{}, invalid("message %s: createdAt: %v", id, err)
	}
	sid := p.SessionID
	if sid == "" {
		sid = sessionID
	}

	m := model.Message{
		ID:         id,
		SessionID:  sid,
		SenderType: sender,
		Content:    p.Content,
		CreatedAt:  createdAt,
	}
	if meta, ok := toMetadata(p.Metadata); ok {
		m.Metadata = meta
	}
	return m, nil
}

func ToMessages(in []MessagePayload, sessionID string) ([]model.Message, error) {
	out := make([]model.Message, 0, len(in))
	for _, p := range in {
		m, err := ToMessage(p, sessionID)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func ToSessionDetail(p SessionDetailResponse) (model.SessionDetail, error) {
	s, err := ToSession(p.SessionPayload)
	if err != nil {
		return model.SessionDetail{}, err
	}
	msgs, err := ToMessages(p.Messages, s.ID)
	if err != nil {
		return model.SessionDetail{}, err
	}
	return model.SessionDetail{Session: s, Messages: msgs}, nil
}

func ToSessionPage(p ListSessionsResponse) (model.SessionPage, error) {
	sessions, err := ToSessions(p.Sessions)
	if err != nil {
		return model.SessionPage{}, err
	}
	return model.SessionPage{
		Sessions: sessions,
		Pagination: model.Pagination{
			Total: p.Pagination.Total,
			Page:  p.Pagination.Page,
			Limit: p.Pagination.Limit,
		},
	}, nil
}

func ToStatusChange(p StatusChangedEvent) (model.StatusChange, error) {
	newStatus, err := model.ParseSessionStatus(p.NewStatus)
	if err != nil {
		return model.StatusChange{}, fmt.Errorf("status change for %s: %w", p.SessionID, err)
	}
	change := model.StatusChange{
		SessionID:       p.SessionID,
		NewStatus:       newStatus,
		AssignedAdminID: p.AssignedAdminID,
	}
	// oldStatus is informational; an unrecognised one is dropped rather than trusted.
	if old, err := model.ParseSessionStatus(p.OldStatus); err == nil {
		change.OldStatus = old
	}
	return change, nil
}

func ToActionResult(p SessionActionResponse, sessionID string) (model.StatusChange, error) {
	status, err := model.ParseSessionStatus(p.Status)
	if err != nil {
		return model.StatusChange{}, fmt.Errorf("action result for %s: %w", sessionID, err)
	}
	if p.SessionID != "" && p.SessionID != sessionID {
		return model.StatusChange{}, invalid("action result for %s names session %s", sessionID, p.SessionID)
	}
	return model.StatusChange{
		SessionID:       sessionID,
		NewStatus:       status,
		AssignedAdminID: p.AssignedAdminID,
	}, nil
}

func ToTyping(p TypingPayload) model.Typing {
	t := model.Typing{SessionID: p.SessionID, IsTyping: p.IsTyping}
	if sender, err := model.ParseSenderType(p.SenderType); err == nil {
		t.SenderType = sender
	}
	return t
}

func toMetadata(raw json.RawMessage) (*model.MessageMetadata, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	var p MetadataPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	if p.Confidence == nil && p.Phase == "" {
		return nil, false
	}
	return &model.MessageMetadata{Confidence: p.Confidence, Phase: p.Phase}, true
}

func parseTime(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func cloneInfo(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
