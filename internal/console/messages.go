package console

import (
	"sync"

	"support-console/internal/model"
)

// MessageLog is the open session's transcript in arrival order. A message id
// is kept once, whichever source delivers it first.
type MessageLog struct {
	mu   sync.RWMutex
	ids  map[string]struct{}
	msgs []model.Message
}

func NewMessageLog(seed []model.Message) *MessageLog {
	l := &MessageLog{ids: make(map[string]struct{}, len(seed))}
	for _, m := range seed {
		l.Append(m)
	}
	return l
}

// Append reports whether m was new.
func (l *MessageLog) Append(m model.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.ids[m.ID]; dup {
		return false
	}
	l.ids[m.ID] = struct{}{}
	l.msgs = append(l.msgs, m)
	return true
}

func (l *MessageLog) Messages() []model.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

// Merge folds a server history into the log. History keeps its order as a
// prefix; messages only seen live stay after it in arrival order. It returns
// the history messages the log did not have.
func (l *MessageLog) Merge(history []model.Message) []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	inHistory := make(map[string]struct{}, len(history))
	merged := make([]model.Message, 0, len(history)+len(l.msgs))
	var added []model.Message
	for _, m := range history {
		if _, dup := inHistory[m.ID]; dup {
			continue
		}
		inHistory[m.ID] = struct{}{}
		merged = append(merged, m)
		if _, known := l.ids[m.ID]; !known {
			l.ids[m.ID] = struct{}{}
			added = append(added, m)
		}
	}
	for _, m := range l.msgs {
		if _, ok := inHistory[m.ID]; !ok {
			merged = append(merged, m)
		}
	}
	l.msgs = merged
	return added
}
