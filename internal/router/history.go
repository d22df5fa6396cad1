package router

import "stella/internal/domain"

const defaultHistoryWindow = 10

// History is a bounded window of recent route decisions, oldest first. It
// exists solely to resolve follow-up queries; callers own it, one per
// conversation. Not safe for concurrent use.
type History struct {
	capacity int
	items    []domain.RouteDecision
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryWindow
	}
	return &History{capacity: capacity}
}

// NewHistoryFrom seeds a window from externally held decisions, keeping
// only the newest entries that fit the capacity.
func NewHistoryFrom(capacity int, decisions []domain.RouteDecision) *History {
	h := NewHistory(capacity)
	for _, d := range decisions {
		h.Add(d)
	}
	return h
}

// Add appends a decision, evicting the oldest once the window is full.
func (h *History) Add(d domain.RouteDecision) {
	h.items = append(h.items, d)
	if len(h.items) > h.capacity {
		h.items = h.items[len(h.items)-h.capacity:]
	}
}

// Items returns a copy of the retained window, oldest first.
func (h *History) Items() []domain.RouteDecision {
	return append([]domain.RouteDecision(nil), h.items...)
}

func (h *History) Len() int { return len(h.items) }

// LastEntities returns the entities of the most recent decision that
// carried any, so a follow-up after an entity-less query still reaches the
// last concrete subject.
func (h *History) LastEntities() []string {
	for i := len(h.items) - 1; i >= 0; i-- {
		if len(h.items[i].Entities) > 0 {
			return append([]string(nil), h.items[i].Entities...)
		}
	}
	return nil
}
