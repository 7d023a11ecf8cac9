package server

import (
	"sync"

	"github.com/xhad/dqcheck/internal/models"
)

// Hub fans pipeline state changes out to per-job subscribers. Each
// subscriber has a bounded queue; updates that do not fit are dropped.
type Hub struct {
	mu        sync.Mutex
	queueSize int
	subs      map[string]map[chan models.PipelineState]struct{}
	dropped   int
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Hub{
		queueSize: queueSize,
		subs:      make(map[string]map[chan models.PipelineState]struct{}),
	}
}

// Subscribe registers a queue for jobID. The returned func unsubscribes.
func (h *Hub) Subscribe(jobID string) (<-chan models.PipelineState, func()) {
	ch := make(chan models.PipelineState, h.queueSize)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan models.PipelineState]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[jobID], ch)
			if len(h.subs[jobID]) == 0 {
				delete(h.subs, jobID)
			}
		})
	}
}

// Publish never blocks.
func (h *Hub) Publish(state models.PipelineState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[state.JobID] {
		select {
		case ch <- state.Clone():
		default:
			h.dropped++
		}
	}
}

func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

// Dropped reports how many updates were discarded on full queues.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
