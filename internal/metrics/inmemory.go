package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	MessagesHandled map[string]map[string]uint64 // mode -> status -> count

	GenerationDurationCount   map[string]uint64
	GenerationDurationTotalNs map[string]int64

	CreditsDebited uint64
	CreditsGranted uint64

	ChatsCreated uint64
	ChatsDeleted uint64

	AuthFailures map[string]uint64

	GalleryCacheHits   uint64
	GalleryCacheMisses uint64
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	mu              sync.Mutex
	messagesHandled map[string]map[string]uint64
	genCount        map[string]uint64
	genTotalNs      map[string]int64
	authFailures    map[string]uint64

	creditsDebited     uint64
	creditsGranted     uint64
	chatsCreated       uint64
	chatsDeleted       uint64
	galleryCacheHits   uint64
	galleryCacheMisses uint64
}

var _ Recorder = (*InMemoryRecorder)(nil)

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		messagesHandled: make(map[string]map[string]uint64),
		genCount:        make(map[string]uint64),
		genTotalNs:      make(map[string]int64),
		authFailures:    make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		MessagesHandled:           make(map[string]map[string]uint64, len(m.messagesHandled)),
		GenerationDurationCount:   make(map[string]uint64, len(m.genCount)),
		GenerationDurationTotalNs: make(map[string]int64, len(m.genTotalNs)),
		AuthFailures:              make(map[string]uint64, len(m.authFailures)),
		CreditsDebited:            atomic.LoadUint64(&m.creditsDebited),
		CreditsGranted:            atomic.LoadUint64(&m.creditsGranted),
		ChatsCreated:              atomic.LoadUint64(&m.chatsCreated),
		ChatsDeleted:              atomic.LoadUint64(&m.chatsDeleted),
		GalleryCacheHits:          atomic.LoadUint64(&m.galleryCacheHits),
		GalleryCacheMisses:        atomic.LoadUint64(&m.galleryCacheMisses),
	}
	for mode, byStatus := range m.messagesHandled {
		cp := make(map[string]uint64, len(byStatus))
		for status, n := range byStatus {
			cp[status] = n
		}
		snap.MessagesHandled[mode] = cp
	}
	for k, v := range m.genCount {
		snap.GenerationDurationCount[k] = v
	}
	for k, v := range m.genTotalNs {
		snap.GenerationDurationTotalNs[k] = v
	}
	for k, v := range m.authFailures {
		snap.AuthFailures[k] = v
	}
	return snap
}

// IncMessageHandled counts one finished message request.
func (m *InMemoryRecorder) IncMessageHandled(mode, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStatus, ok := m.messagesHandled[mode]
	if !ok {
		byStatus = make(map[string]uint64)
		m.messagesHandled[mode] = byStatus
	}
	byStatus[status]++
}

// ObserveGenerationDuration records one provider call.
func (m *InMemoryRecorder) ObserveGenerationDuration(mode string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genCount[mode]++
	m.genTotalNs[mode] += duration.Nanoseconds()
}

// AddCreditsDebited adds to the debited credits counter.
func (m *InMemoryRecorder) AddCreditsDebited(amount int64) {
	if amount > 0 {
		atomic.AddUint64(&m.creditsDebited, uint64(amount))
	}
}

// AddCreditsGranted adds to the granted credits counter.
func (m *InMemoryRecorder) AddCreditsGranted(amount int64) {
	if amount > 0 {
		atomic.AddUint64(&m.creditsGranted, uint64(amount))
	}
}

// IncChatCreated increments chat created counter.
func (m *InMemoryRecorder) IncChatCreated() {
	atomic.AddUint64(&m.chatsCreated, 1)
}

// IncChatDeleted increments chat deleted counter.
func (m *InMemoryRecorder) IncChatDeleted() {
	atomic.AddUint64(&m.chatsDeleted, 1)
}

// IncAuthFailure counts a rejected authentication by reason.
func (m *InMemoryRecorder) IncAuthFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures[reason]++
}

// IncGalleryCacheHit increments gallery cache hit counter.
func (m *InMemoryRecorder) IncGalleryCacheHit() {
	atomic.AddUint64(&m.galleryCacheHits, 1)
}

// IncGalleryCacheMiss increments gallery cache miss counter.
func (m *InMemoryRecorder) IncGalleryCacheMiss() {
	atomic.AddUint64(&m.galleryCacheMisses, 1)
}
