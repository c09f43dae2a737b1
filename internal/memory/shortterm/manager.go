package shortterm

import (
	"sync"

	"github.com/kart-io/agentmem/internal/memory/llm"
)

// Manager owns one SessionMemory per session, keyed by (group_id,
// session_id), mirroring the explicit-owned-resource re-architecture of the
// process-wide tracker map in internal/memory/profile: no package-level
// state, so multiple Manager instances in one process stay independent.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*SessionMemory

	llm llm.ChatProvider

	capacity      int
	maxMessageLen int
	maxTokenNum   int
	systemPrompt  string
	userPrompt    string
}

// NewManager builds a Manager that lazily constructs a SessionMemory with
// the given defaults for each newly seen session key.
func NewManager(cfg Config) *Manager {
	return &Manager{
		sessions:      make(map[string]*SessionMemory),
		llm:           cfg.LLM,
		capacity:      cfg.Capacity,
		maxMessageLen: cfg.MaxMessageLen,
		maxTokenNum:   cfg.MaxTokenNum,
		systemPrompt:  cfg.SummarySystemPrompt,
		userPrompt:    cfg.SummaryUserPrompt,
	}
}

// sessionKey is the Manager's map key for a (group_id, session_id) pair.
func sessionKey(groupID, sessionID string) string {
	return groupID + "\x00" + sessionID
}

// Get returns the SessionMemory for (groupID, sessionID), creating one on
// first use.
func (m *Manager) Get(groupID, sessionID string) (*SessionMemory, error) {
	key := sessionKey(groupID, sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if sm, ok := m.sessions[key]; ok {
		return sm, nil
	}

	sm, err := New(Config{
		LLM:                 m.llm,
		Capacity:            m.capacity,
		MaxMessageLen:       m.maxMessageLen,
		MaxTokenNum:         m.maxTokenNum,
		SummarySystemPrompt: m.systemPrompt,
		SummaryUserPrompt:   m.userPrompt,
	})
	if err != nil {
		return nil, err
	}
	m.sessions[key] = sm
	return sm, nil
}

// Drop discards the SessionMemory for (groupID, sessionID), if any, closing
// it first. Used when a session is closed so its working-memory window
// doesn't linger for the life of the process.
func (m *Manager) Drop(groupID, sessionID string) error {
	key := sessionKey(groupID, sessionID)

	m.mu.Lock()
	sm, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return sm.Close()
}

// Close releases every tracked SessionMemory.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*SessionMemory)
	m.mu.Unlock()

	for _, sm := range sessions {
		_ = sm.Close()
	}
	return nil
}
