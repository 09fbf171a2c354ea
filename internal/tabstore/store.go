package tabstore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tabbridge/tabbridge/internal/common/cnst"
	"github.com/tabbridge/tabbridge/internal/protocol"
)

// HistoryLimit caps how many messages a tab retains; older entries fall off.
const HistoryLimit = 10

// Connection is the live channel to one tab's UI surface. It is replaced
// whenever the UI reconnects; the rest of the tab state survives.
type Connection interface {
	// Send delivers one message to the UI.
	Send(ctx context.Context, msg *protocol.Message) error

	// Close terminates the channel.
	Close(ctx context.Context) error
}

// tabState is everything tracked for one tab. Tab ids are recycled rarely
// relative to process lifetime, so states are never removed.
type tabState struct {
	active   bool
	conn     Connection
	inFlight bool
	messages []*protocol.Message
}

// Store owns the map from tab id to per-tab conversation state and is the
// only writer of message history.
type Store struct {
	logger *zap.Logger
	mu     sync.RWMutex
	tabs   map[string]*tabState
}

// NewStore creates a new tab conversation store
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		logger: logger.Named("tabstore"),
		tabs:   make(map[string]*tabState),
	}
}

// Attach registers conn as the current connection for tabID, creating the
// tab state on first contact. History and the active flag survive the swap.
func (s *Store) Attach(tabID string, conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tabs[tabID]
	if !ok {
		st = &tabState{}
		s.tabs[tabID] = st
		s.logger.Debug("tab state created", zap.String("tab", tabID))
	}
	st.conn = conn
}

// Connection returns the current connection for tabID.
func (s *Store) Connection(tabID string) (Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tabs[tabID]
	if !ok {
		return nil, cnst.ErrTabNotFound
	}
	if st.conn == nil {
		return nil, cnst.ErrNoConnection
	}
	return st.conn, nil
}

// Active returns the UI-visibility flag for tabID (false for unknown tabs).
func (s *Store) Active(tabID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tabs[tabID]
	return ok && st.active
}

// SetActive records the UI-visibility flag for tabID. Unknown tabs are a
// no-op: the flag only means something once a connection has existed.
func (s *Store) SetActive(tabID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.tabs[tabID]; ok {
		st.active = active
	}
}

// Upsert merges msg into tabID's history:
//  1. a trailing thinking placeholder is removed first;
//  2. a message whose id matches an existing entry (scanned newest to
//     oldest) replaces that entry in place;
//  3. otherwise msg is appended;
//  4. history is truncated to the most recent HistoryLimit entries.
func (s *Store) Upsert(tabID string, msg *protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tabs[tabID]
	if !ok {
		st = &tabState{}
		s.tabs[tabID] = st
	}

	messages := st.messages
	if n := len(messages); n > 0 && messages[n-1].IsThinking() {
		messages = messages[:n-1]
	}

	if id := msg.ID(); id != "" {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].ID() == id {
				messages[i] = msg
				st.messages = messages
				return
			}
		}
	}

	messages = append(messages, msg)
	if len(messages) > HistoryLimit {
		messages = messages[len(messages)-HistoryLimit:]
	}
	st.messages = messages
}

// Messages returns a copy of tabID's history in chronological order.
func (s *Store) Messages(tabID string) []*protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tabs[tabID]
	if !ok {
		return nil
	}
	out := make([]*protocol.Message, len(st.messages))
	copy(out, st.messages)
	return out
}

// Replay delivers the full retained history, in order, to conn. Used when a
// tab's UI reconnects so state surviving a reload is not lost.
func (s *Store) Replay(ctx context.Context, tabID string, conn Connection) error {
	for _, msg := range s.Messages(tabID) {
		if err := conn.Send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// BeginQuestion marks tabID as having a streaming answer in flight. It
// reports false when one is already running, so a second question cannot
// interleave two answer streams into one history.
func (s *Store) BeginQuestion(tabID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tabs[tabID]
	if !ok {
		return false
	}
	if st.inFlight {
		return false
	}
	st.inFlight = true
	return true
}

// EndQuestion clears the in-flight mark for tabID.
func (s *Store) EndQuestion(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.tabs[tabID]; ok {
		st.inFlight = false
	}
}

// Connections returns the current connection of every tracked tab that has
// one, keyed by tab id. Used for global broadcasts.
func (s *Store) Connections() map[string]Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := make(map[string]Connection, len(s.tabs))
	for id, st := range s.tabs {
		if st.conn != nil {
			conns[id] = st.conn
		}
	}
	return conns
}
