// Package memory holds the per-conversation ordered message log the attack
// loop reads and mutates. Messages are immutable once appended;
// backtracking creates a new conversation id via branching rather than
// mutating history in place.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/perplext/redteam-core/src/provider/core"
)

// Store is the per-call conversation memory. One Store is created per attack
// loop invocation and discarded at return; it needs no locking across calls,
// but guards its own map since the loop and any concurrent logging goroutine
// may read it.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]core.Message
}

// New creates an empty memory store for one attack loop call.
func New() *Store {
	return &Store{conversations: make(map[string][]core.Message)}
}

// NewConversation allocates a fresh, empty conversation id.
func (s *Store) NewConversation() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.conversations[id] = nil
	s.mu.Unlock()
	return id
}

// Append adds msg to the conversation identified by convID. Appending the
// exact same message value twice in a row to the same conversation is a
// no-op (idempotent only on distinct messages).
func (s *Store) Append(convID string, msg core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.conversations[convID]
	if n := len(existing); n > 0 && existing[n-1] == msg {
		return
	}
	s.conversations[convID] = append(existing, msg)
}

// Get returns the ordered messages for convID, or an empty slice for an
// unknown id — a missing conversation is non-fatal.
func (s *Store) Get(convID string) []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.conversations[convID]
	out := make([]core.Message, len(msgs))
	copy(out, msgs)
	return out
}

// BranchExcludingLastTurn creates a new conversation whose contents are the
// source conversation's messages up to but excluding the final user/assistant
// pair — used by the scorer's refusal-triggered backtrack.
func (s *Store) BranchExcludingLastTurn(convID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.conversations[convID]
	k := len(src)
	// Drop a trailing assistant message.
	if k > 0 && src[k-1].Role == core.MessageRoleAssistant {
		k--
	}
	// Drop the user message that preceded it.
	if k > 0 && src[k-1].Role == core.MessageRoleUser {
		k--
	}

	branched := make([]core.Message, k)
	copy(branched, src[:k])

	newID := uuid.NewString()
	s.conversations[newID] = branched
	return newID
}
