package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perplext/redteam-core/src/provider/core"
)

func TestStoreAppendAndGet(t *testing.T) {
	s := New()
	id := s.NewConversation()

	s.Append(id, core.Message{Role: core.MessageRoleSystem, Content: "sys"})
	s.Append(id, core.Message{Role: core.MessageRoleUser, Content: "hi"})
	s.Append(id, core.Message{Role: core.MessageRoleAssistant, Content: "hello"})

	msgs := s.Get(id)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi", msgs[1].Content)
}

func TestStoreGetUnknownConversationIsEmpty(t *testing.T) {
	s := New()
	assert.Empty(t, s.Get("does-not-exist"))
}

func TestBranchExcludingLastTurnDropsUserAndAssistant(t *testing.T) {
	s := New()
	id := s.NewConversation()
	s.Append(id, core.Message{Role: core.MessageRoleSystem, Content: "sys"})
	s.Append(id, core.Message{Role: core.MessageRoleUser, Content: "q1"})
	s.Append(id, core.Message{Role: core.MessageRoleAssistant, Content: "a1"})
	s.Append(id, core.Message{Role: core.MessageRoleUser, Content: "q2"})
	s.Append(id, core.Message{Role: core.MessageRoleAssistant, Content: "a2"})

	branched := s.BranchExcludingLastTurn(id)
	require.NotEqual(t, id, branched)

	msgs := s.Get(branched)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a1", msgs[2].Content)

	// Original conversation is untouched.
	assert.Len(t, s.Get(id), 5)
}

func TestBranchExcludingLastTurnOnShortConversation(t *testing.T) {
	s := New()
	id := s.NewConversation()
	s.Append(id, core.Message{Role: core.MessageRoleSystem, Content: "sys"})

	branched := s.BranchExcludingLastTurn(id)
	assert.Len(t, s.Get(branched), 1)
}

func TestAppendDeduplicatesIdenticalTrailingMessage(t *testing.T) {
	s := New()
	id := s.NewConversation()
	msg := core.Message{Role: core.MessageRoleUser, Content: "repeat"}
	s.Append(id, msg)
	s.Append(id, msg)
	assert.Len(t, s.Get(id), 1)
}
