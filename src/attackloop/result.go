package attackloop

import (
	"github.com/perplext/redteam-core/src/grader"
	"github.com/perplext/redteam-core/src/provider/core"
)

// HistoryEntry is one recorded turn in redteamHistory, including any
// per-turn-layer media attachments.
type HistoryEntry struct {
	Turn         int
	Prompt       string
	Response     string
	PromptAudio  []byte
	PromptImage  []byte
}

// Metadata is the public result metadata per §6.4.
type Metadata struct {
	StopReason             StopReason
	RoundsCompleted        int
	BacktrackCount         int
	Result                 bool
	Confidence             int
	SuccessfulAttacks      []SuccessfulAttack
	TotalSuccessfulAttacks int
	RedteamHistory         []HistoryEntry
	StoredGraderResult     *grader.Verdict
}

// Envelope is the ResultEnvelope the attack loop returns.
type Envelope struct {
	Output     string
	Error      string
	SessionID  string
	TokenUsage core.TokenUsage
	Metadata   Metadata
}

func (l *Loop) assembleResult(state *AttackState, stopReason StopReason, history []HistoryEntry) Envelope {
	return Envelope{
		Output:    state.BestResponse,
		SessionID: state.SessionID,
		TokenUsage: state.TokenUsage,
		Metadata: Metadata{
			StopReason:             stopReason,
			RoundsCompleted:        state.RoundsCompleted,
			BacktrackCount:         state.BacktrackCount,
			Result:                 len(state.SuccessfulAttacks) > 0,
			Confidence:             state.BestScore,
			SuccessfulAttacks:      state.SuccessfulAttacks,
			TotalSuccessfulAttacks: len(state.SuccessfulAttacks),
			RedteamHistory:         history,
			StoredGraderResult:     state.StoredGraderResult,
		},
	}
}
