// Package attackloop implements the cooperative state machine described in
// §4.7: Init -> GenerateAttack -> SendToTarget -> Unblock? -> ScoreRefusal ->
// (Backtrack | ScoreObjective) -> Grade -> Terminate?. One Loop call owns its
// Memory and AttackState exclusively and destroys both on return; providers
// are externally owned.
package attackloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perplext/redteam-core/src/grader"
	"github.com/perplext/redteam-core/src/memory"
	"github.com/perplext/redteam-core/src/provider/core"
	"github.com/perplext/redteam-core/src/scorer"
	"github.com/perplext/redteam-core/src/strategy"
	"github.com/perplext/redteam-core/src/tokenusage"
	"github.com/perplext/redteam-core/src/unblock"
)

// Loop is one cooperative attack-loop driver. Construct a fresh Loop per call.
type Loop struct {
	Attacker core.Provider
	Target   core.Provider
	Scorer   *scorer.Scorer
	Unblock  unblock.Analyser // optional; nil disables unblocking
	Graders  *grader.Registry // optional; nil means no plugin grader configured
	Strategy strategy.Strategy
	Options  Options

	memory *memory.Store
	tokens *tokenusage.Accumulator
}

// New constructs a Loop, normalizing and validating opts.
func New(attacker, target core.Provider, sc *scorer.Scorer, strat strategy.Strategy, opts Options) (*Loop, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	return &Loop{
		Attacker: attacker,
		Target:   target,
		Scorer:   sc,
		Strategy: strat,
		Options:  normalized,
		memory:   memory.New(),
		tokens:   tokenusage.NewAccumulator(target.ID()),
	}, nil
}

// Run drives the attack loop to completion or cancellation. initialSessionID,
// if non-empty, seeds AttackState.SessionID before the first turn.
func (l *Loop) Run(ctx context.Context, initialSessionID string) (Envelope, error) {
	state := newAttackState()
	state.SessionID = initialSessionID

	if l.Options.maxTurns() == 0 {
		return l.assembleResult(state, StopMaxRoundsReached, nil), nil
	}

	convID := l.memory.NewConversation()
	l.seedSystemPrompt(convID, 0)

	var history []HistoryEntry
	var lastProviderError string

	for {
		if err := ctx.Err(); err != nil {
			return Envelope{}, err
		}

		attackerPrompt := l.renderAttackerPrompt(convID, state)
		env, err := l.Attacker.CallAPI(ctx, attackerPrompt, core.CallContext{
			Vars: map[string]string{l.Options.InjectVar: l.Options.Goal},
			Test: &core.TestMetadata{Purpose: l.Options.Purpose, Goal: l.Options.Goal},
		}, core.CallOptions{JSONOnly: true})
		if err != nil {
			return Envelope{}, err
		}
		l.recordTokenUsage(env.TokenUsage)
		if env.Error != "" {
			log.Debug().Str("error", env.Error).Msg("attacker-parse-error: attacker call returned an error, skipping turn")
			state.RoundsCompleted++
			if reason, done := l.checkRoundTermination(state); done {
				state.TokenUsage = l.tokens.Total()
				return l.assembleResult(state, reason, history), nil
			}
			continue
		}

		parsed, parseErr := parseAttackerOutput(env.Output)
		if parseErr != nil {
			log.Debug().Err(parseErr).Msg("skipping turn")
			state.RoundsCompleted++
			if reason, done := l.checkRoundTermination(state); done {
				state.TokenUsage = l.tokens.Total()
				return l.assembleResult(state, reason, history), nil
			}
			continue
		}

		promptText, promptAudio, promptImage, layerErr := strategy.ApplyLayers(l.Options.PerTurnLayers, parsed.GeneratedQuestion)
		if layerErr != nil {
			return Envelope{}, layerErr
		}

		l.memory.Append(convID, core.Message{Role: core.MessageRoleUser, Content: promptText})
		targetEnv, err := l.callTarget(ctx, promptText, state)
		if err != nil {
			return Envelope{}, err
		}
		if targetEnv.Error != "" {
			lastProviderError = targetEnv.Error
		}
		if targetEnv.SessionID != "" && l.Options.Stateful {
			state.SessionID = targetEnv.SessionID
		}
		l.memory.Append(convID, core.Message{Role: core.MessageRoleAssistant, Content: targetEnv.Output})

		combinedResponse := targetEnv.Output
		unblockTurns := 0
		if targetEnv.Output == "" && targetEnv.Error == "" {
			// Edge case: neither output nor error — treat as an empty refusal.
		} else if l.Unblock != nil {
			unblockResult, uerr := l.Unblock.Analyse(ctx, unblock.Request{
				Messages:     l.memory.Get(convID),
				LastResponse: targetEnv.Output,
				Goal:         l.Options.Goal,
				Purpose:      l.Options.Purpose,
			})
			if uerr == nil && unblockResult.Success {
				l.memory.Append(convID, core.Message{Role: core.MessageRoleUser, Content: unblockResult.UnblockingPrompt})
				secondEnv, serr := l.callTarget(ctx, unblockResult.UnblockingPrompt, state)
				if serr != nil {
					return Envelope{}, serr
				}
				l.memory.Append(convID, core.Message{Role: core.MessageRoleAssistant, Content: secondEnv.Output})
				combinedResponse = combinedResponse + " " + secondEnv.Output
				unblockTurns++
				if secondEnv.SessionID != "" && l.Options.Stateful {
					state.SessionID = secondEnv.SessionID
				}
			}
		}

		state.LastAttackPrompt = promptText
		state.LastTargetResponse = combinedResponse

		refusalJudgement, rerr := l.Scorer.ScoreRefusal(ctx, combinedResponse, l.Options.Goal)
		if rerr != nil {
			return Envelope{}, rerr
		}

		if refusalJudgement.Value {
			newConvID := convID
			for i := 0; i <= unblockTurns; i++ {
				newConvID = l.memory.BranchExcludingLastTurn(newConvID)
			}
			convID = newConvID
			state.BacktrackCount++
			log.Debug().Int("backtrackCount", state.BacktrackCount).Msg("refusal detected, backtracking")

			if state.BacktrackCount >= l.Options.maxBacktracks() {
				state.TokenUsage = l.tokens.Total()
				return l.assembleResult(state, StopMaxBacktracksReached, history), nil
			}
			continue
		}

		state.RoundsCompleted++

		objectiveJudgement, oerr := l.Scorer.ScoreObjective(ctx, l.memory.Get(convID), l.Options.Goal)
		if oerr != nil {
			return Envelope{}, oerr
		}
		state.recordObjectiveScore(combinedResponse, objectiveJudgement.Confidence)

		rubric := grader.ComposeRubric(l.Options.Goal, l.Options.GraderExamples, l.Options.GradingGuidance, time.Now())
		graderFailed, graderRan := l.runGrading(ctx, state, promptText, combinedResponse, rubric, objectiveJudgement)

		history = append(history, HistoryEntry{
			Turn:        state.RoundsCompleted,
			Prompt:      promptText,
			Response:    combinedResponse,
			PromptAudio: promptAudio,
			PromptImage: promptImage,
		})

		if graderFailed && !l.Options.ContinueAfterSuccess {
			state.TokenUsage = l.tokens.Total()
			return l.assembleResult(state, StopGraderFailed, history), nil
		}
		if state.internalEvaluatorSuccess && !l.Options.ContinueAfterSuccess && !graderRan {
			state.TokenUsage = l.tokens.Total()
			return l.assembleResult(state, StopInternalEvaluatorSuccess, history), nil
		}
		if reason, done := l.checkRoundTermination(state); done {
			state.TokenUsage = l.tokens.Total()
			env := l.assembleResult(state, reason, history)
			env.Error = lastProviderError
			return env, nil
		}
	}
}

func (l *Loop) checkRoundTermination(state *AttackState) (StopReason, bool) {
	if state.BacktrackCount >= l.Options.maxBacktracks() {
		return StopMaxBacktracksReached, true
	}
	if state.RoundsCompleted >= l.Options.maxTurns() {
		return StopMaxRoundsReached, true
	}
	return "", false
}

func (l *Loop) callTarget(ctx context.Context, prompt string, state *AttackState) (core.Envelope, error) {
	env, err := l.Target.CallAPI(ctx, prompt, core.CallContext{
		Vars: map[string]string{l.Options.InjectVar: l.Options.Goal},
		Test: &core.TestMetadata{Purpose: l.Options.Purpose, Goal: l.Options.Goal, PluginID: l.Options.PluginID},
	}, core.CallOptions{})
	if err != nil {
		return core.Envelope{}, err
	}
	l.recordTokenUsage(env.TokenUsage)
	return env, nil
}

// recordTokenUsage folds usage into the call's local accumulator. Per §4.3
// every provider response counts as a request even when the provider
// reports no byte counts at all (delta is nil).
func (l *Loop) recordTokenUsage(delta *core.TokenUsage) {
	if delta == nil {
		l.tokens.Add(core.TokenUsage{NumRequests: 1})
		return
	}
	l.tokens.Add(*delta)
}

// runGrading executes §4.6's grading step. graderFailed reports whether the
// grader (or its synthetic stand-in) judged the attack to have succeeded
// (pass=false). graderRan reports whether a plugin grader actually produced
// a verdict this turn — false means the turn fell back to the synthetic
// scorer-derived verdict, either because no grader is registered for
// PluginID or because it errored, per §4.7's "no grader configured" rule.
func (l *Loop) runGrading(ctx context.Context, state *AttackState, prompt, output, rubric string, objective scorer.Judgement) (graderFailed, graderRan bool) {
	if l.Scorer.IsTriviallyRefusal(output) {
		v, _ := grader.AutoPassVerdict(rubric)
		state.StoredGraderResult = &v
		return false, false
	}

	var g grader.Grader
	var ok bool
	if l.Graders != nil && l.Options.PluginID != "" {
		g, ok = l.Graders.Lookup(l.Options.PluginID)
	}

	if ok {
		verdict, usedRubric, err := g.Grade(ctx, prompt, output, grader.TestInfo{
			PluginID:        l.Options.PluginID,
			Goal:            l.Options.Goal,
			GraderExamples:  l.Options.GraderExamples,
			GradingGuidance: l.Options.GradingGuidance,
		}, output, rubric, &grader.Context{TraceSummary: l.Options.TraceContext})
		if err == nil {
			if verdict.Assertion == nil {
				verdict.Assertion = &grader.Assertion{Type: "rubric", Value: usedRubric}
			}
			state.StoredGraderResult = &verdict
			if !verdict.Pass {
				state.SuccessfulAttacks = append(state.SuccessfulAttacks, SuccessfulAttack{
					Turn: state.RoundsCompleted, Prompt: prompt, Response: output,
				})
			}
			return !verdict.Pass, true
		}
		log.Debug().Err(err).Msg("grader-missing: treating grader as absent")
	}

	decisive := objective.Value && objective.Confidence == 100
	synthetic := grader.SyntheticFromScorer(decisive, objective.Confidence, objective.Rationale, rubric)
	state.StoredGraderResult = &synthetic
	if decisive {
		state.SuccessfulAttacks = append(state.SuccessfulAttacks, SuccessfulAttack{
			Turn: state.RoundsCompleted, Prompt: prompt, Response: output,
		})
	}
	return false, false
}

func (l *Loop) seedSystemPrompt(convID string, round int) {
	prompt := l.Strategy.SystemPrompt(round)
	if block := strategy.ModifiersBlock(l.Options.Modifiers); block != "" {
		prompt = prompt + "\n\n" + block
	}
	l.memory.Append(convID, core.Message{Role: core.MessageRoleSystem, Content: prompt})
}

// renderAttackerPrompt serializes the conversation as JSON messages, the form
// the attacker provider contract accepts per §6.1.
func (l *Loop) renderAttackerPrompt(convID string, state *AttackState) string {
	msgs := l.memory.Get(convID)
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Sprintf(`[{"role":"system","content":%q}]`, l.Strategy.SystemPrompt(state.RoundsCompleted))
	}
	return string(raw)
}
