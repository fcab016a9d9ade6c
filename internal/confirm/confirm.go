// Package confirm drives the staged human-in-the-loop protocol that turns a
// classified scan into a frozen kill-list. The operator dialogue is a
// synchronous request/response interface so the whole protocol replays in
// tests from a scripted answer sequence.
package confirm

import (
	"context"
	"errors"
	"fmt"

	"github.com/fennwick/cull/internal/classify"
)

// Token is the fixed affirmative the operator must type at the final
// confirmation stage. Anything else aborts with zero side effects.
const Token = "TERMINATE"

// ErrAborted reports that the operator cancelled or declined the protocol.
// It is a normal terminal outcome, never treated as a failure.
var ErrAborted = errors.New("aborted by operator")

// KillDecision records the outcome of the protocol for one process. Created
// once per session and never persisted beyond it.
type KillDecision struct {
	Target   classify.Classified
	Approved bool
}

// Prompter supplies the operator's answers. Implementations must not cache
// answers across calls; every question is asked fresh.
type Prompter interface {
	// ShowReport presents the full classified list before anything is
	// selected (stage 1).
	ShowReport(records []classify.Classified)
	// ReviewCandidate asks for explicit approval of a single candidate
	// (stage 2). False means skip.
	ReviewCandidate(rec classify.Classified) (bool, error)
	// AcknowledgeOverride asks the distinct protected-tier override
	// question (stage 2, protected records only).
	AcknowledgeOverride(rec classify.Classified) (bool, error)
	// ConfirmKillList asks for the final typed confirmation (stage 3) and
	// returns the operator's literal input.
	ConfirmKillList(approved int) (string, error)
	// ApproveEscalation asks the per-process force-kill question
	// (stage 4). Called by the termination engine, not by Run.
	ApproveEscalation(rec classify.Classified) (bool, error)
}

// Run executes stages 1 through 3 over the classified records, in listing
// order, and returns the frozen kill-list. Untouchable records are shown in
// the report but never offered; no configuration or flag can change that.
// Cancellation at any point returns ErrAborted with no decision produced.
func Run(ctx context.Context, prompter Prompter, records []classify.Classified) ([]KillDecision, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	// Stage 1: read-only scan report.
	prompter.ShowReport(records)

	// Stage 2: individual review in listing order.
	decisions := make([]KillDecision, 0, len(records))
	for _, rec := range records {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		if !rec.Reviewable() {
			continue
		}

		approved, err := prompter.ReviewCandidate(rec)
		if err != nil {
			return nil, abortOn(err)
		}
		if approved && rec.Tier == classify.TierProtected {
			acknowledged, err := prompter.AcknowledgeOverride(rec)
			if err != nil {
				return nil, abortOn(err)
			}
			approved = acknowledged
		}
		if approved {
			decisions = append(decisions, KillDecision{Target: rec, Approved: true})
		}
	}

	if len(decisions) == 0 {
		return nil, fmt.Errorf("%w: nothing approved", ErrAborted)
	}

	// Stage 3: the kill-list freezes only on the exact token.
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	answer, err := prompter.ConfirmKillList(len(decisions))
	if err != nil {
		return nil, abortOn(err)
	}
	if answer != Token {
		return nil, fmt.Errorf("%w: confirmation %q did not match %q", ErrAborted, answer, Token)
	}

	return decisions, nil
}

func checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
	}
	return nil
}

// abortOn maps prompter I/O failures (closed stdin, interrupt mid-prompt)
// onto the abort outcome; a half-answered protocol must never proceed.
func abortOn(err error) error {
	if errors.Is(err, ErrAborted) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrAborted, err)
}
