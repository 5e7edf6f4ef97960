/*
Copyright 2025 Remit Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package remit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/studiopay/remit/internal/apierror"
	"github.com/studiopay/remit/internal/cache"
	redlock "github.com/studiopay/remit/internal/lock"
	"github.com/studiopay/remit/internal/notification"
	"github.com/studiopay/remit/model"
)

var tracer = otel.Tracer("remit.reconciliation")

// RunOptions selects the messages a run looks at.
type RunOptions struct {
	Since      time.Time
	UnseenOnly bool
}

// RunReport is a run together with the outcome of every intent it touched.
type RunReport struct {
	Run      *model.Run            `json:"run"`
	Outcomes []model.IntentOutcome `json:"outcomes"`
}

// Run reconciles every candidate message in the session's mailbox, one
// intent at a time. Per-intent failures are recorded and never stop the run.
// Only a failure to list messages, a held run lock or cancellation ends a
// run early.
//
// Parameters:
// - ctx context.Context: cancelling it stops the run between intents.
// - sess Session: the authenticated mailbox and ledger handles.
// - opts RunOptions: the mailbox search window.
//
// Returns:
// - *model.Run: the run report with verified, allocated, abandoned and ignored counts.
// - error: ErrRunInProgress, a listing error or the context error.
func (r *Remit) Run(ctx context.Context, sess Session, opts RunOptions) (*model.Run, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	run := &model.Run{
		RunID:     model.GenerateUUIDWithSuffix("run"),
		Status:    model.RunStatusStarted,
		DryRun:    r.safeMode,
		StartedAt: r.now(),
	}
	span.SetAttributes(attribute.String("run.id", run.RunID), attribute.Bool("run.dry_run", run.DryRun))
	log := logrus.WithField("run_id", run.RunID)

	var locker *redlock.Locker
	if r.redis != nil {
		locker = redlock.NewLocker(r.redis, runLockKey, run.RunID)
		if err := locker.Lock(ctx, runLockTTL); err != nil {
			if errors.Is(err, redlock.ErrLockHeld) {
				if holder, herr := locker.Holder(ctx); herr == nil && holder != "" {
					log.WithField("holder", holder).Info("run lock held by another run")
				}
				return nil, ErrRunInProgress
			}
			return nil, fmt.Errorf("taking run lock: %w", err)
		}
		defer func() {
			if err := locker.Unlock(context.Background()); err != nil {
				log.Warnf("releasing run lock: %v", err)
			}
		}()
	}

	r.recordRun(ctx, run)
	log.WithFields(logrus.Fields{"since": opts.Since.Format(time.DateOnly), "unseen_only": opts.UnseenOnly, "safe_mode": r.safeMode}).Info("reconciliation run started")

	listCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	messages, err := sess.Mailbox.ListCandidateMessages(listCtx, opts.Since, opts.UnseenOnly)
	cancel()
	if err != nil {
		err = fmt.Errorf("listing candidate messages: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.finishRun(ctx, run, model.RunStatusFailed)
		notification.NotifyError(fmt.Errorf("run %s: %w", run.RunID, err))
		return run, err
	}
	log.Infof("found %d candidate messages", len(messages))

	processed := NewProcessedSet()
	matcher := NewMatcher(sess.Ledger, r.callTimeout)

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			log.Warnf("run stopped before handle %d: %v", msg.Handle, err)
			r.finishRun(context.Background(), run, model.RunStatusFailed)
			return run, err
		}

		outcome := r.processMessage(ctx, sess, matcher, processed, run.RunID, msg)
		if outcome == nil {
			run.Ignored++
			continue
		}

		switch outcome.State {
		case model.StateVerified:
			run.Verified++
		case model.StateAbandoned:
			run.Abandoned++
		default:
			run.Allocated++
		}
		r.recordOutcome(ctx, outcome)

		if locker != nil {
			if err := locker.ExtendLock(ctx, runLockTTL); err != nil {
				log.Warnf("extending run lock: %v", err)
			}
		}
	}

	r.finishRun(ctx, run, model.RunStatusCompleted)
	log.WithFields(logrus.Fields{
		"verified":  run.Verified,
		"allocated": run.Allocated,
		"abandoned": run.Abandoned,
		"ignored":   run.Ignored,
	}).Info("reconciliation run completed")

	return run, nil
}

// processMessage drives one message through the intent state machine.
// It returns nil for messages that are not transfer notifications.
func (r *Remit) processMessage(ctx context.Context, sess Session, matcher *Matcher, processed *ProcessedSet, runID string, msg model.RawMessage) (outcome *model.IntentOutcome) {
	ctx, span := tracer.Start(ctx, "ProcessIntent")
	defer span.End()
	span.SetAttributes(attribute.Int64("message.handle", int64(msg.Handle)))

	current := &model.IntentOutcome{
		RunID:         runID,
		MessageHandle: msg.Handle,
		DryRun:        r.safeMode,
	}

	defer func() {
		if p := recover(); p != nil {
			fault := fmt.Errorf("panic while processing handle %d: %v", msg.Handle, p)
			span.RecordError(fault)
			r.markAbandoned(current, abandon(model.ReasonUnexpectedFault, fault))
			notification.NotifyError(fault)
			outcome = current
		}
		if outcome != nil {
			outcome.ProcessedAt = r.now()
		}
	}()

	err := r.advance(ctx, sess, matcher, processed, msg, current)
	if errors.Is(err, ErrNotTransfer) {
		logrus.WithField("handle", msg.Handle).Debug("ignoring non-transfer message")
		return nil
	}
	if err != nil {
		var abandonErr *AbandonError
		if !errors.As(err, &abandonErr) {
			abandonErr = abandon(model.ReasonUnexpectedFault, err)
			notification.NotifyError(fmt.Errorf("handle %d: %w", msg.Handle, err))
		}
		span.SetStatus(codes.Error, abandonErr.Error())
		r.markAbandoned(current, abandonErr)
		return current
	}

	span.SetAttributes(attribute.String("intent.state", string(current.State)))
	return current
}

func (r *Remit) advance(ctx context.Context, sess Session, matcher *Matcher, processed *ProcessedSet, msg model.RawMessage, outcome *model.IntentOutcome) error {
	intent, err := ParseMessage(msg)
	if errors.Is(err, ErrNotTransfer) {
		return err
	}
	if err != nil {
		return abandon(model.ReasonParseRejected, err)
	}
	outcome.Reference = intent.ReferenceNumber
	outcome.Amount = intent.Amount
	outcome.State = model.StateExtracted

	log := logrus.WithFields(logrus.Fields{"reference": intent.ReferenceNumber, "amount": intent.Amount.StringFixed(2)})

	if !processed.Admit(intent.ReferenceNumber) {
		return abandon(model.ReasonDuplicateReference, ErrDuplicateReference)
	}
	outcome.State = model.StateDeduplicated

	match, err := matcher.Match(ctx, intent)
	if err != nil {
		return abandon(model.ReasonNoVerifiedMatch, err)
	}
	outcome.AccountID = match.Account.ID
	outcome.AccountName = match.Account.Name
	outcome.Strategy = match.Strategy
	outcome.State = model.StateMatched

	chargesCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	unpaid, err := ReadUnpaidCharges(chargesCtx, sess.Ledger, match.Account)
	cancel()
	if err != nil {
		outcome.Detail = fmt.Sprintf("charges unavailable: %v", err)
		log.Warnf("unpaid charges unavailable, allocating without charge data: %v", err)
	}

	outcome.Allocation = r.allocator.Allocate(intent.Amount, unpaid)
	outcome.State = model.StateAllocated
	log = log.WithField("account", match.Account.ID)

	if r.safeMode {
		log.WithField("allocation", outcome.Allocation).Info("safe mode: payment not applied")
		return nil
	}

	applyCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	err = sess.Ledger.ApplyPayment(applyCtx, model.PaymentRequest{
		Account:    match.Account,
		Amount:     intent.Amount,
		Allocation: outcome.Allocation,
		Reference:  intent.ReferenceNumber,
		Date:       intent.PaymentDate(r.now()),
	})
	cancel()
	if err != nil {
		return abandon(model.ReasonApplyFailed, fmt.Errorf("%w: %v", ErrApplyFailed, err))
	}
	outcome.State = model.StateApplied

	balanceCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	balanceText, err := sess.Ledger.GetCurrentBalance(balanceCtx, match.Account)
	cancel()
	if err != nil {
		return abandon(model.ReasonBalanceUnavailable, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err))
	}
	balance, err := ParseAmountText(balanceText)
	if err != nil {
		return abandon(model.ReasonBalanceUnavailable, fmt.Errorf("%w: %q", ErrBalanceUnavailable, balanceText))
	}
	outcome.Balance = balance.StringFixed(2)
	outcome.State = model.StateVerified
	log.WithField("balance", outcome.Balance).Info("payment applied and verified")

	markCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	err = sess.Mailbox.MarkProcessed(markCtx, msg.Handle)
	cancel()
	if err != nil {
		outcome.Detail = fmt.Sprintf("marking message processed failed: %v", err)
		notification.NotifyError(fmt.Errorf("reference %s applied but message %d not marked processed: %w", intent.ReferenceNumber, msg.Handle, err))
	}
	return nil
}

func (r *Remit) markAbandoned(outcome *model.IntentOutcome, err *AbandonError) {
	outcome.State = model.StateAbandoned
	outcome.Reason = err.Reason
	if outcome.Detail == "" {
		outcome.Detail = err.Error()
	} else {
		outcome.Detail = outcome.Detail + "; " + err.Error()
	}

	entry := logrus.WithFields(logrus.Fields{
		"run_id":    outcome.RunID,
		"handle":    outcome.MessageHandle,
		"reference": outcome.Reference,
		"state":     outcome.State,
		"reason":    outcome.Reason,
	})
	if err.Reason == model.ReasonUnexpectedFault {
		entry.Error(err.Error())
		return
	}
	entry.Warn(err.Error())
}

func (r *Remit) recordRun(ctx context.Context, run *model.Run) {
	if r.datasource == nil {
		return
	}
	if _, err := r.datasource.RecordRun(ctx, run); err != nil {
		logrus.WithField("run_id", run.RunID).Errorf("recording run: %v", err)
	}
}

func (r *Remit) recordOutcome(ctx context.Context, outcome *model.IntentOutcome) {
	if r.datasource == nil {
		return
	}
	if err := r.datasource.RecordOutcome(ctx, outcome); err != nil {
		logrus.WithFields(logrus.Fields{"run_id": outcome.RunID, "reference": outcome.Reference}).Errorf("recording intent outcome: %v", err)
	}
}

func (r *Remit) finishRun(ctx context.Context, run *model.Run, status string) {
	run.Status = status
	run.CompletedAt = ptr.Time(r.now())

	if r.datasource != nil {
		if err := r.datasource.UpdateRun(ctx, run); err != nil {
			logrus.WithField("run_id", run.RunID).Errorf("updating run: %v", err)
		}
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, latestRunKey, run, latestRunTTL); err != nil {
			logrus.WithField("run_id", run.RunID).Warnf("caching latest run: %v", err)
		}
	}
}

// LatestRun returns the most recent run, from the cache when possible.
func (r *Remit) LatestRun(ctx context.Context) (*model.Run, error) {
	if r.cache != nil {
		var run model.Run
		err := r.cache.Get(ctx, latestRunKey, &run)
		if err == nil {
			return &run, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logrus.Warnf("reading latest run from cache: %v", err)
		}
	}
	if r.datasource == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "No runs recorded yet", nil)
	}
	return r.datasource.GetLatestRun(ctx)
}

// GetRun returns a stored run and its intent outcomes.
func (r *Remit) GetRun(ctx context.Context, runID string) (*RunReport, error) {
	if r.datasource == nil {
		return nil, apierror.NewAPIError(apierror.ErrUnavailable, "Run history is not configured", nil)
	}
	run, err := r.datasource.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	outcomes, err := r.datasource.GetOutcomesByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunReport{Run: run, Outcomes: outcomes}, nil
}

// ListRuns pages through stored runs, newest first. Limits outside 1..100
// fall back to 20.
func (r *Remit) ListRuns(ctx context.Context, limit, offset int) ([]model.Run, error) {
	if r.datasource == nil {
		return nil, apierror.NewAPIError(apierror.ErrUnavailable, "Run history is not configured", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return r.datasource.GetRuns(ctx, limit, offset)
}

// ReferenceHistory returns every recorded outcome for a transfer reference.
func (r *Remit) ReferenceHistory(ctx context.Context, reference string) ([]model.IntentOutcome, error) {
	if r.datasource == nil {
		return nil, apierror.NewAPIError(apierror.ErrUnavailable, "Run history is not configured", nil)
	}
	return r.datasource.GetOutcomesByReference(ctx, reference)
}

type staticCharges []model.ChargeRow

func (s staticCharges) GetUnpaidCharges(context.Context, model.AccountCandidate) ([]model.ChargeRow, error) {
	return s, nil
}

// PreviewAllocation runs the charge normalizer and the allocator on a
// payment and a raw charge report without touching any account.
func (r *Remit) PreviewAllocation(ctx context.Context, payment decimal.Decimal, rows []model.ChargeRow) (*model.UnpaidChargeMap, model.Allocation) {
	unpaid, _ := ReadUnpaidCharges(ctx, staticCharges(rows), model.AccountCandidate{})
	return unpaid, r.allocator.Allocate(payment, unpaid)
}
