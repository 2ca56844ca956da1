// Package coordinator sequences the admission queue and the quota ledger
// around the external enhancement call. It is the only layer that decides
// between retrying a ledger transaction and surfacing an error, and it
// guarantees that a queue slot and a reservation are never held without a
// matching release.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"listinglens/internal/domain"
	"listinglens/internal/enhance"
	"listinglens/internal/queue"
)

const (
	reserveRetries = 2
	reserveBackoff = 100 * time.Millisecond
)

// SubmitRequest carries everything needed for one enhancement attempt. The
// work key doubles as the queue's dedup key.
type SubmitRequest struct {
	WorkKey      string
	AccountKey   string // empty for anonymous submissions
	Tier         domain.Tier
	Units        int
	SourceURL    string
	Preset       string
	Instructions string
}

// Coordinator glues the admission queue, the quota ledger and the enhancer.
type Coordinator struct {
	queue    *queue.AdmissionQueue
	ledger   domain.Ledger
	enhancer enhance.Enhancer
	logger   zerolog.Logger
}

// New wires a coordinator. All collaborators are required.
func New(q *queue.AdmissionQueue, ledger domain.Ledger, enhancer enhance.Enhancer, logger zerolog.Logger) *Coordinator {
	return &Coordinator{queue: q, ledger: ledger, enhancer: enhancer, logger: logger}
}

// Submit runs one unit of paid work end to end:
//
//  1. admit through the queue (DuplicateJob/QueueFull surface immediately,
//     nothing to clean up),
//  2. once dispatched, reserve quota (domain rejections release the slot and
//     surface; transport errors retry the whole transaction),
//  3. invoke the enhancer,
//  4. release the slot no matter what,
//  5. commit on success, refund on failure.
//
// Every terminal error maps onto one of the domain sentinels so the request
// layer can answer with a precise status.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*enhance.Result, error) {
	if req.Units <= 0 {
		req.Units = 1
	}

	ticket, err := c.queue.Enqueue(req.WorkKey, req.AccountKey, req.Tier)
	if err != nil {
		return nil, err
	}

	select {
	case <-ticket.Dispatched():
	case <-ctx.Done():
		// Still waiting; pulling the job out of the queue is all the cleanup
		// there is.
		c.queue.Dequeue(req.WorkKey)
		return nil, ctx.Err()
	}
	defer c.queue.Dequeue(req.WorkKey)

	if err := c.reserve(ctx, req); err != nil {
		return nil, err
	}

	result, enhErr := c.runEnhancement(ctx, ticket, req)
	if enhErr != nil {
		c.logger.Warn().Err(enhErr).Str("work_key", req.WorkKey).Msg("enhancement failed, refunding reservation")
		// The refund must land even if the caller already gave up.
		refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := c.ledger.RefundOnFailure(refundCtx, req.WorkKey, enhErr.Error()); err != nil {
			c.logger.Error().Err(err).Str("work_key", req.WorkKey).Msg("refund failed")
			return nil, fmt.Errorf("refund after failure: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrEnhancementFailed, enhErr)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		resultJSON = nil
	}
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.ledger.CommitSuccess(commitCtx, req.WorkKey, resultJSON); err != nil {
		// The work is done and charged; surface the commit failure rather
		// than pretending the record reached its terminal state.
		c.logger.Error().Err(err).Str("work_key", req.WorkKey).Msg("commit failed after successful enhancement")
		return nil, fmt.Errorf("commit after success: %w", err)
	}

	c.logger.Info().Str("work_key", req.WorkKey).Str("tier", string(req.Tier)).Int("units", req.Units).Msg("enhancement completed")
	return result, nil
}

// reserve invokes CheckAndReserve, retrying transport failures. The
// transaction has no visible effect until commit, so a clean retry is always
// safe; domain rejections are final and returned as-is.
func (c *Coordinator) reserve(ctx context.Context, req SubmitRequest) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.ledger.CheckAndReserve(ctx, req.AccountKey, req.WorkKey, req.Units)
		if err == nil || domain.IsReservationRejection(err) {
			return err
		}
		if attempt >= reserveRetries {
			return fmt.Errorf("reserve quota: %w", err)
		}
		c.logger.Warn().Err(err).Str("work_key", req.WorkKey).Int("attempt", attempt+1).Msg("reservation transaction failed, retrying")
		select {
		case <-time.After(reserveBackoff << attempt):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runEnhancement calls the provider under a context that is also cancelled
// when the queue reclaims the slot, so a stuck call cannot outlive its
// admission.
func (c *Coordinator) runEnhancement(ctx context.Context, ticket *queue.Ticket, req SubmitRequest) (*enhance.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ticket.Context(), cancel)
	defer stop()

	return c.enhancer.Enhance(runCtx, enhance.Request{
		WorkID:       req.WorkKey,
		SourceURL:    req.SourceURL,
		Preset:       req.Preset,
		Instructions: req.Instructions,
	})
}
