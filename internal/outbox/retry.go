package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"capsulemail/internal/gmail"
	"capsulemail/internal/model"
)

// photoExpiredMessage is shown on entries whose photo references no longer
// resolve. The wording matters: the UI matches on it to offer re-selection.
const photoExpiredMessage = "Photo expired. Please re-select the photo."

// Sender submits one composed email.
type Sender interface {
	Send(ctx context.Context, payload model.EmailPayload) gmail.SendResult
}

// Reachability gates bulk retries so a known-offline device does not churn
// every queued entry through a doomed send.
type Reachability interface {
	Online(ctx context.Context) bool
}

// ProbeReachability checks connectivity with a single TCP dial.
type ProbeReachability struct {
	Address string        // host:port, e.g. "gmail.googleapis.com:443"
	Timeout time.Duration // zero means 3s
}

func (p ProbeReachability) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// AlwaysOnline is a Reachability for environments where connectivity is
// assumed, and for tests.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(ctx context.Context) bool { return true }

// Outcome classifies one retry attempt.
type Outcome int

const (
	// OutcomeSent means the entry was delivered and removed from the store.
	OutcomeSent Outcome = iota
	// OutcomeFailed means the send was attempted and rejected; the entry is
	// marked failed with the provider's message.
	OutcomeFailed
	// OutcomePhotoExpired means validation blocked the attempt; no send
	// happened and the entry is marked failed with a fixed message.
	OutcomePhotoExpired
)

// RetryResult is the typed outcome of retrying a single entry.
type RetryResult struct {
	Outcome Outcome
	Error   string // user-facing message for the failed outcomes
}

// Retrier drives individual and bulk retry attempts over the outbox.
type Retrier struct {
	store        *Store
	sender       Sender
	validator    *Validator
	reachability Reachability
}

func NewRetrier(store *Store, sender Sender, validator *Validator, reachability Reachability) *Retrier {
	return &Retrier{store: store, sender: sender, validator: validator, reachability: reachability}
}

// RetryEntry attempts to deliver one entry. The attempt begins by marking the
// entry sending with its error cleared; validation then runs before any
// network call so an entry with a purged photo never reaches the wire. On
// success the entry is removed; on failure it is marked failed with the
// outcome's message.
func (r *Retrier) RetryEntry(ctx context.Context, id string) (RetryResult, error) {
	e, err := r.store.Get(ctx, id)
	if err != nil {
		return RetryResult{}, err
	}

	sending := model.StatusSending
	cleared := ""
	if err := r.store.Update(ctx, id, Patch{Status: &sending, ErrorMessage: &cleared}); err != nil {
		return RetryResult{}, err
	}

	if invalid := r.validator.InvalidPhotoURIs(e); len(invalid) > 0 {
		if err := r.markFailed(ctx, id, photoExpiredMessage); err != nil {
			return RetryResult{}, err
		}
		return RetryResult{Outcome: OutcomePhotoExpired, Error: photoExpiredMessage}, nil
	}

	res := r.sender.Send(ctx, model.EmailPayload{
		To:        e.ChildEmail,
		Subject:   e.Subject,
		Body:      e.Body,
		PhotoURIs: e.PhotoURIs,
	})
	if !res.Success {
		if err := r.markFailed(ctx, id, res.Error); err != nil {
			return RetryResult{}, err
		}
		return RetryResult{Outcome: OutcomeFailed, Error: res.Error}, nil
	}

	if err := r.store.Remove(ctx, id); err != nil {
		return RetryResult{}, fmt.Errorf("remove sent entry: %w", err)
	}
	return RetryResult{Outcome: OutcomeSent}, nil
}

// AutoRetryPending retries every pending and failed entry, oldest first, one
// at a time. When the device is offline it returns a zero report without
// touching the store.
func (r *Retrier) AutoRetryPending(ctx context.Context) (model.RetryReport, error) {
	var report model.RetryReport
	if !r.reachability.Online(ctx) {
		return report, nil
	}

	entries, err := r.store.List(ctx)
	if err != nil {
		return report, err
	}
	var queue []string
	for _, e := range entries {
		if e.Status == model.StatusPending || e.Status == model.StatusFailed {
			queue = append(queue, e.ID)
		}
	}

	for _, id := range queue {
		// Re-read each entry: an earlier iteration, or the user, may have
		// removed it or put it in flight since the snapshot. Anything no
		// longer pending or failed is not ours to retry.
		e, err := r.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return report, err
		}
		if e.Status != model.StatusPending && e.Status != model.StatusFailed {
			continue
		}

		report.Attempted++
		res, err := r.RetryEntry(ctx, id)
		if err != nil {
			return report, err
		}
		if res.Outcome == OutcomeSent {
			report.Succeeded++
		} else {
			report.Failed++
			log.Printf("outbox: retry of %s failed: %s", id, res.Error)
		}
	}
	return report, nil
}

func (r *Retrier) markFailed(ctx context.Context, id, message string) error {
	failed := model.StatusFailed
	return r.store.Update(ctx, id, Patch{Status: &failed, ErrorMessage: &message})
}
