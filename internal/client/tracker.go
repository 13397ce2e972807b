package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// ErrPollTimeout is reported when a conversion does not finish within the
// tracker's MaxDuration.
var ErrPollTimeout = errors.New("conversion did not finish in time")

// Outcome is how a tracked conversion ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeTimedOut  Outcome = "TIMED_OUT"
)

// pollFailedMessage is reported when the status could not be fetched.
const pollFailedMessage = "Failed to get conversion status"

// Result is the final state of a tracked conversion.
type Result struct {
	ConversionID string
	Outcome      Outcome
	Conversion   *models.ConversionResponse // last successful poll, may be nil
	Message      string
	Err          error
}

// StatusFetcher loads a conversion. *Client implements it.
type StatusFetcher interface {
	Get(ctx context.Context, id string, page int) (*models.ConversionResponse, error)
}

// Tracker polls one conversion at a time until it completes or fails.
// Starting a new Track cancels the previous one.
type Tracker struct {
	fetcher StatusFetcher

	Interval      time.Duration // between polls
	MaxDuration   time.Duration // overall limit before TIMED_OUT
	RetryAttempts uint          // per poll, for transient errors
	MaxRetryDelay time.Duration

	// OnUpdate, when set, receives every non-final status.
	OnUpdate func(models.ConversionStatus)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker with a 2s interval and a 5 minute limit.
func NewTracker(f StatusFetcher) *Tracker {
	return &Tracker{
		fetcher:       f,
		Interval:      2 * time.Second,
		MaxDuration:   5 * time.Minute,
		RetryAttempts: 4,
		MaxRetryDelay: 15 * time.Second,
	}
}

// Track starts polling id and returns a channel that receives exactly one
// Result, unless the poll is cancelled by Stop, by a later Track, or by
// ctx, in which case the channel is closed without a value.
func (t *Tracker) Track(ctx context.Context, id string) <-chan Result {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	out := make(chan Result, 1)
	go func() {
		defer close(done)
		defer close(out)
		defer cancel()
		if res, ok := t.poll(pollCtx, id); ok {
			out <- res
		}
	}()
	return out
}

// Wait tracks id and blocks for the result. It returns ctx's error (or
// context.Canceled) if the poll was cancelled first.
func (t *Tracker) Wait(ctx context.Context, id string) (Result, error) {
	res, ok := <-t.Track(ctx, id)
	if !ok {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Result{}, context.Canceled
	}
	return res, nil
}

// Stop cancels the active poll, if any, and waits for it to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// poll runs the loop. ok is false when the poll was cancelled.
func (t *Tracker) poll(ctx context.Context, id string) (res Result, ok bool) {
	deadline, cancel := context.WithTimeout(ctx, t.MaxDuration)
	defer cancel()

	res.ConversionID = id
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		conv, err := t.fetch(deadline, id)
		switch {
		case err == nil:
			res.Conversion = conv
			switch conv.Conversion.Status {
			case models.StatusCompleted:
				res.Outcome = OutcomeCompleted
				return res, true
			case models.StatusFailed:
				res.Outcome = OutcomeFailed
				res.Message = conv.Conversion.ErrorMessage
				return res, true
			}
			if t.OnUpdate != nil {
				t.OnUpdate(conv.Conversion.Status)
			}
		case ctx.Err() != nil:
			return res, false
		case deadline.Err() != nil:
			return timedOut(res), true
		default:
			res.Outcome = OutcomeFailed
			res.Message = pollFailedMessage
			res.Err = err
			return res, true
		}

		select {
		case <-ticker.C:
		case <-deadline.Done():
			if ctx.Err() != nil {
				return res, false
			}
			return timedOut(res), true
		}
	}
}

func timedOut(res Result) Result {
	res.Outcome = OutcomeTimedOut
	res.Message = ErrPollTimeout.Error()
	res.Err = ErrPollTimeout
	return res
}

// fetch loads the conversion status, retrying transient failures with
// exponential backoff.
func (t *Tracker) fetch(ctx context.Context, id string) (*models.ConversionResponse, error) {
	var conv *models.ConversionResponse
	err := retry.Do(
		func() error {
			var err error
			conv, err = t.fetcher.Get(ctx, id, 0)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(t.RetryAttempts),
		retry.Delay(t.Interval),
		retry.MaxDelay(t.MaxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(transient),
	)
	return conv, err
}

// transient reports whether err is worth retrying: network errors and
// 5xx/429 responses are, client errors are not.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
