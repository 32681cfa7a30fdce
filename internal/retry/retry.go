package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// Class partitions external call failures by how they should be handled.
type Class int

const (
	// ClassNone marks success.
	ClassNone Class = iota
	// ClassPermanent failures are never retried.
	ClassPermanent
	// ClassTransient failures are retried with exponential backoff.
	ClassTransient
	// ClassAuthExpired failures trigger one credential refresh, then one
	// more attempt.
	ClassAuthExpired
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassPermanent:
		return "permanent"
	case ClassTransient:
		return "transient"
	case ClassAuthExpired:
		return "auth_expired"
	}
	return "unknown"
}

// CallError wraps a failed call with its classification.
type CallError struct {
	Class Class
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ClassOf extracts the class from an error returned by Caller.Execute.
func ClassOf(err error) Class {
	if err == nil {
		return ClassNone
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassTransient
}

// Classify maps an upstream API error onto a retry class. Quota and
// rate-limit rejections arrive as 403s with dedicated reasons, so the
// status code alone is not enough.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		// Transport-level failure: connection reset, DNS, timeout.
		return ClassTransient
	}

	switch apiErr.Code {
	case http.StatusBadRequest, http.StatusNotFound:
		// Includes processingFailure, banWithoutReject and
		// operationNotSupported rejections.
		return ClassPermanent
	case http.StatusUnauthorized:
		return ClassAuthExpired
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded":
				return ClassTransient
			}
		}
		if strings.Contains(apiErr.Message, "quota") {
			return ClassTransient
		}
		return ClassPermanent
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return ClassTransient
	}

	if apiErr.Code >= 500 {
		return ClassTransient
	}
	return ClassPermanent
}

// Refresher invalidates and renews the credential behind a call after the
// platform rejects it as expired.
type Refresher interface {
	ForceRefresh(ctx context.Context) error
}

// Caller executes external mutating calls under one shared retry policy.
type Caller struct {
	maxAttempts int
	baseDelay   time.Duration
	classify    func(error) Class
	refresher   Refresher
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option customizes a Caller.
type Option func(*Caller)

// WithMaxAttempts overrides the transient attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *Caller) { c.maxAttempts = n }
}

// WithBaseDelay overrides the backoff base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Caller) { c.baseDelay = d }
}

// WithClassifier overrides error classification.
func WithClassifier(fn func(error) Class) Option {
	return func(c *Caller) { c.classify = fn }
}

// WithRefresher wires the credential refresh hook used on auth-expired
// failures.
func WithRefresher(r Refresher) Option {
	return func(c *Caller) { c.refresher = r }
}

// WithSleeper overrides the inter-attempt wait, for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Caller) { c.sleep = fn }
}

// NewCaller builds a Caller with the default policy: three attempts for
// transient failures, backoff d·2^k starting at one second.
func NewCaller(opts ...Option) *Caller {
	c := &Caller{
		maxAttempts: 3,
		baseDelay:   time.Second,
		classify:    Classify,
		sleep:       wait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs fn under the retry policy. Permanent failures return after
// one attempt; transient failures are retried up to the attempt budget
// with exponentially growing delays; an auth-expired failure triggers a
// single credential refresh followed by exactly one more attempt. The
// returned error is always a *CallError carrying the final class.
func (c *Caller) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	refreshed := false

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &CallError{Class: ClassTransient, Err: err}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		switch c.classify(err) {
		case ClassPermanent:
			return &CallError{Class: ClassPermanent, Err: fmt.Errorf("%s: %w", op, err)}

		case ClassAuthExpired:
			if refreshed || c.refresher == nil {
				return &CallError{Class: ClassAuthExpired, Err: fmt.Errorf("%s: %w", op, err)}
			}
			refreshed = true
			if rErr := c.refresher.ForceRefresh(ctx); rErr != nil {
				return &CallError{Class: ClassAuthExpired, Err: fmt.Errorf("%s: refresh credential: %w", op, rErr)}
			}
			// One extra attempt with the renewed credential, no backoff.
			if retryErr := fn(ctx); retryErr != nil {
				return &CallError{Class: ClassAuthExpired, Err: fmt.Errorf("%s: %w", op, retryErr)}
			}
			return nil

		case ClassTransient:
			if attempt == c.maxAttempts-1 {
				break
			}
			delay := c.baseDelay << uint(attempt)
			if sErr := c.sleep(ctx, delay); sErr != nil {
				return &CallError{Class: ClassTransient, Err: fmt.Errorf("%s: %w", op, sErr)}
			}
		}
	}

	return &CallError{Class: ClassTransient, Err: fmt.Errorf("%s: attempts exhausted: %w", op, lastErr)}
}
