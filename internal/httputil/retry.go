// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the HTTP plumbing shared by the embedding and
// variant-effect clients: bounded backoff on throttling responses and
// uniform status-to-error conversion.
package httputil

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/logging"
)

// RetryBaseDelay is the first backoff interval. Tests override it.
var RetryBaseDelay = 2 * time.Second

const defaultMaxRetries = 3

// Retrier re-sends requests answered with 429 or 503. Requests must have a
// replayable body (GetBody set), which http.NewRequest arranges for
// bytes.Reader and strings.Reader bodies.
type Retrier struct {
	Client     *http.Client
	MaxRetries int
	Logger     *logrus.Logger
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// Do executes req, backing off exponentially from RetryBaseDelay. A
// Retry-After header in seconds takes precedence when it is larger. After
// the last attempt the throttled response is returned so the caller can
// report it.
func (r *Retrier) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	maxRetries := r.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	log := logging.OrDiscard(r.Logger)

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewinding request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}
		if !retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			if ra := time.Duration(s) * time.Second; ra > backoff {
				backoff = ra
			}
		}
		log.WithFields(logrus.Fields{
			"url":     req.URL.Redacted(),
			"status":  resp.StatusCode,
			"attempt": attempt + 1,
			"backoff": backoff.String(),
		}).Warn("throttled, backing off")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// StatusError describes a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// CheckStatus returns nil for 2xx responses. Otherwise it reads up to 4 KiB
// of the body into a StatusError; the caller still owns closing the body.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		URL:        resp.Request.URL.Redacted(),
		StatusCode: resp.StatusCode,
		Body:       string(msg),
	}
}
