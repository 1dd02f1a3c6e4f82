// Package infer asks an LLM three independent, narrowly-scoped questions
// about a receipt's OCR text (total amount, short description, binary
// classification), with a vision call against the raw image as the
// escalation path. Every failure mode degrades to a defined "no data"
// value; inference never fails a pipeline, it only impoverishes the
// resulting record.
package infer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Provider is the LLM boundary: one plain-text completion and one
// vision-capable completion. Implementations return the model's raw text;
// response-shape enforcement lives in the engine.
type Provider interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateVision(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// ErrNoProvider is returned by provider constructors when credentials are
// missing. Callers treat it as "run degraded", not as a failure.
var ErrNoProvider = errors.New("infer: no LLM credentials configured")

// callWithRetry runs op under a deadline with a single retry, so a
// stalled external call cannot hang a whole ingestion batch.
func callWithRetry(ctx context.Context, timeout time.Duration, op func(context.Context) (string, error)) (string, error) {
	var out string
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var err error
		out, err = op(callCtx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
	return out, err
}
