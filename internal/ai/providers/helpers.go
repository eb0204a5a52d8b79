package providers

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meridian-pim/meridian/internal/errs"
)

const defaultRetryAfter = 10 * time.Second

func asAPIError(err error, target **openai.APIError) bool {
	return errors.As(err, target)
}

// ctxErr maps a context cancellation/deadline error to the pipeline's
// Timeout/Cancelled taxonomy, or returns nil if err isn't one of those.
func ctxErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &errs.Timeout{Dur: 0}
	case errors.Is(err, context.Canceled):
		return errs.ErrCancelled
	default:
		return nil
	}
}
