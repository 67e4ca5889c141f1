package sources

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-kit/log/level"

	"github.com/airwatch-project/airwatch/internal/model"
)

// maxAdapterAttempts bounds TransientUpstream retries to two extra
// attempts with linear back-off, beyond the original call.
const maxAdapterAttempts = 2

// doWithRetry runs fn, retrying up to maxAdapterAttempts additional times
// on a transient failure with linear (constant) back-off, and returns the
// number of attempts made alongside whatever error (if any) survived. An
// error that does not wrap ErrTransientUpstream is returned without retry.
func doWithRetry(logger interface {
	Log(keyvals ...interface{}) error
}, source model.SourceID, fn func() error) (attempts int, err error) {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), maxAdapterAttempts)

	var permanent error
	err = backoff.RetryNotify(
		func() error {
			attempts++
			ferr := fn()
			if ferr != nil && !errors.Is(ferr, ErrTransientUpstream) {
				permanent = ferr
				return nil
			}
			return ferr
		},
		b,
		func(retryErr error, d time.Duration) {
			level.Warn(logger).Log("msg", "adapter retrying", "source", source, "err", retryErr, "backoff", d)
		},
	)
	if permanent != nil {
		return attempts, permanent
	}
	return attempts, err
}

// classifyHTTPStatus turns an HTTP status code into ErrTransientUpstream
// for 5xx and 429 Too Many Requests, nil for success, or a plain error
// otherwise.
func classifyHTTPStatus(statusCode int) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode >= 500 || statusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ErrTransientUpstream, statusCode)
	}
	return fmt.Errorf("sources: non-2xx response: status %d", statusCode)
}
