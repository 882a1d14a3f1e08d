package llm

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/delegent/internal/logging"
)

// RetryPolicy decides how many times a backend call is attempted and how
// long to wait in between.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// Retryable classifies a failed attempt. Status failures arrive as a
	// *TransportError with StatusCode set. Nil means DefaultRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy is three attempts, two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second, Retryable: DefaultRetryable}
}

// DefaultRetryable retries transport-class failures and the 408, 429 and
// 5xx statuses. Certificate and malformed-URL failures are not retried.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) && te.StatusCode != 0 {
		return retryableStatus(te.StatusCode)
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "unsupported protocol scheme") || strings.Contains(msg, "stopped after") {
		return false
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return DefaultRetryable(err)
}

// newRetryClient builds a single-use retrying client around hc that
// records the number of attempts made into *attempts.
func (p RetryPolicy) newRetryClient(hc *http.Client, backend string, log *logging.Logger, attempts *int) *retryablehttp.Client {
	delay := p.Delay
	rc := &retryablehttp.Client{
		HTTPClient:   hc,
		RetryWaitMin: delay,
		RetryWaitMax: delay,
		RetryMax:     p.attempts() - 1,
		Backoff: func(_, _ time.Duration, _ int, _ *http.Response) time.Duration {
			return delay
		},
		CheckRetry: func(ctx context.Context, resp *http.Response, err error) (bool, error) {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if err != nil {
				return p.retryable(err), nil
			}
			if resp.StatusCode < 400 {
				return false, nil
			}
			return p.retryable(&TransportError{Backend: backend, StatusCode: resp.StatusCode}), nil
		},
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, n int) {
			*attempts = n + 1
			if n > 0 {
				log.Warn().Str("backend", backend).Int("attempt", n+1).Str("url", req.URL.Redacted()).Msg("retrying model request")
			}
		},
	}
	if log != nil {
		rc.Logger = log.Leveled()
	}
	return rc
}
