package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/google/go-querystring/query"
	"golang.org/x/time/rate"

	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/version"
)

const maxBodyBytes = 2 << 20

// Env is the shared outbound plumbing of the HTTP-backed tools.
type Env struct {
	HTTP      *http.Client
	Limiter   *rate.Limiter
	UserAgent string

	SearchURL    string
	GeocodingURL string
	WeatherURL   string
	WikipediaURL string

	// FetchHTTP is used by fetch_url_content; it refuses private targets
	// unless private URLs are allowed.
	FetchHTTP *http.Client

	Now func() time.Time
	Log *logging.Logger
}

// NewEnv builds an Env from config.
func NewEnv(cfg config.ToolsConfig, log *logging.Logger) *Env {
	if log == nil {
		log = logging.Nop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	fetchTransport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.AllowPrivateURLs {
		fetchTransport.DialContext = (&net.Dialer{
			Timeout: cfg.Timeout,
			Control: refusePrivate,
		}).DialContext
		fetchTransport.Proxy = nil
	}

	return &Env{
		HTTP:         &http.Client{Timeout: cfg.Timeout},
		FetchHTTP:    &http.Client{Timeout: cfg.Timeout, Transport: fetchTransport},
		Limiter:      rate.NewLimiter(limit, burst),
		UserAgent:    version.UserAgent(),
		SearchURL:    cfg.SearchURL,
		GeocodingURL: cfg.GeocodingURL,
		WeatherURL:   cfg.WeatherURL,
		WikipediaURL: cfg.WikipediaURL,
		Now:          time.Now,
		Log:          log.Sub("tools"),
	}
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// getJSON issues one GET to base with params encoded from a struct
// carrying `url` tags and decodes the JSON reply into out.
func (e *Env) getJSON(ctx context.Context, base string, params any, out any) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("bad endpoint %q: %w", base, err)
	}
	if params != nil {
		vals, err := query.Values(params)
		if err != nil {
			return fmt.Errorf("failed to encode query: %w", err)
		}
		q := u.Query()
		for k, vs := range vals {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	body, _, err := e.get(ctx, e.HTTP, u.String(), "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unexpected response from %s: %w", u.Host, err)
	}
	return nil
}

// get performs a single rate-limited GET with no retry.
func (e *Env) get(ctx context.Context, hc *http.Client, rawURL, accept string) ([]byte, string, error) {
	if e.Limiter != nil {
		if err := e.Limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	if e.Log != nil {
		e.Log.Debug().Str("host", req.URL.Host).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("tool request")
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

var errPrivateTarget = errors.New("refusing to connect to a private or loopback address")

// refusePrivate runs after DNS resolution, so it sees the address actually
// dialled.
func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", errPrivateTarget, host)
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsInterfaceLocalMulticast()
}
