package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// Fetcher retrieves the raw bytes behind a source string.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// HTTPConfig configures the HTTP fetcher and its circuit breakers.
type HTTPConfig struct {
	// Client performs the requests. Default: a client with a 30s timeout
	Client *http.Client

	// MaxBytes caps the response body. Default: 64 MiB
	MaxBytes int64

	// MaxRequests is the number of requests allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic reset period for counts.
	Interval time.Duration

	// Timeout is the duration in open state before transitioning to half-open.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold uint32
}

// DefaultHTTPConfig returns production defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Client:           &http.Client{Timeout: 30 * time.Second},
		MaxBytes:         64 << 20,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 3,
	}
}

// HTTPFetcher downloads http(s) sources. Each host gets its own circuit
// breaker; while a breaker is open requests to that host fail immediately.
type HTTPFetcher struct {
	cfg    HTTPConfig
	logger log.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewHTTPFetcher creates an HTTPFetcher. Zero fields in cfg take defaults.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	def := DefaultHTTPConfig()
	if cfg.Client == nil {
		cfg.Client = def.Client
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Interval == 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	return &HTTPFetcher{
		cfg:      cfg,
		logger:   log.GetLoggerWithName("dataset"),
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(source, err)
	}

	body, err := f.breaker(u.Host).Execute(func() ([]byte, error) {
		return f.get(ctx, source)
	})
	if err != nil {
		return nil, errors.NewSourceUnavailableError(source, err)
	}
	return body, nil
}

// State reports the breaker state for host.
func (f *HTTPFetcher) State(host string) gobreaker.State {
	return f.breaker(host).State()
}

func (f *HTTPFetcher) breaker(host string) *gobreaker.CircuitBreaker[[]byte] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	threshold := f.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "dataset:" + host,
		MaxRequests: f.cfg.MaxRequests,
		Interval:    f.cfg.Interval,
		Timeout:     f.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a cancelled caller says nothing about the host
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	f.breakers[host] = cb
	return cb
}

func (f *HTTPFetcher) get(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")

	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", f.cfg.MaxBytes)
	}
	return body, nil
}

// FileFetcher reads bare paths and file:// URLs from the local filesystem.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewSourceUnavailableError(source, err)
	}
	path := source
	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil {
			return nil, errors.NewSourceUnavailableError(source, err)
		}
		path = u.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(source, err)
	}
	return data, nil
}

var (
	defaultHTTPOnce sync.Once
	defaultHTTP     *HTTPFetcher
)

// DefaultFetcher routes http(s) sources to a shared HTTPFetcher and
// everything else to FileFetcher.
func DefaultFetcher() Fetcher {
	defaultHTTPOnce.Do(func() {
		defaultHTTP = NewHTTPFetcher(DefaultHTTPConfig())
	})
	return schemeFetcher{http: defaultHTTP}
}

type schemeFetcher struct {
	http Fetcher
}

func (s schemeFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	lower := strings.ToLower(source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s.http.Fetch(ctx, source)
	}
	return FileFetcher{}.Fetch(ctx, source)
}
