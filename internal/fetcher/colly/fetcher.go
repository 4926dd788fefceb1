// Package collyfetcher implements alert.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/alert"
	"github.com/JakeFAU/pricewatch/internal/metrics"
)

// DefaultUserAgent identifies the monitor to retailers.
const DefaultUserAgent = "pricewatch/1.0 (+https://github.com/JakeFAU/pricewatch)"

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher implements alert.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(cfg.UserAgent),
	)
	// Non-2xx responses reach OnResponse so they can be classified by status.
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.DisableCookies()
	c.WithTransport(newHTTPTransport())
	// The backend client is shared by every clone, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET and classifies the result. It never
// returns an error; transport failures are folded into the outcome.
func (f *Fetcher) Fetch(ctx context.Context, url string) alert.FetchOutcome {
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	// Requests carry ctx so cancellation aborts the connection, not just the wait.
	collector.Context = ctx

	resp, err := f.runCollector(ctx, collector, url)
	result := alert.FetchOutcome{URL: url, Duration: time.Since(start)}
	if err != nil {
		result.Kind = classifyError(err)
		result.Err = err
	} else {
		result.Kind = classifyStatus(resp.status)
		result.Status = resp.status
		if result.Kind == alert.OutcomeOK {
			result.Body = resp.body
		}
	}

	metrics.ObserveFetch(url, string(result.Kind), len(result.Body), result.Duration)
	f.logger.Debug("fetch finished",
		zap.String("url", url),
		zap.String("outcome", string(result.Kind)),
		zap.Int("status", result.Status),
		zap.Duration("duration", result.Duration),
		zap.Error(result.Err),
	)
	return result
}

// visitResult is owned by the collector goroutine until it is sent.
type visitResult struct {
	status int
	body   []byte
	err    error
}

func configureCollectorHooks(hooks collectorHooks, res *visitResult) {
	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		res.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) (visitResult, error) {
	done := make(chan visitResult, 1)
	go func() {
		var res visitResult
		configureCollectorHooks(collector, &res)
		if err := collector.Visit(url); err != nil && res.err == nil {
			res.err = err
		}
		done <- res
	}()

	select {
	case <-ctx.Done():
		return visitResult{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return res, fmt.Errorf("colly visit failed: %w", res.err)
		}
		return res, nil
	}
}

func classifyStatus(status int) alert.OutcomeKind {
	switch {
	case status >= 200 && status < 300:
		return alert.OutcomeOK
	case status == http.StatusNotFound || status == http.StatusGone:
		return alert.OutcomeNotFound
	default:
		return alert.OutcomeServerError
	}
}

func classifyError(err error) alert.OutcomeKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return alert.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return alert.OutcomeTimeout
	}
	return alert.OutcomeNetworkError
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
