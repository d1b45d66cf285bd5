// Package fetch downloads product pages, it makes exactly one attempt per url.
package fetch

import (
	"bgprices/internal/components/assert"
	"bgprices/internal/components/telemetry"
	"context"
	"fmt"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_fetch_get  = "fetch.get"
	report_fetch_dump = "fetch.dump"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Fetcher is the collaborator used by the snapshot builder.
//
// note: fault injection point
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Error is a network or HTTP level failure.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Options struct {
	Timeout time.Duration
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	UserAgent         string
	BypassCloudflare  bool
	// DumpDir is optional, every fetched page is written there when set.
	DumpDir string
}

// Client is the resty backed Fetcher.
type Client struct {
	http *resty.Client
	tel  telemetry.API
	dump *FilesystemOutput
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("fetch", tel)

	httpClient := resty.New()
	if opts.BypassCloudflare {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient.SetHeader("user-agent", userAgent)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	httpClient.SetTimeout(timeout)
	httpClient.SetRetryCount(0)

	if opts.RequestsPerSecond > 0 {
		// max burst of 1 keeps requests evenly spaced
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel)

	c := &Client{
		http: httpClient,
		tel:  tel,
	}

	if opts.DumpDir != "" {
		out, err := NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, err
		}
		c.dump = &out
	}

	return c, nil
}

func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	if !res.IsSuccess() {
		c.tel.ReportBroken(report_fetch_get, url, res.StatusCode())
		return nil, &Error{URL: url, StatusCode: res.StatusCode()}
	}

	body := res.Body()
	if c.dump != nil {
		err := c.dump.Write(url, body)
		if err != nil {
			c.tel.ReportWarning(report_fetch_dump, err, url)
		}
	}
	return body, nil
}
