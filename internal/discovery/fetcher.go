package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/edgarlab/filings-extractor/internal/common"
	"github.com/edgarlab/filings-extractor/internal/entity"
)

// maxDocumentBytes caps a single download. Full submission files run large
// but a cap keeps one pathological filing from exhausting memory.
const maxDocumentBytes = 256 << 20

// Client downloads index feeds and filing documents. Every request waits on
// the shared limiter first; the archive requires a descriptive User-Agent
// and throttles aggressive clients, so the limiter is not optional.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	baseURL   string
	userAgent string
	logger    *slog.Logger
}

func NewClient(cfg common.DiscoveryConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		http:      &http.Client{Timeout: 90 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// FetchDocument implements the pipeline's fetch boundary.
func (c *Client) FetchDocument(ctx context.Context, filing entity.Filing) ([]byte, error) {
	if filing.DocumentURL == "" {
		return nil, common.NewAppError("VALIDATION_ERROR",
			"filing has no document URL: "+filing.AccessionNumber, common.ErrInvalidInput)
	}
	return c.get(ctx, filing.DocumentURL)
}

// FetchIndex downloads and parses the daily master index for one date.
func (c *Client) FetchIndex(ctx context.Context, day time.Time, formTypes []string) ([]entity.Filing, error) {
	url := IndexURL(c.baseURL, day)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	filings, err := ParseMasterIndex(body, c.baseURL, formTypes)
	if err != nil {
		return nil, err
	}
	c.logger.Info("index fetched",
		"date", day.Format("2006-01-02"), "filings", len(filings))
	return filings, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, common.WrapError(err, "build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, common.WrapError(err, "fetch "+url)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, common.NewAppError("NOT_FOUND", "document not found: "+url, common.ErrNotFound)
	default:
		return nil, common.NewAppError("FETCH_ERROR",
			fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, url), common.ErrInternal)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, common.WrapError(err, "read body")
	}
	c.logger.Debug("fetched",
		"url", url, "bytes", len(body), "elapsed", time.Since(start))
	return body, nil
}
