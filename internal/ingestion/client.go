package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/config"
	"github.com/sirupsen/logrus"
)

// Client performs JSON GETs against rate providers. Transport failures are
// retried with a linear backoff; an HTTP error status or an undecodable body
// fails at once.
type Client struct {
	http    *http.Client
	timeout time.Duration
	retries int
	delay   time.Duration
	logger  logrus.FieldLogger
}

func NewClient(cfg config.ProvidersConfig, logger logrus.FieldLogger) *Client {
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	return &Client{
		http:    &http.Client{},
		timeout: cfg.Timeout,
		retries: retries,
		delay:   cfg.RetryDelay,
		logger:  logger,
	}
}

// GetJSON decodes the body of GET rawURL?query into out. Numbers decoded into
// interface values are kept as json.Number.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: bad url %q: %v", apperrors.ErrAPIRequest, rawURL, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		body, err := c.get(ctx, u.String())
		if err == nil {
			return decode(body, out)
		}
		var status *statusError
		if errors.As(err, &status) {
			return fmt.Errorf("%w: %v", apperrors.ErrAPIRequest, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrAPIRequest, ctx.Err())
		}

		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"host":    u.Host,
			"attempt": attempt,
		}).WithError(err).Warn("provider request failed")

		if attempt == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", apperrors.ErrAPIRequest, ctx.Err())
		case <-time.After(c.delay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w: giving up after %d attempts: %v", apperrors.ErrAPIRequest, c.retries, lastErr)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "valutatrade-hub/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 100 {
			body = body[:100]
		}
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}
	return body, nil
}

func decode(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid JSON response: %v", apperrors.ErrAPIRequest, err)
	}
	return nil
}
