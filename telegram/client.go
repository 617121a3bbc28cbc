// Package telegram implements outbound delivery and the bootstrap command
// surface over the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	defaultTimeout = 60 * time.Second

	sendRetryLimit = 4 // attempts after the first, on rate limit only
)

// ErrOversize reports that the destination rejected a message as too long.
// Callers detect it with errors.Is and fall back to a shorter rendering.
var ErrOversize = errors.New("telegram: message is too long")

// APIError is a non-ok response from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %s (code %d)", e.Method, e.Description, e.Code)
}

// Is matches ErrOversize for the API's over-length rejection. The textual
// check lives only here; callers see a structured signal.
func (e *APIError) Is(target error) bool {
	return target == ErrOversize &&
		e.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(e.Description), "message is too long")
}

func (e *APIError) rateLimited() bool { return e.Code == http.StatusTooManyRequests }

// Config configures a Bot API client.
type Config struct {
	Token      string
	BaseURL    string // defaults to the public Bot API
	HTTPClient *http.Client
}

// Client talks to the Telegram Bot API.
type Client struct {
	token string
	base  string
	httpc *http.Client
}

// New returns a client for the given bot token.
func New(cfg Config) *Client {
	c := &Client{
		token: cfg.Token,
		base:  cfg.BaseURL,
		httpc: cfg.HTTPClient,
	}
	if c.base == "" {
		c.base = defaultAPIBase
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: defaultTimeout}
	}
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call performs one Bot API method call, decoding the result into out when
// out is non-nil.
func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encoding request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	dat, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: reading response: %w", method, err)
	}

	var ar apiResponse
	if err := json.Unmarshal(dat, &ar); err != nil {
		return fmt.Errorf("telegram %s: decoding response: %w", method, err)
	}
	if !ar.OK {
		apiErr := &APIError{
			Method:      method,
			Code:        ar.ErrorCode,
			Description: ar.Description,
		}
		if ar.Parameters != nil && ar.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(ar.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decoding result: %w", method, err)
		}
	}
	return nil
}

type sendMessageRequest struct {
	ChatID             int64  `json:"chat_id"`
	Text               string `json:"text"`
	ParseMode          string `json:"parse_mode,omitempty"`
	LinkPreviewOptions struct {
		IsDisabled bool `json:"is_disabled"`
	} `json:"link_preview_options"`
}

// SendMessage delivers an HTML-formatted message to chatID. Rate-limited
// requests are retried with exponential backoff, honoring the retry_after
// hint; every other failure is returned as-is so the caller can classify it.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, disablePreview bool) error {
	msg := sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}
	msg.LinkPreviewOptions.IsDisabled = disablePreview

	hinted := &hintedBackOff{BackOff: backoff.NewExponentialBackOff()}
	op := func() error {
		err := c.call(ctx, "sendMessage", msg, nil)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.rateLimited() {
			hinted.hint = apiErr.RetryAfter
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(hinted, sendRetryLimit), ctx)
	return backoff.Retry(op, bo)
}

// hintedBackOff waits the server's retry_after hint when one was given,
// falling back to the wrapped policy otherwise. A hint is consumed by the
// wait it applies to.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	if b.hint > 0 {
		d := b.hint
		b.hint = 0
		return d
	}
	return b.BackOff.NextBackOff()
}
