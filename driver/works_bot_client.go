package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agent-relay/port"
)

// DefaultWorksAPIBaseURL is the platform messaging API base.
const DefaultWorksAPIBaseURL = "https://www.worksapis.com/v1.0"

const (
	// sendRetryMax is the number of extra attempts after the first send.
	sendRetryMax = 3
	// sendRetryBase is the base of the exponential backoff between attempts.
	sendRetryBase = time.Second
)

type sendMessageBody struct {
	Content messageContent `json:"content"`
}

type messageContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendErrorBody struct {
	Code string `json:"code"`
}

// WorksBotClient delivers text messages to platform users on behalf of the
// bot. Auth expiry triggers a token invalidation and retry; rate limiting
// triggers bounded exponential backoff honoring a server Retry-After hint
// when it is larger than the computed wait. Implements port.BotAPI.
type WorksBotClient struct {
	botID      string
	baseURL    string
	tokens     port.TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorksBotClient creates a new platform bot client.
func NewWorksBotClient(botID, baseURL string, tokens port.TokenSource, logger *slog.Logger) *WorksBotClient {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultWorksAPIBaseURL
	}

	return &WorksBotClient{
		botID:   botID,
		baseURL: baseURL,
		tokens:  tokens,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		sleep: sleepCtx,
	}
}

// SendText sends a text message to the user, applying the retry policy.
func (c *WorksBotClient) SendText(ctx context.Context, userID, text string) error {
	sendURL := fmt.Sprintf("%s/bots/%s/users/%s/messages", c.baseURL, c.botID, userID)

	body, err := json.Marshal(sendMessageBody{
		Content: messageContent{Type: "text", Text: text},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= sendRetryMax; attempt++ {
		cred, err := c.tokens.Token(ctx)
		if err != nil {
			// A token the refresher itself cannot produce will not appear
			// on a retry either.
			return fmt.Errorf("cannot send message: %w", err)
		}

		status, respBody, err := c.post(ctx, sendURL, cred.Token, body)
		if err != nil {
			lastErr = err
			c.logger.Warn("message send failed", "user_id", userID, "attempt", attempt+1, "error", err)
			if attempt < sendRetryMax {
				if err := c.sleep(ctx, backoff(attempt)); err != nil {
					return err
				}
				continue
			}
			break
		}

		switch {
		case status >= 200 && status < 300:
			c.logger.Info("message sent", "user_id", userID, "attempt", attempt+1)
			return nil

		case status == http.StatusUnauthorized || (status == http.StatusForbidden && errorCode(respBody) == "UNAUTHORIZED"):
			lastErr = fmt.Errorf("send rejected with status %d", status)
			c.logger.Info("access token rejected, forcing refresh", "status_code", status)
			if err := c.tokens.Invalidate(ctx); err != nil {
				c.logger.Warn("token invalidation failed", "error", err)
			}
			if attempt < sendRetryMax {
				if err := c.sleep(ctx, backoff(attempt)); err != nil {
					return err
				}
				continue
			}

		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited sending message")
			if attempt < sendRetryMax {
				wait := backoff(attempt)
				if hint := retryAfterHint(respBody.header); hint > wait {
					wait = hint
				}
				c.logger.Info("rate limited, backing off", "wait", wait.String())
				if err := c.sleep(ctx, wait); err != nil {
					return err
				}
				continue
			}

		default:
			// Other client or server errors are not retryable.
			c.logger.Error("message send failed", "status_code", status, "response_body", string(respBody.data))
			return fmt.Errorf("message send returned status %d", status)
		}
	}

	return fmt.Errorf("message send failed after %d attempts: %w", sendRetryMax+1, lastErr)
}

type responseBody struct {
	data   []byte
	header http.Header
}

func (c *WorksBotClient) post(ctx context.Context, url, bearer string, body []byte) (int, responseBody, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, responseBody{}, fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, responseBody{}, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, responseBody{data: data, header: resp.Header}, nil
}

// errorCode extracts the platform error code from an error response body.
func errorCode(body responseBody) string {
	var e sendErrorBody
	if err := json.Unmarshal(body.data, &e); err != nil {
		return ""
	}
	return e.Code
}

// retryAfterHint parses a server Retry-After header, zero when absent.
func retryAfterHint(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// backoff computes the exponential wait before retry attempt+1.
func backoff(attempt int) time.Duration {
	return sendRetryBase << attempt
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
