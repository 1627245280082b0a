package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/origon/todosync/internal/codec"
)

// HTTPClientOptions configures an HTTPClient. Zero values select the
// defaults.
type HTTPClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// HTTPClient implements Client over the task service HTTP API. Transient
// failures (network errors, 429, 5xx) are retried with jittered exponential
// backoff honoring Retry-After.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8000"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

func (c *HTTPClient) Login(ctx context.Context, username string) (codec.User, error) {
	var raw any
	err := c.doJSON(ctx, http.MethodPost, "/login/", nil, map[string]any{"username": username}, &raw)
	if err != nil {
		return codec.User{}, err
	}
	return codec.DecodeUser(raw), nil
}

func (c *HTTPClient) ListTasks(ctx context.Context, userID int64) ([]codec.Task, error) {
	var raw any
	err := c.doJSON(ctx, http.MethodGet, "/tasks/", userIDHeader(userID), nil, &raw)
	if err != nil {
		return nil, err
	}
	return codec.DecodeTaskList(raw), nil
}

func (c *HTTPClient) CreateTask(ctx context.Context, userID int64, draft TaskDraft) (codec.Task, error) {
	var raw any
	err := c.doJSON(ctx, http.MethodPost, "/tasks/", userIDHeader(userID), draft, &raw)
	if err != nil {
		return codec.Task{}, err
	}
	return codec.DecodeTask(raw), nil
}

func (c *HTTPClient) UpdateTask(ctx context.Context, userID, taskID int64, patch TaskPatch) (codec.Task, error) {
	var raw any
	path := fmt.Sprintf("/tasks/%d/", taskID)
	err := c.doJSON(ctx, http.MethodPatch, path, userIDHeader(userID), patch.body(), &raw)
	if err != nil {
		return codec.Task{}, err
	}
	return codec.DecodeTask(raw), nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, userID, taskID int64) error {
	path := fmt.Sprintf("/tasks/%d/", taskID)
	return c.doJSON(ctx, http.MethodDelete, path, userIDHeader(userID), nil, nil)
}

func userIDHeader(userID int64) map[string]string {
	return map[string]string{"Userid": strconv.FormatInt(userID, 10)}
}

func (c *HTTPClient) doJSON(
	ctx context.Context,
	method, requestPath string,
	headers map[string]string,
	body any,
	out *any,
) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("X-Correlation-Id", uuid.NewString())
		if body != nil {
			req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payloadBytes) == 0 {
				return nil
			}
			// Decode leniency belongs to the codec; a body that is not
			// JSON at all still decodes to a default entity.
			if err := json.Unmarshal(payloadBytes, out); err != nil {
				*out = nil
			}
			return nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payloadBytes, &errPayload)
		message := errPayload.Detail
		if message == "" {
			message = errPayload.Message
		}
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Message:    message,
		}
	}
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if delay := parseRetryAfter(retryAfterHeader); delay > 0 {
		if delay > c.maxDelay {
			return c.maxDelay
		}
		return delay
	}
	delay := c.baseDelay << uint(attempt-1)
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay/2 + jitter
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
