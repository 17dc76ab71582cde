/*
This file implements the GraphQL client for the Morpho API.

All communication with the API flows through executeQuery, which enforces a
client-side request budget via a rate limiter and retries transient failures
with exponential backoff. Callers never see a rate-limit error; the limiter
blocks until a slot is available or the context is cancelled.
*/

package datasource

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

	"golang.org/x/time/rate"

	"github.com/yieldpilot/vrm/internal/logger"
)

var morphoLogger = logger.GetForComponent("morpho_client")

var ErrAPIRequest = errors.New("morpho api request failed")
var ErrGraphQLErrors = errors.New("morpho api returned graphql errors")
var ErrVaultNotFound = errors.New("vault not found on morpho api")

const (
	MAX_RETRIES        = 3
	RETRY_BASE_DELAY   = 2 * time.Second
	REQUEST_TIMEOUT    = 30 * time.Second
	DEFAULT_RATE_LIMIT = 30 // requests per minute
)

// MorphoClient talks to the Morpho GraphQL API. Construct it with
// NewMorphoClient; the zero value is not usable.
type MorphoClient struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewMorphoClient creates a client against the given endpoint. requestsPerMinute
// caps the outbound request rate; values <= 0 fall back to DEFAULT_RATE_LIMIT.
func NewMorphoClient(endpoint string, requestsPerMinute int) (*MorphoClient, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("%w: endpoint is empty", ErrAPIRequest)
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = DEFAULT_RATE_LIMIT
	}

	interval := time.Minute / time.Duration(requestsPerMinute)
	return &MorphoClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: REQUEST_TIMEOUT},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// executeQuery runs a single GraphQL query and unmarshals the data payload
// into out. It waits on the rate limiter before each attempt and retries up
// to MAX_RETRIES times with exponential backoff on transport-level failures.
func (c *MorphoClient) executeQuery(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal graphql request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait aborted: %w", err)
		}

		lastErr = c.doRequest(ctx, payload, out)
		if lastErr == nil {
			return nil
		}
		// GraphQL-level errors are not transient; retrying resends the same
		// rejected query.
		if errors.Is(lastErr, ErrGraphQLErrors) {
			return lastErr
		}

		if attempt < MAX_RETRIES {
			delay := RETRY_BASE_DELAY * time.Duration(1<<(attempt-1))
			morphoLogger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("retry_in", delay).
				Msg("Morpho API request failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%w: exhausted %d attempts: %v", ErrAPIRequest, MAX_RETRIES, lastErr)
}

func (c *MorphoClient) doRequest(ctx context.Context, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrAPIRequest, resp.StatusCode, truncateBody(body))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrGraphQLErrors, strings.Join(messages, "; "))
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "...(truncated)"
}
