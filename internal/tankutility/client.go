package tankutility

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://data.tankutility.com/api"

	// defaultTimeout bounds each HTTP request when Config.Timeout is zero.
	defaultTimeout = 10 * time.Second

	// maxBodySize caps how much of a response body is read (1MB).
	maxBodySize = 1 << 20

	// logBodyLimit caps how much of an error body is logged.
	logBodyLimit = 256
)

// Credentials are the account email and password exchanged for a token.
// They are fixed for the lifetime of a Client; reauthentication builds a new Client.
type Credentials struct {
	Email    string
	Password string
}

// Config holds configuration for a Client.
type Config struct {
	// BaseURL is the API root. Empty means DefaultBaseURL.
	BaseURL string

	// Credentials are the account credentials.
	Credentials Credentials

	// Timeout bounds each HTTP request. Zero means 10s.
	// Ignored when HTTPClient is set.
	Timeout time.Duration

	// HTTPClient overrides the default client (tests, custom transports).
	HTTPClient *http.Client
}

// Logger is the logging interface used by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client talks to the Tank Utility API for one account.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Token refresh is serialised; concurrent refresh requests share one
//     network call.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client

	// stateMu guards token and tokenGen. Held only for reads and stores,
	// never across a network call.
	stateMu  sync.RWMutex
	token    string
	tokenGen uint64

	// refreshMu serialises the check-fetch-store refresh sequence.
	refreshMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Client. No network call is made until the first request.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    baseURL,
		creds:      cfg.Credentials,
		httpClient: httpClient,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for request diagnostics.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Email returns the account email this client authenticates as.
func (c *Client) Email() string {
	return c.creds.Email
}

func (c *Client) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) tokenURL() string {
	return c.baseURL + "/getToken"
}

func (c *Client) devicesURL(token string) string {
	return c.baseURL + "/devices?" + url.Values{"token": {token}}.Encode()
}

func (c *Client) deviceURL(deviceID, token string) string {
	return c.baseURL + "/devices/" + url.PathEscape(deviceID) + "?" + url.Values{"token": {token}}.Encode()
}

// response is a fully read HTTP response.
type response struct {
	status int
	body   []byte
}

// get issues a GET and reads the whole body. Transport and read failures
// are returned as *APIError with the connection error classification.
func (c *Client) get(ctx context.Context, op, rawURL string, basicAuth bool) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &APIError{Op: op, Message: "building request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if basicAuth {
		req.SetBasicAuth(c.creds.Email, c.creds.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = withoutQuery(err)
		c.log().Error("error connecting to Tank Utility API", "op", op, "error", err)
		return nil, &APIError{Op: op, Message: msgConnection, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.log().Error("error reading Tank Utility API response", "op", op, "error", err)
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Message: msgConnection, Err: err}
	}

	return &response{status: resp.StatusCode, body: body}, nil
}

// withoutQuery drops the query string from a *url.Error so the token
// never reaches a log record or a returned error.
func withoutQuery(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	stripped := *uerr
	stripped.URL, _, _ = strings.Cut(uerr.URL, "?")
	return &stripped
}

// logFailure records a non-200 response with a truncated body.
func (c *Client) logFailure(op string, r *response, args ...any) {
	body := string(r.body)
	if len(body) > logBodyLimit {
		body = body[:logBodyLimit] + "..."
	}
	args = append([]any{"op", op, "status", r.status, "body", body}, args...)
	c.log().Error(fmt.Sprintf("%s request failed", op), args...)
}
