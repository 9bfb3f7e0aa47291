package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/util"
	"storefront/pkg/domain"
)

// DefaultTimeout bounds every identity-service call.
const DefaultTimeout = 15 * time.Second

// ErrNetwork wraps failures where no usable response arrived (transport
// errors, timeouts, cancellation).
var ErrNetwork = errors.New("identity service unreachable")

// APIError represents an identity service error response.
type APIError struct {
	Status  int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity service: status %d", e.Status)
	}
	return e.Message
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the identity service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs an identity service client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("identity service base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("identity service base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: base, httpClient: httpClient, logger: logger}, nil
}

// RegisterRequest is the POST /register body.
type RegisterRequest struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phoneNumber"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            string `json:"role"`
}

// PendingResponse is returned by register and login. User is present only
// when the service chooses to send a profile before verification.
type PendingResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *domain.User `json:"user,omitempty"`
}

// VerifiedResponse is returned by both verification endpoints.
type VerifiedResponse struct {
	Message string         `json:"message"`
	Token   string         `json:"token"`
	User    domain.User    `json:"user"`
	Wallet  *domain.Wallet `json:"wallet,omitempty"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (PendingResponse, error) {
	var resp PendingResponse
	if err := c.doJSON(ctx, http.MethodPost, "/register", "", req, &resp); err != nil {
		return PendingResponse{}, err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return PendingResponse{}, &APIError{Status: http.StatusBadGateway, Message: "registration response missing token"}
	}
	return resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (PendingResponse, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp PendingResponse
	if err := c.doJSON(ctx, http.MethodPost, "/login", "", payload, &resp); err != nil {
		return PendingResponse{}, err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return PendingResponse{}, &APIError{Status: http.StatusBadGateway, Message: "login response missing token"}
	}
	return resp, nil
}

func (c *Client) VerifyRegister(ctx context.Context, pendingToken, code string) (VerifiedResponse, error) {
	return c.verify(ctx, "/verify-register", pendingToken, code)
}

func (c *Client) VerifyLogin(ctx context.Context, pendingToken, code string) (VerifiedResponse, error) {
	return c.verify(ctx, "/verify-login", pendingToken, code)
}

func (c *Client) verify(ctx context.Context, path, pendingToken, code string) (VerifiedResponse, error) {
	payload := map[string]string{"code": code}
	var resp VerifiedResponse
	if err := c.doJSON(ctx, http.MethodPost, path, pendingToken, payload, &resp); err != nil {
		return VerifiedResponse{}, err
	}
	if strings.TrimSpace(resp.Token) == "" || strings.TrimSpace(resp.User.ID) == "" {
		return VerifiedResponse{}, &APIError{Status: http.StatusBadGateway, Message: "verification response missing token or user"}
	}
	return resp, nil
}

// GetUser fetches the authoritative profile for userID.
func (c *Client) GetUser(ctx context.Context, token, userID string) (domain.User, error) {
	var user domain.User
	path := "/users/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &user); err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(user.ID) == "" {
		return domain.User{}, &APIError{Status: http.StatusBadGateway, Message: "user lookup returned no profile"}
	}
	return user, nil
}

// Logout notifies the service that token is no longer in use.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/logout", token, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	ctx, requestID := util.EnsureRequestID(ctx)
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(util.RequestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("identity request failed",
			"method", method, "path", path, "request_id", requestID, "err", err)
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("identity request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &APIError{
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(errResp.Message),
			Detail:  strings.TrimSpace(errResp.Error),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		return &APIError{Status: resp.StatusCode, Message: "", Detail: "malformed response body: " + err.Error()}
	}
	return nil
}
