package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"tenant-gate/internal/domain"
)

// API is the surface the session manager drives. AuthClient implements it
// over HTTP; tests substitute fakes.
type API interface {
	Login(ctx context.Context, email, password string) (*domain.Principal, error)
	Logout(ctx context.Context) error
	ValidateSession(ctx context.Context) (bool, error)
	InitSession(ctx context.Context, tenantID string) (string, error)
	VerifyToken(ctx context.Context, token string) (*VerifyResult, error)
	Me(ctx context.Context, kind domain.Kind) (*domain.Principal, error)
}

// VerifyResult is the outcome of redeeming a handoff token.
type VerifyResult struct {
	Success  bool   `json:"success"`
	TenantID string `json:"tenantId"`
}

// AuthClient talks to the auth endpoints of a single origin. The cookie jar
// carries the scope's session cookie between calls, the way a browser would.
type AuthClient struct {
	baseURL string
	http    *http.Client

	mu       sync.Mutex
	apiToken string
}

func NewAuthClient(baseURL string, timeout time.Duration) (*AuthClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &AuthClient{
		baseURL: baseURL,
		http:    &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

// APIToken returns the backend JWT from the most recent successful
// validate-session or verify-token call, or "".
func (a *AuthClient) APIToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apiToken
}

func (a *AuthClient) setAPIToken(token string) {
	if token == "" {
		return
	}
	a.mu.Lock()
	a.apiToken = token
	a.mu.Unlock()
}

type userPayload struct {
	ID      string   `json:"id"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Tenants []string `json:"tenants"`
}

func (u userPayload) principal() *domain.Principal {
	return &domain.Principal{ID: u.ID, Email: u.Email, Name: u.Name, Tenants: u.Tenants}
}

func (a *AuthClient) Login(ctx context.Context, email, password string) (*domain.Principal, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})

	var resp struct {
		User userPayload `json:"user"`
	}
	if _, err := a.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return resp.User.principal(), nil
}

func (a *AuthClient) Logout(ctx context.Context) error {
	_, err := a.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	return err
}

func (a *AuthClient) ValidateSession(ctx context.Context) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	header, err := a.do(ctx, http.MethodGet, "/api/auth/validate-session", nil, &resp)
	if err != nil {
		// A 401 is the server's answer, not a transport failure: the
		// session is gone and the caller must treat it as expired.
		var ae *apiError
		if errors.As(err, &ae) && ae.status == http.StatusUnauthorized {
			return false, nil
		}
		return false, err
	}
	a.setAPIToken(header.Get("X-Gate-Api-Token"))
	return resp.Valid, nil
}

func (a *AuthClient) InitSession(ctx context.Context, tenantID string) (string, error) {
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	if _, err := a.do(ctx, http.MethodGet, "/api/auth/init-session/"+tenantID, nil, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.Token == "" {
		return "", fmt.Errorf("init-session returned no token")
	}
	return resp.Token, nil
}

func (a *AuthClient) VerifyToken(ctx context.Context, token string) (*VerifyResult, error) {
	var resp VerifyResult
	header, err := a.do(ctx, http.MethodGet, "/api/tenant/verify-token/"+token, nil, &resp)
	if err != nil {
		return nil, err
	}
	a.setAPIToken(header.Get("X-Gate-Api-Token"))
	return &resp, nil
}

func (a *AuthClient) Me(ctx context.Context, kind domain.Kind) (*domain.Principal, error) {
	path := "/api/users/login/me"
	if kind == domain.KindTenant {
		path = "/api/users/tenant/me"
	}
	var resp userPayload
	if _, err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.principal(), nil
}

func (a *AuthClient) do(ctx context.Context, method, path string, body []byte, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp.Header, nil
}

// apiError is a non-2xx response. It keeps the status code so callers can
// distinguish an authoritative rejection from transport trouble.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("server answered %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("server answered %d", e.status)
}

func newAPIError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(data, &payload)
	return &apiError{status: resp.StatusCode, message: payload.Message}
}
