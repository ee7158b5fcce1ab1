// File path: internal/gateway/client.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/consultflow/consultflow/internal/consultation"
	"github.com/consultflow/consultflow/internal/form"
)

// Ensure Client implements Gateway at compile time.
var _ Gateway = (*Client)(nil)

const (
	defaultUserAgent = "consultflow-intake/0.1"
	defaultTimeout   = 10 * time.Second
)

// Client talks to the consultation HTTP API. Requests are credentialed by
// the ambient session cookie; the client never attaches a token explicitly.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	cookieName   string
	sessionToken string
	userAgent    string
}

// ClientOptions configure a Client beyond its base URL.
type ClientOptions struct {
	// Timeout bounds every request; a timeout surfaces as a TransientError.
	Timeout time.Duration
	// CookieName defaults to cf_session.
	CookieName string
	// SessionToken is the ambient session credential.
	SessionToken string
}

// NewClient builds a Client for the API at baseURL (host:port or full URL).
func NewClient(baseURL string, opts ClientOptions) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cookieName := strings.TrimSpace(opts.CookieName)
	if cookieName == "" {
		cookieName = "cf_session"
	}
	return &Client{
		baseURL:      base,
		http:         &http.Client{Timeout: timeout},
		cookieName:   cookieName,
		sessionToken: strings.TrimSpace(opts.SessionToken),
		userAgent:    defaultUserAgent,
	}, nil
}

// Create opens a new draft consultation.
func (c *Client) Create(ctx context.Context) (consultation.Consultation, error) {
	var payload consultation.Consultation
	if err := c.do(ctx, http.MethodPost, "/v1/consultations", map[string]any{}, &payload); err != nil {
		return consultation.Consultation{}, err
	}
	return payload, nil
}

// Fetch retrieves a consultation by id.
func (c *Client) Fetch(ctx context.Context, id string) (consultation.Consultation, error) {
	var payload consultation.Consultation
	if err := c.do(ctx, http.MethodGet, "/v1/consultations/"+url.PathEscape(id), nil, &payload); err != nil {
		return consultation.Consultation{}, err
	}
	return payload, nil
}

// Update replaces the supplied sections on the server; omitted sections are
// left untouched.
func (c *Client) Update(ctx context.Context, id string, sections map[form.Section]form.SectionData) (consultation.Consultation, error) {
	var payload consultation.Consultation
	if err := c.do(ctx, http.MethodPut, "/v1/consultations/"+url.PathEscape(id), sections, &payload); err != nil {
		return consultation.Consultation{}, err
	}
	return payload, nil
}

// SaveDraft supersedes the consultation's draft with the full snapshot.
func (c *Client) SaveDraft(ctx context.Context, id string, data map[form.Section]form.SectionData) (consultation.Draft, error) {
	body := map[string]any{"data": data, "auto_save": true}
	var payload consultation.Draft
	if err := c.do(ctx, http.MethodPost, "/v1/consultations/"+url.PathEscape(id)+"/drafts", body, &payload); err != nil {
		return consultation.Draft{}, err
	}
	return payload, nil
}

// FetchDraft retrieves the draft; a 404 folds into (nil, nil) because a
// missing draft is the expected state before the first auto-save.
func (c *Client) FetchDraft(ctx context.Context, id string) (*consultation.Draft, error) {
	var payload consultation.Draft
	err := c.do(ctx, http.MethodGet, "/v1/consultations/"+url.PathEscape(id)+"/drafts", nil, &payload)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payload, nil
}

// Complete transitions the consultation to completed. Skipping this call
// leaves a finished intake stranded in draft status, so every submission
// path must end here.
func (c *Client) Complete(ctx context.Context, id string) (consultation.Consultation, error) {
	var payload consultation.Consultation
	if err := c.do(ctx, http.MethodPost, "/v1/consultations/"+url.PathEscape(id)+"/complete", map[string]any{}, &payload); err != nil {
		return consultation.Consultation{}, err
	}
	return payload, nil
}

// FetchAgency returns the branding record for the session's agency. It sits
// outside the Gateway interface: the form core never needs it, only UIs do.
func (c *Client) FetchAgency(ctx context.Context) (consultation.Agency, error) {
	var payload consultation.Agency
	if err := c.do(ctx, http.MethodGet, "/v1/agency", nil, &payload); err != nil {
		return consultation.Agency{}, err
	}
	return payload, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	rel := &url.URL{Path: path}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.sessionToken})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and transport errors are retry-eligible.
		return &TransientError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	message := strings.TrimSpace(payload.Error)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Message: message}
	case resp.StatusCode >= 500:
		return &TransientError{Status: resp.StatusCode}
	default:
		if message == "" {
			message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("%s", message)
	}
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("server address required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server address %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
