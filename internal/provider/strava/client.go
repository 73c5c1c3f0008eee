// Package strava implements the provider contracts against the Strava v3 API.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/provider"
)

// Name is the provider identifier used for connections and activities.
const Name = "strava"

const (
	defaultBaseURL = "https://www.strava.com"
	activitiesPath = "/api/v3/athlete/activities"
	activityPath   = "/api/v3/activities/"
	tokenPath      = "/oauth/token"
	maxErrorBody   = 512
)

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the OAuth application credentials and endpoint.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Timeout      time.Duration
}

// Client talks to the Strava API.
type Client struct {
	cfg  Config
	http HTTPClient
}

var (
	_ provider.Client                = (*Client)(nil)
	_ provider.SingleActivityFetcher = (*Client)(nil)
	_ provider.OAuthClient           = (*Client)(nil)
)

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithHTTPClient overrides the transport used for API calls.
func WithHTTPClient(c HTTPClient) Option {
	return func(s *Client) { s.http = c }
}

// NewClient constructs a Client. A zero Timeout leaves the default http.Client without a deadline.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchActivities lists one page of the athlete's activities started after params.After.
func (c *Client) FetchActivities(ctx context.Context, accessToken string, params provider.FetchParams) ([]domain.NormalizedActivity, error) {
	query := url.Values{}
	if !params.After.IsZero() {
		query.Set("after", strconv.FormatInt(params.After.Unix(), 10))
	}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(params.PerPage))
	}

	var raws []json.RawMessage
	if err := c.getJSON(ctx, accessToken, c.cfg.BaseURL+activitiesPath+"?"+query.Encode(), &raws); err != nil {
		return nil, err
	}

	out := make([]domain.NormalizedActivity, 0, len(raws))
	for _, raw := range raws {
		activity, err := normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: decode activity: %v", domain.ErrProviderRequest, err)
		}
		out = append(out, activity)
	}
	return out, nil
}

// FetchActivity retrieves a single activity by its Strava id.
func (c *Client) FetchActivity(ctx context.Context, accessToken, externalID string) (domain.NormalizedActivity, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, accessToken, c.cfg.BaseURL+activityPath+url.PathEscape(externalID), &raw); err != nil {
		return domain.NormalizedActivity{}, err
	}
	activity, err := normalize(raw)
	if err != nil {
		return domain.NormalizedActivity{}, fmt.Errorf("%w: decode activity: %v", domain.ErrProviderRequest, err)
	}
	return activity, nil
}

// ExchangeToken trades an authorization code for credentials.
func (c *Client) ExchangeToken(ctx context.Context, code string) (domain.TokenGrant, error) {
	form := c.tokenForm("authorization_code")
	form.Set("code", code)
	return c.token(ctx, form)
}

// RefreshToken obtains a new access token using refreshToken.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (domain.TokenGrant, error) {
	form := c.tokenForm("refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.token(ctx, form)
}

func (c *Client) tokenForm(grantType string) url.Values {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", grantType)
	return form
}

func (c *Client) token(ctx context.Context, form url.Values) (domain.TokenGrant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.TokenGrant{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload tokenResponse
	if err := c.do(req, &payload); err != nil {
		return domain.TokenGrant{}, err
	}
	if payload.AccessToken == "" {
		return domain.TokenGrant{}, fmt.Errorf("%w: token response without access_token", domain.ErrProviderRequest)
	}
	return domain.TokenGrant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    time.Unix(payload.ExpiresAt, 0).UTC(),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	// Only 401 means the grant is gone. A 403 is reported as a request failure.
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: status %d", domain.ErrProviderUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderRequest, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrProviderRequest, err)
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}
