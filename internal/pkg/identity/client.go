// Package identity talks to the hosted identity provider: user lookup by
// email, user metadata reads and writes, and session token verification.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/cache"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/rs/zerolog/log"
)

const maxResponseBody = 1 << 20

// ErrAPI is returned for non-2xx identity provider responses.
var ErrAPI = errors.New("identity provider API error")

// User is the subset of the identity provider user object the service reads.
type User struct {
	ID                    string         `json:"id"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PublicMetadata        map[string]any `json:"public_metadata"`
}

type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// PrimaryEmail returns the primary address, or the first one listed.
func (u *User) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// Client is a thin backend API client for the identity provider.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	cache      *cache.Store
	cacheTTL   time.Duration
}

// NewClient creates an identity client. lookupCache may be nil.
func NewClient(cfg config.IdentityConfig, lookupCache *cache.Store) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      lookupCache,
		cacheTTL:   cfg.LookupCacheTTL,
	}
}

// FindUserIDByEmail resolves a billing email to a user id. Successful lookups
// are cached; misses are not, so a user who signs up later is found.
func (c *Client) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", billing.ErrUserNotFound
	}
	if id, err := c.cache.Get(ctx, email); err == nil && id != "" {
		return id, nil
	} else if err != nil && !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("identity lookup cache read failed")
	}

	q := url.Values{}
	q.Add("email_address", email)
	var users []User
	if err := c.do(ctx, http.MethodGet, "/users?"+q.Encode(), nil, &users); err != nil {
		return "", err
	}
	if len(users) == 0 || users[0].ID == "" {
		return "", billing.ErrUserNotFound
	}

	id := users[0].ID
	if c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, email, id, c.cacheTTL); err != nil {
			log.Warn().Err(err).Msg("identity lookup cache write failed")
		}
	}
	return id, nil
}

// ForgetEmail drops a cached lookup, e.g. after the user was deleted.
func (c *Client) ForgetEmail(ctx context.Context, email string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	if err := c.cache.Delete(ctx, email); err != nil {
		log.Warn().Err(err).Msg("identity lookup cache delete failed")
	}
}

// GetUser fetches a user. Unknown ids return billing.ErrUserNotFound.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdatePublicMetadata merges the given keys into the user's public metadata.
// A nil value removes the key.
func (c *Client) UpdatePublicMetadata(ctx context.Context, userID string, metadata map[string]any) error {
	body := map[string]any{"public_metadata": metadata}
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID)+"/metadata", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.secretKey == "" {
		return fmt.Errorf("%w: secret key not configured", ErrAPI)
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrAPI, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrAPI, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return billing.ErrUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s returned %d", ErrAPI, method, path, resp.StatusCode)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrAPI, err)
	}
	return nil
}
