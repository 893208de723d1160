package marketo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/connectors"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

// Client — read-only клиент Marketo REST. OAuth client-credentials токен
// кэшируется до истечения с минутным запасом.
type Client struct {
	cfg    infra.MarketoConfig
	hc     *connectors.Client
	logger *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewClient(cfg infra.MarketoConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		hc:     connectors.NewClient("marketo"),
		logger: logger.Named("marketo"),
	}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expiresAt) > time.Minute {
		return c.token, nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("client_secret", c.cfg.ClientSecret)

	status, body, err := c.hc.Do(ctx, http.MethodGet,
		c.cfg.BaseURL+"/identity/oauth/token?"+q.Encode(), nil, nil)
	if err != nil {
		return "", fmt.Errorf("marketo: token: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, body); err != nil {
		return "", fmt.Errorf("marketo: token: %w", err)
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.AccessToken == "" {
		return "", fmt.Errorf("marketo: bad token response")
	}

	c.token = res.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	return c.token, nil
}

// apiEnvelope — общий конверт ответов REST API.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)

	status, body, err := c.hc.Do(ctx, http.MethodGet, c.cfg.BaseURL+path, h, nil)
	if err != nil {
		return fmt.Errorf("marketo: GET %s: %w", path, err)
	}
	if err := connectors.ErrorFromStatus(status, body); err != nil {
		return fmt.Errorf("marketo: GET %s: %w", path, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("marketo: decode response: %w", err)
	}
	if !envelope.Success {
		msg := "request not successful"
		if len(envelope.Errors) > 0 {
			msg = envelope.Errors[0].Message
		}
		return fmt.Errorf("marketo: %s", msg)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("marketo: decode result: %w", err)
		}
	}
	return nil
}

// Lead — лид Marketo.
type Lead struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company"`
}

// FindLeadsByEmail ищет лидов по точному email.
func (c *Client) FindLeadsByEmail(ctx context.Context, email string) ([]Lead, error) {
	q := url.Values{}
	q.Set("filterType", "email")
	q.Set("filterValues", email)
	q.Set("fields", "id,email,firstName,lastName,company")

	var leads []Lead
	if err := c.get(ctx, "/rest/v1/leads.json?"+q.Encode(), &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// StaticList — статический список.
type StaticList struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// StaticLists возвращает статические списки инстанса.
func (c *Client) StaticLists(ctx context.Context) ([]StaticList, error) {
	var lists []StaticList
	if err := c.get(ctx, "/rest/v1/lists.json", &lists); err != nil {
		return nil, err
	}
	return lists, nil
}
