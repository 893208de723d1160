package hubspot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/connectors"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

const apiBase = "https://api.hubapi.com"

var contactProperties = []string{
	"email", "firstname", "lastname", "company", "jobtitle",
	"phone", "lifecyclestage", "hs_lead_status",
}

// Client — read-only клиент HubSpot CRM (private app token).
type Client struct {
	token  string
	hc     *connectors.Client
	logger *zap.Logger
}

func NewClient(cfg infra.HubSpotConfig, logger *zap.Logger) *Client {
	return &Client{
		token:  cfg.AccessToken,
		hc:     connectors.NewClient("hubspot"),
		logger: logger.Named("hubspot"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	var err error
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("hubspot: marshal request: %w", err)
		}
		h.Set("Content-Type", "application/json")
	}

	status, respBody, err := c.hc.Do(ctx, method, apiBase+path, h, body)
	if err != nil {
		return nil, fmt.Errorf("hubspot: %s %s: %w", method, path, err)
	}
	if err := connectors.ErrorFromStatus(status, respBody); err != nil {
		return nil, fmt.Errorf("hubspot: %s %s: %w", method, path, err)
	}
	return respBody, nil
}

// Contact — контакт CRM с плоскими свойствами.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchResponse struct {
	Total   int       `json:"total"`
	Results []Contact `json:"results"`
}

// SearchContacts ищет контакты по подстроке (email, имя, компания).
func (c *Client) SearchContacts(ctx context.Context, query string, limit int) (int, []Contact, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	body, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", map[string]any{
		"query":      query,
		"limit":      limit,
		"properties": contactProperties,
	})
	if err != nil {
		return 0, nil, err
	}
	var res searchResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, nil, fmt.Errorf("hubspot: decode search response: %w", err)
	}
	return res.Total, res.Results, nil
}

// GetContact возвращает контакт по id.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	q := url.Values{}
	for _, p := range contactProperties {
		q.Add("properties", p)
	}
	body, err := c.do(ctx, http.MethodGet,
		"/crm/v3/objects/contacts/"+url.PathEscape(id)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var contact Contact
	if err := json.Unmarshal(body, &contact); err != nil {
		return nil, fmt.Errorf("hubspot: decode contact: %w", err)
	}
	return &contact, nil
}
