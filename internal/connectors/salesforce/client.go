package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/connectors"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

const apiVersion = "v59.0"

// Client — REST-клиент Salesforce поверх OAuth JWT-bearer flow.
// Токен кэшируется и обновляется лениво за 5 минут до истечения.
type Client struct {
	cfg    infra.SalesforceConfig
	hc     *connectors.Client
	logger *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewClient(cfg infra.SalesforceConfig, logger *zap.Logger) *Client {
	if cfg.LoginURL == "" {
		cfg.LoginURL = "https://login.salesforce.com"
	}
	return &Client{
		cfg:    cfg,
		hc:     connectors.NewClient("salesforce"),
		logger: logger.Named("salesforce"),
	}
}

// accessToken возвращает валидный bearer-токен, при необходимости
// выполняя JWT-bearer обмен (RS256, assertion на 3 минуты).
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expiresAt) > 5*time.Minute {
		return c.token, nil
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(c.cfg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("salesforce: parse private key: %w", err)
	}

	now := time.Now()
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": c.cfg.ClientID,
		"sub": c.cfg.Username,
		"aud": c.cfg.LoginURL,
		"exp": now.Add(3 * time.Minute).Unix(),
	})
	signed, err := assertion.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("salesforce: sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", signed)

	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := c.hc.Do(ctx, http.MethodPost,
		c.cfg.LoginURL+"/services/oauth2/token", h, []byte(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("salesforce: token exchange: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, body); err != nil {
		return "", fmt.Errorf("salesforce: token exchange: %w", err)
	}

	var res struct {
		AccessToken string `json:"access_token"`
		InstanceURL string `json:"instance_url"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("salesforce: decode token response: %w", err)
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("salesforce: empty access token")
	}

	c.token = res.AccessToken
	// Время жизни в ответе не гарантируется, берем консервативные 30 минут
	c.expiresAt = now.Add(30 * time.Minute)
	c.logger.Info("salesforce token refreshed")
	return c.token, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body []byte
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("salesforce: marshal request: %w", err)
		}
		h.Set("Content-Type", "application/json")
	}

	status, respBody, err := c.hc.Do(ctx, method, c.cfg.InstanceURL+path, h, body)
	if err != nil {
		return nil, fmt.Errorf("salesforce: %s %s: %w", method, path, err)
	}
	if err := connectors.ErrorFromStatus(status, respBody); err != nil {
		return nil, fmt.Errorf("salesforce: %s %s: %w", method, path, err)
	}
	return respBody, nil
}

// QueryResult — ответ SOQL-запроса.
type QueryResult struct {
	TotalSize int              `json:"totalSize"`
	Done      bool             `json:"done"`
	Records   []map[string]any `json:"records"`
}

// Query исполняет SOQL-запрос.
func (c *Client) Query(ctx context.Context, soql string) (*QueryResult, error) {
	body, err := c.do(ctx, http.MethodGet,
		"/services/data/"+apiVersion+"/query?q="+url.QueryEscape(soql), nil)
	if err != nil {
		return nil, err
	}
	var res QueryResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("salesforce: decode query result: %w", err)
	}
	// Метаданные attributes в тулах только мешают
	for _, rec := range res.Records {
		delete(rec, "attributes")
	}
	return &res, nil
}

// FieldDescribe — поле из describe sObject'а.
type FieldDescribe struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	Updateable bool   `json:"updateable"`
}

// Describe возвращает поля sObject'а.
func (c *Client) Describe(ctx context.Context, objectType string) ([]FieldDescribe, error) {
	body, err := c.do(ctx, http.MethodGet,
		"/services/data/"+apiVersion+"/sobjects/"+url.PathEscape(objectType)+"/describe", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Fields []FieldDescribe `json:"fields"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("salesforce: decode describe: %w", err)
	}
	return res.Fields, nil
}

// DescribeGlobal возвращает имена доступных sObject-типов.
func (c *Client) DescribeGlobal(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "/services/data/"+apiVersion+"/sobjects", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		SObjects []struct {
			Name       string `json:"name"`
			Queryable  bool   `json:"queryable"`
			Updateable bool   `json:"updateable"`
		} `json:"sobjects"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("salesforce: decode describeGlobal: %w", err)
	}
	names := make([]string, 0, len(res.SObjects))
	for _, o := range res.SObjects {
		if o.Queryable {
			names = append(names, o.Name)
		}
	}
	return names, nil
}

// Create создает запись и возвращает ее id.
func (c *Client) Create(ctx context.Context, objectType string, fields map[string]any) (string, error) {
	body, err := c.do(ctx, http.MethodPost,
		"/services/data/"+apiVersion+"/sobjects/"+url.PathEscape(objectType), fields)
	if err != nil {
		return "", err
	}
	var res struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("salesforce: decode create response: %w", err)
	}
	if !res.Success {
		return "", fmt.Errorf("salesforce: create %s not successful", objectType)
	}
	return res.ID, nil
}

// Update патчит поля записи. 204 No Content = успех.
func (c *Client) Update(ctx context.Context, objectType, id string, fields map[string]any) error {
	_, err := c.do(ctx, http.MethodPatch,
		"/services/data/"+apiVersion+"/sobjects/"+url.PathEscape(objectType)+"/"+url.PathEscape(id), fields)
	return err
}

// Delete удаляет запись.
func (c *Client) Delete(ctx context.Context, objectType, id string) error {
	_, err := c.do(ctx, http.MethodDelete,
		"/services/data/"+apiVersion+"/sobjects/"+url.PathEscape(objectType)+"/"+url.PathEscape(id), nil)
	return err
}

// BulkRecord — одна запись в массовом апдейте (обязан нести Id).
type BulkRecord map[string]any

// BulkError — ошибка по конкретной записи из composite-ответа.
type BulkError struct {
	ID      string
	Message string
}

// BulkUpdate обновляет записи пачками по 200 через composite sObjects API
// (allOrNone=false): частичный успех допустим, ошибки собираются по записям.
func (c *Client) BulkUpdate(ctx context.Context, objectType string, records []BulkRecord) (updated int, failures []BulkError, err error) {
	const chunkSize = 200

	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}

		chunk := make([]map[string]any, 0, end-start)
		for _, rec := range records[start:end] {
			item := map[string]any{
				"attributes": map[string]any{"type": objectType},
			}
			for k, v := range rec {
				item[k] = v
			}
			chunk = append(chunk, item)
		}

		body, err := c.do(ctx, http.MethodPatch,
			"/services/data/"+apiVersion+"/composite/sobjects",
			map[string]any{"allOrNone": false, "records": chunk})
		if err != nil {
			return updated, failures, err
		}

		var results []struct {
			ID      string `json:"id"`
			Success bool   `json:"success"`
			Errors  []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		if err := json.Unmarshal(body, &results); err != nil {
			return updated, failures, fmt.Errorf("salesforce: decode composite response: %w", err)
		}

		for i, r := range results {
			if r.Success {
				updated++
				continue
			}
			msg := "unknown error"
			if len(r.Errors) > 0 {
				msg = r.Errors[0].Message
			}
			id, _ := records[start+i]["Id"].(string)
			failures = append(failures, BulkError{ID: id, Message: msg})
		}
	}
	return updated, failures, nil
}

// AddToCampaign создает CampaignMember'ы для контактов. Дубликаты
// (контакт уже в кампании) не считаются ошибкой.
func (c *Client) AddToCampaign(ctx context.Context, campaignID string, contactIDs []string) (added, skipped int, failures []BulkError, err error) {
	records := make([]BulkRecord, 0, len(contactIDs))
	for _, id := range contactIDs {
		records = append(records, BulkRecord{
			"CampaignId": campaignID,
			"ContactId":  id,
		})
	}

	const chunkSize = 200
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}

		chunk := make([]map[string]any, 0, end-start)
		for _, rec := range records[start:end] {
			item := map[string]any{
				"attributes": map[string]any{"type": "CampaignMember"},
			}
			for k, v := range rec {
				item[k] = v
			}
			chunk = append(chunk, item)
		}

		body, err := c.do(ctx, http.MethodPost,
			"/services/data/"+apiVersion+"/composite/sobjects",
			map[string]any{"allOrNone": false, "records": chunk})
		if err != nil {
			return added, skipped, failures, err
		}

		var results []struct {
			Success bool `json:"success"`
			Errors  []struct {
				StatusCode string `json:"statusCode"`
				Message    string `json:"message"`
			} `json:"errors"`
		}
		if err := json.Unmarshal(body, &results); err != nil {
			return added, skipped, failures, fmt.Errorf("salesforce: decode composite response: %w", err)
		}

		for i, r := range results {
			switch {
			case r.Success:
				added++
			case len(r.Errors) > 0 && strings.Contains(r.Errors[0].StatusCode, "DUPLICATE"):
				skipped++
			default:
				msg := "unknown error"
				if len(r.Errors) > 0 {
					msg = r.Errors[0].Message
				}
				failures = append(failures, BulkError{ID: contactIDs[start+i], Message: msg})
			}
		}
	}
	return added, skipped, failures, nil
}
