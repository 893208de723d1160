package linear

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/connectors"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

const defaultEndpoint = "https://api.linear.app/graphql"

// Client — GraphQL-клиент Linear. Id команды и triage-стейта
// резолвятся по ключу команды один раз и кэшируются.
type Client struct {
	apiKey   string
	teamKey  string
	endpoint string
	hc       *connectors.Client
	logger   *zap.Logger

	mu       sync.Mutex
	teamID   string
	triageID string
}

func NewClient(cfg infra.LinearConfig, logger *zap.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		apiKey:   cfg.APIKey,
		teamKey:  cfg.TeamKey,
		endpoint: endpoint,
		hc:       connectors.NewClient("linear"),
		logger:   logger.Named("linear"),
	}
}

type graphQLError struct {
	Message string `json:"message"`
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return fmt.Errorf("linear: marshal query: %w", err)
	}

	h := http.Header{}
	h.Set("Authorization", c.apiKey)
	h.Set("Content-Type", "application/json")

	status, respBody, err := c.hc.Do(ctx, http.MethodPost, c.endpoint, h, body)
	if err != nil {
		return fmt.Errorf("linear: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, respBody); err != nil {
		return fmt.Errorf("linear: %w", err)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("linear: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("linear: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("linear: decode data: %w", err)
		}
	}
	return nil
}

// resolveTeam находит id команды по ключу и id ее triage-стейта.
func (c *Client) resolveTeam(ctx context.Context) (teamID, triageID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.teamID != "" {
		return c.teamID, c.triageID, nil
	}

	var res struct {
		Teams struct {
			Nodes []struct {
				ID     string `json:"id"`
				Key    string `json:"key"`
				States struct {
					Nodes []struct {
						ID   string `json:"id"`
						Type string `json:"type"`
					} `json:"nodes"`
				} `json:"states"`
			} `json:"nodes"`
		} `json:"teams"`
	}
	const q = `query { teams { nodes { id key states { nodes { id type } } } } }`
	if err := c.query(ctx, q, nil, &res); err != nil {
		return "", "", err
	}

	for _, team := range res.Teams.Nodes {
		if !strings.EqualFold(team.Key, c.teamKey) {
			continue
		}
		c.teamID = team.ID
		for _, state := range team.States.Nodes {
			if state.Type == "triage" {
				c.triageID = state.ID
				break
			}
		}
		return c.teamID, c.triageID, nil
	}
	return "", "", fmt.Errorf("linear: team %q not found", c.teamKey)
}

// Issue — созданная или найденная задача.
type Issue struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	State      string `json:"state"`
}

// CreateIssue создает задачу в triage выбранной команды.
func (c *Client) CreateIssue(ctx context.Context, title, description string, labels []string) (*Issue, error) {
	teamID, triageID, err := c.resolveTeam(ctx)
	if err != nil {
		return nil, err
	}

	input := map[string]any{
		"teamId":      teamID,
		"title":       title,
		"description": description,
	}
	if triageID != "" {
		input["stateId"] = triageID
	}
	if len(labels) > 0 {
		// Метки по имени не резолвим, просто дописываем в описание
		input["description"] = description + "\n\nLabels: " + strings.Join(labels, ", ")
	}

	var res struct {
		IssueCreate struct {
			Success bool `json:"success"`
			Issue   struct {
				Identifier string `json:"identifier"`
				Title      string `json:"title"`
				URL        string `json:"url"`
			} `json:"issue"`
		} `json:"issueCreate"`
	}
	const q = `mutation($input: IssueCreateInput!) {
		issueCreate(input: $input) { success issue { identifier title url } }
	}`
	if err := c.query(ctx, q, map[string]any{"input": input}, &res); err != nil {
		return nil, err
	}
	if !res.IssueCreate.Success {
		return nil, fmt.Errorf("linear: issueCreate not successful")
	}
	return &Issue{
		Identifier: res.IssueCreate.Issue.Identifier,
		Title:      res.IssueCreate.Issue.Title,
		URL:        res.IssueCreate.Issue.URL,
	}, nil
}

// QueryIssues ищет задачи команды по подстроке заголовка.
func (c *Client) QueryIssues(ctx context.Context, search string, limit int) ([]Issue, error) {
	teamID, _, err := c.resolveTeam(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	var res struct {
		Issues struct {
			Nodes []struct {
				Identifier string `json:"identifier"`
				Title      string `json:"title"`
				URL        string `json:"url"`
				State      struct {
					Name string `json:"name"`
				} `json:"state"`
			} `json:"nodes"`
		} `json:"issues"`
	}
	const q = `query($filter: IssueFilter, $first: Int) {
		issues(filter: $filter, first: $first) {
			nodes { identifier title url state { name } }
		}
	}`
	filter := map[string]any{"team": map[string]any{"id": map[string]any{"eq": teamID}}}
	if search != "" {
		filter["title"] = map[string]any{"containsIgnoreCase": search}
	}
	if err := c.query(ctx, q, map[string]any{"filter": filter, "first": limit}, &res); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(res.Issues.Nodes))
	for _, n := range res.Issues.Nodes {
		issues = append(issues, Issue{
			Identifier: n.Identifier,
			Title:      n.Title,
			URL:        n.URL,
			State:      n.State.Name,
		})
	}
	return issues, nil
}

// FileIssueFromMessage заводит баг/фичу из слэш-команды. Заголовок —
// первая строка (до 80 символов), репортер уходит в описание.
func (c *Client) FileIssueFromMessage(ctx context.Context, kind, text, reporter string) (*Issue, error) {
	title := text
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > 80 {
		title = title[:77] + "..."
	}
	description := fmt.Sprintf("%s\n\n---\nReported by %s via Slack.", text, reporter)
	return c.CreateIssue(ctx, fmt.Sprintf("[%s] %s", kind, title), description, nil)
}
