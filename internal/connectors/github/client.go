package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/connectors"
	"github.com/joe-reitz/oss-moperator/internal/infra"
	"github.com/joe-reitz/oss-moperator/internal/tools"
)

const apiBase = "https://api.github.com"

// Client читает историю коммитов одного репозитория (owner/name).
type Client struct {
	token  string
	repo   string
	hc     *connectors.Client
	logger *zap.Logger
}

func NewClient(cfg infra.GitHubConfig, logger *zap.Logger) *Client {
	return &Client{
		token:  cfg.Token,
		repo:   cfg.Repo,
		hc:     connectors.NewClient("github"),
		logger: logger.Named("github"),
	}
}

// Commit — сжатое представление коммита.
type Commit struct {
	SHA     string `json:"sha"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

// RecentCommits возвращает последние коммиты дефолтной ветки.
func (c *Client) RecentCommits(ctx context.Context, limit int) ([]Commit, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	h.Set("Accept", "application/vnd.github+json")

	endpoint := fmt.Sprintf("%s/repos/%s/commits?%s", apiBase, c.repo,
		url.Values{"per_page": {fmt.Sprint(limit)}}.Encode())
	status, body, err := c.hc.Do(ctx, http.MethodGet, endpoint, h, nil)
	if err != nil {
		return nil, fmt.Errorf("github: list commits: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, body); err != nil {
		return nil, fmt.Errorf("github: list commits: %w", err)
	}

	var raw []struct {
		SHA    string `json:"sha"`
		URL    string `json:"html_url"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Name string `json:"name"`
				Date string `json:"date"`
			} `json:"author"`
		} `json:"commit"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("github: decode commits: %w", err)
	}

	commits := make([]Commit, 0, len(raw))
	for _, r := range raw {
		commits = append(commits, Commit{
			SHA:     r.SHA,
			Author:  r.Commit.Author.Name,
			Date:    r.Commit.Author.Date,
			Message: r.Commit.Message,
			URL:     r.URL,
		})
	}
	return commits, nil
}

func (c *Client) Tools() []tools.Tool {
	return []tools.Tool{{
		Name:        "getRepoCommits",
		Description: fmt.Sprintf("List recent commits from the %s repository.", c.repo),
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "number", "description": "Max commits, default 10"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			commits, err := c.RecentCommits(ctx, tools.IntArg(args, "limit", 10))
			if err != nil {
				return tools.Fail(err)
			}
			out := make([]map[string]any, 0, len(commits))
			for _, commit := range commits {
				out = append(out, map[string]any{
					"sha":     commit.SHA,
					"author":  commit.Author,
					"date":    commit.Date,
					"message": commit.Message,
					"url":     commit.URL,
				})
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("%d commit(s) from %s.", len(commits), c.repo),
				Data:    map[string]any{"commits": out},
			}
		},
	}}
}
