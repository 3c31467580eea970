package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/stagehand-ai/stagehand/internal/tools"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

const (
	maxResponseBytes = 512 * 1024
	maxSearchResults = 8
	searchEndpoint   = "https://html.duckduckgo.com/html/"
)

// WebTools returns the HTTP and web-scraping tool family. A nil client
// uses a default with a 15 s timeout.
func WebTools(client *http.Client) []tools.Tool {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return []tools.Tool{
		tools.New(tools.Spec{
			Name:        "http_request",
			Description: "Perform an HTTP request against a REST endpoint. Returns status code and body.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]},
					"url": {"type": "string"},
					"headers": {"type": "object"},
					"body": {"type": "string"}
				},
				"required": ["url"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleDev),
			SafeForProduction: false,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			target, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			method := strings.ToUpper(optStringArg(args, "method", http.MethodGet))

			var body io.Reader
			if b, ok := args["body"].(string); ok && b != "" {
				body = strings.NewReader(b)
			}
			req, err := http.NewRequestWithContext(ctx, method, target, body)
			if err != nil {
				return nil, err
			}
			for k, v := range mapArg(args, "headers") {
				if s, ok := v.(string); ok {
					req.Header.Set(k, s)
				}
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"status":       resp.StatusCode,
				"content_type": resp.Header.Get("Content-Type"),
				"body":         string(data),
			}, nil
		}),

		tools.New(tools.Spec{
			Name:        "web_fetch_json",
			Description: "Fetch a URL and decode the response as JSON.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"url": {"type": "string"}},
				"required": ["url"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleReadonly),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			target, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= http.StatusBadRequest {
				return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
			}
			var decoded any
			if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
				return nil, fmt.Errorf("decode JSON from %s: %w", target, err)
			}
			return decoded, nil
		}),

		tools.New(tools.Spec{
			Name:        "web_fetch_page",
			Description: "Fetch a web page and convert its HTML to markdown.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"url": {"type": "string"}},
				"required": ["url"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleReadonly),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			target, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= http.StatusBadRequest {
				return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
			}
			html, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return nil, err
			}
			markdown, err := md.NewConverter("", true, nil).ConvertString(string(html))
			if err != nil {
				return nil, fmt.Errorf("convert page: %w", err)
			}
			return map[string]any{"url": target, "markdown": markdown}, nil
		}),

		tools.New(tools.Spec{
			Name:        "web_search",
			Description: "Search the web and return result titles, links, and snippets. Best effort.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"query": {"type": "string"}},
				"required": ["query"]
			}`),
			RequiredRoles:     tools.RolesAtLeast(models.RoleReadonly),
			SafeForProduction: true,
		}, func(ctx context.Context, args map[string]any) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			return webSearch(ctx, client, query)
		}),
	}
}

// webSearch scrapes a third-party results page. The markup is not a
// stable contract; missing fields are skipped rather than erroring.
func webSearch(ctx context.Context, client *http.Client, query string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		searchEndpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; stagehand/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	var results []map[string]string
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find(".result__a")
		href, _ := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		if title == "" || href == "" {
			return true
		}
		results = append(results, map[string]string{
			"title":   title,
			"url":     href,
			"snippet": strings.TrimSpace(s.Find(".result__snippet").Text()),
		})
		return len(results) < maxSearchResults
	})

	return map[string]any{"query": query, "results": results}, nil
}
