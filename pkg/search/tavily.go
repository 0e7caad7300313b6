package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi-research/internal/util"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
)

const DefaultTavilyURL = "https://api.tavily.com"

const (
	tavilyMaxTries   = 3
	tavilyRetryDelay = 500 * time.Millisecond
)

// TavilySearcher talks to the Tavily search REST API.
type TavilySearcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type NewTavilySearcherParams struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func NewTavilySearcher(params NewTavilySearcherParams) *TavilySearcher {
	baseURL := strings.TrimRight(params.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultTavilyURL
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TavilySearcher{
		apiKey:  params.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type tavilyRequest struct {
	Query string `json:"query"`
	*common.WebSearchOptions
}

type tavilyResult struct {
	Title         *string  `json:"title"`
	URL           *string  `json:"url"`
	Content       *string  `json:"content"`
	RawContent    *string  `json:"raw_content"`
	Score         *float64 `json:"score"`
	PublishedDate *string  `json:"published_date"`
}

type tavilyResponse struct {
	Query        string            `json:"query"`
	Answer       *string           `json:"answer"`
	ResponseTime float64           `json:"response_time"`
	Images       []json.RawMessage `json:"images"`
	Results      []tavilyResult    `json:"results"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tavily returned status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Search validates the input, queries Tavily and normalizes the answer so
// every string field is present and every slice is non-nil.
func (s *TavilySearcher) Search(ctx context.Context, input common.WebSearchInput) (common.WebSearchOutput, error) {
	if err := common.ValidateWebSearchInput(&input); err != nil {
		return common.WebSearchOutput{}, err
	}

	body, err := json.Marshal(tavilyRequest{Query: input.Query, WebSearchOptions: input.Options})
	if err != nil {
		return common.WebSearchOutput{}, fmt.Errorf("failed to encode search request: %w", err)
	}

	raw, err := util.RetryWithBackoff(ctx, tavilyMaxTries, tavilyRetryDelay, func(ctx context.Context) (tavilyResponse, error) {
		resp, err := s.do(ctx, body)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return tavilyResponse{}, util.Permanent(err)
			}
			logger.Warn("[Web] Tavily search attempt failed", "query", input.Query, "err", err)
		}
		return resp, err
	})
	if err != nil {
		return common.WebSearchOutput{}, fmt.Errorf("web search failed: %w", err)
	}

	out := normalize(raw)
	if out.Query == "" {
		out.Query = input.Query
	}
	logger.Debug("[Web] Tavily search finished", "query", out.Query, "results", len(out.Results))
	return out, nil
}

func (s *TavilySearcher) do(ctx context.Context, body []byte) (tavilyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return tavilyResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return tavilyResponse{}, fmt.Errorf("failed to call tavily: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tavilyResponse{}, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	var raw tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return tavilyResponse{}, fmt.Errorf("failed to decode tavily response: %w", err)
	}
	return raw, nil
}

func normalize(raw tavilyResponse) common.WebSearchOutput {
	out := common.WebSearchOutput{
		Query:        raw.Query,
		Answer:       deref(raw.Answer),
		ResponseTime: raw.ResponseTime,
		Images:       make([]common.WebSearchImage, 0, len(raw.Images)),
		Results:      make([]common.WebSearchResult, 0, len(raw.Results)),
	}
	for _, img := range raw.Images {
		var url string
		if err := json.Unmarshal(img, &url); err == nil {
			out.Images = append(out.Images, common.WebSearchImage{URL: url})
			continue
		}
		var full common.WebSearchImage
		if err := json.Unmarshal(img, &full); err == nil && full.URL != "" {
			out.Images = append(out.Images, full)
		}
	}
	for _, r := range raw.Results {
		score := 0.0
		if r.Score != nil {
			score = *r.Score
		}
		out.Results = append(out.Results, common.WebSearchResult{
			Title:         deref(r.Title),
			URL:           deref(r.URL),
			Content:       deref(r.Content),
			RawContent:    deref(r.RawContent),
			Score:         score,
			PublishedDate: deref(r.PublishedDate),
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
