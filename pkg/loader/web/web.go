package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/loader"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 10 << 20
	userAgent      = "kiwi-research/1.0 (+https://github.com/OFFIS-RIT/kiwi-research)"
)

// Scraper fetches web pages and extracts their readable text. It never
// returns an error: failures are reported in the result metadata.
type Scraper struct {
	client   *http.Client
	fallback map[string]loader.TextExtractor

	group singleflight.Group
}

type NewScraperParams struct {
	Timeout time.Duration
	// Fallbacks maps a media type such as "application/pdf" to the
	// extractor used for non-HTML responses of that type.
	Fallbacks map[string]loader.TextExtractor
}

func NewScraper(params NewScraperParams) *Scraper {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	fallback := params.Fallbacks
	if fallback == nil {
		fallback = map[string]loader.TextExtractor{}
	}
	return &Scraper{
		client:   &http.Client{Timeout: timeout},
		fallback: fallback,
	}
}

// Scrape fetches rawURL and extracts its main text. Concurrent calls for
// the same URL share one fetch. Nothing is kept afterwards, so a later call
// sees the current page.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) common.ScrapeResult {
	result, _, _ := s.group.Do(rawURL, func() (any, error) {
		res, err := s.fetch(ctx, rawURL)
		if err != nil {
			logger.Warn("[Web] Failed to scrape page", "url", rawURL, "err", err)
			return common.ScrapeResult{
				Metadata: common.ScrapeMetadata{URL: rawURL, Error: err.Error()},
			}, nil
		}
		return res, nil
	})

	return result.(common.ScrapeResult)
}

func (s *Scraper) fetch(ctx context.Context, rawURL string) (common.ScrapeResult, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return common.ScrapeResult{}, fmt.Errorf("invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return common.ScrapeResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return common.ScrapeResult{}, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return common.ScrapeResult{}, fmt.Errorf("failed to fetch web page: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return common.ScrapeResult{}, fmt.Errorf("failed to read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "" {
		mediaType = http.DetectContentType(body)
		mediaType, _, _ = mime.ParseMediaType(mediaType)
	}

	meta := common.ScrapeMetadata{URL: rawURL, ContentType: mediaType}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		meta.Title = pageTitle(body)
		article, err := readability.FromReader(bytes.NewReader(body), pageURL)
		if err != nil {
			return common.ScrapeResult{}, fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return common.ScrapeResult{}, fmt.Errorf("failed to render article text: %w", err)
		}
		return common.ScrapeResult{Text: loader.CleanText(builder.String()), Metadata: meta}, nil
	case s.fallback[mediaType] != nil:
		text, err := s.fallback[mediaType].ExtractText(ctx, body)
		if err != nil {
			return common.ScrapeResult{}, err
		}
		return common.ScrapeResult{Text: text, Metadata: meta}, nil
	case strings.HasPrefix(mediaType, "text/"):
		text, _ := loader.PlainTextExtractor{}.ExtractText(ctx, body)
		return common.ScrapeResult{Text: text, Metadata: meta}, nil
	default:
		return common.ScrapeResult{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

// pageTitle returns the text of the first <title> element.
func pageTitle(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) != "title" {
				continue
			}
			if z.Next() == html.TextToken {
				return strings.TrimSpace(string(z.Text()))
			}
			return ""
		}
	}
}
