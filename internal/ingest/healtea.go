package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/temasamo/tea-diagnosis/internal/models"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://www.reset-tea.com"
	categoryPath   = "/category/health"
	userAgent      = "Mozilla/5.0 (compatible; TeaDiagnosisBot/1.0)"
	sourceTag      = "healtea"
)

var dateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Fetcher pulls tea articles from the HealTea site and turns them into
// content-store documents keyed by their article path.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewFetcher(baseURL string, logger *zap.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Fetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// FetchArticles scrapes the health category page and then each linked
// article. A failure on one article is logged and skipped; only a failure
// to load the category page itself is an error.
func (f *Fetcher) FetchArticles(ctx context.Context) ([]*models.Article, error) {
	doc, err := f.get(ctx, f.baseURL+categoryPath)
	if err != nil {
		return nil, fmt.Errorf("fetch category page: %w", err)
	}

	var articles []*models.Article
	seen := make(map[string]bool)

	doc.Find("a[href*='/health/']").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		path := normalizePath(href)
		if path == "" || seen[path] {
			return
		}
		seen[path] = true

		article, err := f.fetchArticle(ctx, path)
		if err != nil {
			f.logger.Warn("Failed to fetch article", zap.String("path", path), zap.Error(err))
			return
		}
		if article != nil {
			articles = append(articles, article)
		}
	})

	f.logger.Info("Fetched articles", zap.Int("count", len(articles)))
	return articles, nil
}

func (f *Fetcher) fetchArticle(ctx context.Context, path string) (*models.Article, error) {
	doc, err := f.get(ctx, f.baseURL+path)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h2").First().Text())
	}

	body := strings.TrimSpace(doc.Find("article").First().Text())
	body = strings.Join(strings.Fields(body), " ")

	if title == "" || body == "" {
		// Pages without a recognisable article body are not worth storing.
		return nil, nil
	}

	var tags []string
	doc.Find("span[class*='tag']").Each(func(_ int, sel *goquery.Selection) {
		if tag := strings.TrimSpace(sel.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})

	publishDate := dateRe.FindString(doc.Text())
	if publishDate == "" {
		publishDate = time.Now().Format("2006-01-02")
	}

	return &models.Article{
		SourcePath:  path,
		Title:       title,
		Content:     body,
		Category:    "health",
		Tags:        tags,
		PublishDate: publishDate,
		SourceTag:   sourceTag,
	}, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ja,en;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

// normalizePath keeps only same-site article paths.
func normalizePath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.Host != "" && !strings.Contains(u.Host, "reset-tea.com") {
		return ""
	}
	if !strings.Contains(u.Path, "/health/") {
		return ""
	}
	return u.Path
}
