package sources

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/width"

	"github.com/johnrirwin/topicbuddy/internal/models"
	"github.com/johnrirwin/topicbuddy/internal/ratelimit"
)

// HotListFetcher scrapes ranking pages using per-config CSS selectors.
type HotListFetcher struct {
	limiter *ratelimit.Limiter
	config  FetcherConfig
	client  *http.Client
}

func NewHotListFetcher(limiter *ratelimit.Limiter, config FetcherConfig) *HotListFetcher {
	return &HotListFetcher{
		limiter: limiter,
		config:  config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

func (f *HotListFetcher) Name() string {
	return "hot-list"
}

func (f *HotListFetcher) Fetch(ctx context.Context, cfg models.SourceConfig) ([]models.CandidateItem, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	hot, ok := params.(models.HotListParams)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot serve %s", models.ErrInvalidSourceParams, f.Name(), cfg.Type)
	}

	if err := f.limiter.WaitContext(ctx, hostOf(hot.URL)); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hot.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, unavailable("failed to fetch hot list %s: %v", hot.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("hot list %s returned status %d", hot.URL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hot list HTML: %w", err)
	}

	return f.scrape(doc, hot), nil
}

func (f *HotListFetcher) scrape(doc *goquery.Document, hot models.HotListParams) []models.CandidateItem {
	sel := hot.Selectors

	origin := strings.TrimSpace(doc.Find("title").First().Text())
	if origin == "" {
		origin = hostOf(hot.URL)
	}

	items := make([]models.CandidateItem, 0)
	doc.Find(sel.Container).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if f.config.MaxItems > 0 && len(items) >= f.config.MaxItems {
			return false
		}

		titleSel := s.Find(sel.Title).First()
		title := strings.Join(strings.Fields(titleSel.Text()), " ")
		if title == "" {
			return true
		}

		var link string
		if sel.Link != "" {
			link, _ = s.Find(sel.Link).First().Attr("href")
		}
		if link == "" {
			link, _ = titleSel.Attr("href")
		}
		if link == "" {
			link, _ = titleSel.Find("a").First().Attr("href")
		}
		link = resolveURL(hot.URL, link)

		var summary string
		if sel.Summary != "" {
			summary = strings.Join(strings.Fields(s.Find(sel.Summary).First().Text()), " ")
		}

		metrics := models.Metrics{}
		if sel.Heat != "" {
			if heat, ok := ParseHeat(s.Find(sel.Heat).First().Text()); ok {
				metrics[models.MetricViews] = heat
			}
		}

		key := link
		if key == "" {
			key = title
		}

		items = append(items, models.CandidateItem{
			OriginalID: "hot-" + generateID(hot.URL, key),
			Title:      title,
			URL:        link,
			Summary:    truncateRunes(summary, summaryMaxRunes),
			Metrics:    metrics,
			Labels:     []string{},
			Origin:     origin,
		})
		return true
	})

	return items
}

var heatPattern = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*(亿|万|[wWkK])?`)

// ParseHeat reads counters such as "1.2万", "3亿", "45,000" or "2.5w".
func ParseHeat(raw string) (int64, bool) {
	m := heatPattern.FindStringSubmatch(width.Fold.String(raw))
	if m == nil {
		return 0, false
	}

	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}

	switch m[2] {
	case "亿":
		n *= 1e8
	case "万", "w", "W":
		n *= 1e4
	case "k", "K":
		n *= 1e3
	}
	return int64(math.Round(n)), true
}
