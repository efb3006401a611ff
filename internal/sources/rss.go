package sources

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/text/width"

	"github.com/johnrirwin/topicbuddy/internal/models"
	"github.com/johnrirwin/topicbuddy/internal/ratelimit"
)

const (
	summaryMaxRunes   = 500
	defaultFeedOrigin = "RSS Source"
)

// RSSHub renders platform stats into the description as "播放量: 1234".
var (
	metricPatterns = []struct {
		key string
		re  *regexp.Regexp
	}{
		{models.MetricViews, regexp.MustCompile(`播放量\s*:\s*(\d+)`)},
		{models.MetricLikes, regexp.MustCompile(`点赞\s*:\s*(\d+)`)},
		{models.MetricComments, regexp.MustCompile(`评论\s*:\s*(\d+)`)},
		{models.MetricCoins, regexp.MustCompile(`硬币\s*:\s*(\d+)`)},
		{models.MetricStars, regexp.MustCompile(`收藏\s*:\s*(\d+)`)},
	}
	metricFragment = regexp.MustCompile(`(播放量|点赞|评论|硬币|收藏)\s*:\s*\d+`)
)

type RSSFetcher struct {
	parser  *gofeed.Parser
	limiter *ratelimit.Limiter
	config  FetcherConfig
}

func NewRSSFetcher(limiter *ratelimit.Limiter, config FetcherConfig) *RSSFetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = config.UserAgent
	return &RSSFetcher{
		parser:  parser,
		limiter: limiter,
		config:  config,
	}
}

func (f *RSSFetcher) Name() string {
	return "rss"
}

func (f *RSSFetcher) Fetch(ctx context.Context, cfg models.SourceConfig) ([]models.CandidateItem, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	feed, ok := params.(models.FeedParams)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot serve %s", models.ErrInvalidSourceParams, f.Name(), cfg.Type)
	}
	return f.FetchURL(ctx, feed.URL, 0)
}

// FetchURL parses the feed at feedURL. limit bounds the item count on top of
// MaxItems when positive.
func (f *RSSFetcher) FetchURL(ctx context.Context, feedURL string, limit int) ([]models.CandidateItem, error) {
	if err := f.limiter.WaitContext(ctx, hostOf(feedURL)); err != nil {
		return nil, err
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(feedURL, ctxWithTimeout)
	if err != nil {
		return nil, unavailable("failed to parse RSS feed %s: %v", feedURL, err)
	}
	return f.mapFeed(feed, capItems(limit, f.config.MaxItems)), nil
}

func (f *RSSFetcher) mapFeed(feed *gofeed.Feed, limit int) []models.CandidateItem {
	origin := strings.TrimSpace(feed.Title)
	if origin == "" {
		origin = defaultFeedOrigin
	}

	items := make([]models.CandidateItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if limit > 0 && len(items) >= limit {
			break
		}

		originalID := strings.TrimSpace(item.GUID)
		if originalID == "" {
			originalID = strings.TrimSpace(item.Link)
		}
		if originalID == "" {
			continue
		}

		var publishedAt *time.Time
		switch {
		case item.PublishedParsed != nil:
			t := item.PublishedParsed.UTC()
			publishedAt = &t
		case item.UpdatedParsed != nil:
			t := item.UpdatedParsed.UTC()
			publishedAt = &t
		}

		author := ""
		if item.Author != nil {
			author = item.Author.Name
		}

		description := item.Description
		if description == "" {
			description = item.Content
		}

		thumbnail := extractThumbnail(description)
		if thumbnail == "" && item.Image != nil {
			thumbnail = normalizeImageURL(item.Image.URL)
		}

		items = append(items, models.CandidateItem{
			OriginalID:  originalID,
			Title:       strings.TrimSpace(item.Title),
			URL:         item.Link,
			Summary:     cleanDescription(description),
			Thumbnail:   thumbnail,
			Author:      author,
			Metrics:     extractMetrics(description),
			Labels:      []string{},
			PublishedAt: publishedAt,
			Origin:      origin,
		})
	}
	return items
}

// extractMetrics reads engagement counters embedded in description text.
// Full-width colons and digits are folded first.
func extractMetrics(description string) models.Metrics {
	metrics := models.Metrics{}
	if description == "" {
		return metrics
	}

	folded := width.Fold.String(description)
	for _, p := range metricPatterns {
		m := p.re.FindStringSubmatch(folded)
		if m == nil {
			continue
		}
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			metrics[p.key] = n
		}
	}
	return metrics
}

// cleanDescription converts description HTML to plain text, drops metric
// fragments and truncates to summaryMaxRunes.
func cleanDescription(description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return truncateRunes(strings.TrimSpace(description), summaryMaxRunes)
	}
	doc.Find("script, style").Remove()

	var parts []string
	collectText(doc.Selection, &parts)

	text := width.Fold.String(strings.Join(parts, " "))
	text = metricFragment.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	return truncateRunes(text, summaryMaxRunes)
}

func collectText(s *goquery.Selection, parts *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := strings.TrimSpace(c.Text()); t != "" {
				*parts = append(*parts, t)
			}
			return
		}
		collectText(c, parts)
	})
}

func extractThumbnail(description string) string {
	if description == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return ""
	}
	src, ok := doc.Find("img").First().Attr("src")
	if !ok {
		return ""
	}
	return normalizeImageURL(src)
}

// RSSHubFallback reads a platform user's uploads through an RSSHub instance
// when the platform API refuses the request.
type RSSHubFallback struct {
	baseURL string
	rss     *RSSFetcher
}

const DefaultRSSHubBaseURL = "https://rsshub.app"

func NewRSSHubFallback(baseURL string, rss *RSSFetcher) *RSSHubFallback {
	if baseURL == "" {
		baseURL = DefaultRSSHubBaseURL
	}
	return &RSSHubFallback{
		baseURL: strings.TrimRight(baseURL, "/"),
		rss:     rss,
	}
}

func (f *RSSHubFallback) Name() string {
	return "rsshub"
}

// FeedURL returns the RSSHub route for uid's uploads.
func (f *RSSHubFallback) FeedURL(uid int64) string {
	return fmt.Sprintf("%s/bilibili/user/video/%d", f.baseURL, uid)
}

func (f *RSSHubFallback) Fetch(ctx context.Context, cfg models.SourceConfig) ([]models.CandidateItem, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	user, ok := params.(models.PlatformUserParams)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot serve %s", models.ErrInvalidSourceParams, f.Name(), cfg.Type)
	}
	return f.rss.FetchURL(ctx, f.FeedURL(user.UID), user.Limit)
}
