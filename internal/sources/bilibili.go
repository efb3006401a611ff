package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/models"
	"github.com/johnrirwin/topicbuddy/internal/ratelimit"
)

const (
	DefaultBilibiliBaseURL = "https://api.bilibili.com"
	bilibiliVideoURL       = "https://www.bilibili.com/video/"
	bilibiliDefaultLimit   = 10

	// PlatformBilibili marks items that can be enriched by BilibiliClient.
	PlatformBilibili = "bilibili"
)

// APIError is a non-zero "code" in a Bilibili JSON envelope. -412 means the
// caller was blocked for requesting too fast.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili api code %d: %s", e.Code, e.Message)
}

// BilibiliClient talks to the public web API. Every request waits on the
// shared per-host limiter first.
type BilibiliClient struct {
	baseURL string
	limiter *ratelimit.Limiter
	config  FetcherConfig
	client  *http.Client
}

func NewBilibiliClient(baseURL string, limiter *ratelimit.Limiter, config FetcherConfig) *BilibiliClient {
	if baseURL == "" {
		baseURL = DefaultBilibiliBaseURL
	}
	return &BilibiliClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
		config:  config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// flexInt accepts numbers, numeric strings and placeholders such as "--".
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = flexInt(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = flexInt(f)
	return nil
}

type arcSearchData struct {
	List struct {
		VList []bilibiliVideo `json:"vlist"`
	} `json:"list"`
}

type bilibiliVideo struct {
	BVID        string  `json:"bvid"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Pic         string  `json:"pic"`
	Play        flexInt `json:"play"`
	Comment     flexInt `json:"comment"`
	Created     flexInt `json:"created"`
	Author      string  `json:"author"`
}

type viewData struct {
	Title string `json:"title"`
	Desc  string `json:"desc"`
	Stat  struct {
		View     flexInt `json:"view"`
		Like     flexInt `json:"like"`
		Coin     flexInt `json:"coin"`
		Favorite flexInt `json:"favorite"`
		Reply    flexInt `json:"reply"`
	} `json:"stat"`
}

type tagData struct {
	TagName string `json:"tag_name"`
}

func (c *BilibiliClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if err := c.limiter.WaitContext(ctx, hostOf(endpoint)); err != nil {
		return err
	}

	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Referer", "https://www.bilibili.com/")

	resp, err := c.client.Do(req)
	if err != nil {
		return unavailable("bilibili %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unavailable("bilibili %s returned status %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode bilibili response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, &APIError{Code: env.Code, Message: env.Message})
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode bilibili data: %w", err)
	}
	return nil
}

// UserVideos lists the newest uploads of uid.
func (c *BilibiliClient) UserVideos(ctx context.Context, uid int64, limit int) ([]models.CandidateItem, error) {
	if limit <= 0 {
		limit = bilibiliDefaultLimit
	}
	limit = capItems(limit, c.config.MaxItems)

	query := url.Values{}
	query.Set("mid", strconv.FormatInt(uid, 10))
	query.Set("ps", strconv.Itoa(limit))
	query.Set("pn", "1")
	query.Set("order", "pubdate")

	var data arcSearchData
	if err := c.get(ctx, "/x/space/arc/search", query, &data); err != nil {
		return nil, fmt.Errorf("user %d videos: %w", uid, err)
	}

	items := make([]models.CandidateItem, 0, len(data.List.VList))
	for i, v := range data.List.VList {
		if i >= limit {
			break
		}
		if v.BVID == "" {
			continue
		}

		var publishedAt *time.Time
		if v.Created > 0 {
			t := time.Unix(int64(v.Created), 0).UTC()
			publishedAt = &t
		}

		items = append(items, models.CandidateItem{
			OriginalID: v.BVID,
			Title:      v.Title,
			URL:        bilibiliVideoURL + v.BVID,
			Summary:    v.Description,
			Thumbnail:  normalizeImageURL(v.Pic),
			Author:     v.Author,
			Metrics: models.Metrics{
				models.MetricViews:    int64(v.Play),
				models.MetricComments: int64(v.Comment),
				models.MetricLikes:    0,
			},
			Labels:      []string{},
			PublishedAt: publishedAt,
			Platform:    PlatformBilibili,
			Origin:      "Bilibili",
		})
	}
	return items, nil
}

// FetchDetail returns current stats and tags for one video.
func (c *BilibiliClient) FetchDetail(ctx context.Context, bvid string) (*models.ItemDetail, error) {
	query := url.Values{}
	query.Set("bvid", bvid)

	var view viewData
	if err := c.get(ctx, "/x/web-interface/view", query, &view); err != nil {
		return nil, fmt.Errorf("video %s info: %w", bvid, err)
	}

	var tags []tagData
	if err := c.get(ctx, "/x/tag/archive/tags", query, &tags); err != nil {
		return nil, fmt.Errorf("video %s tags: %w", bvid, err)
	}

	names := make([]string, 0, len(tags))
	for _, t := range tags {
		if name := strings.TrimSpace(t.TagName); name != "" {
			names = append(names, name)
		}
	}

	return &models.ItemDetail{
		Title:   view.Title,
		Summary: view.Desc,
		Metrics: models.Metrics{
			models.MetricViews:    int64(view.Stat.View),
			models.MetricLikes:    int64(view.Stat.Like),
			models.MetricCoins:    int64(view.Stat.Coin),
			models.MetricStars:    int64(view.Stat.Favorite),
			models.MetricComments: int64(view.Stat.Reply),
		},
		Tags: names,
	}, nil
}

// BilibiliUserFetcher is the primary adapter for bilibili_user configs.
type BilibiliUserFetcher struct {
	client *BilibiliClient
}

func NewBilibiliUserFetcher(client *BilibiliClient) *BilibiliUserFetcher {
	return &BilibiliUserFetcher{client: client}
}

func (f *BilibiliUserFetcher) Name() string {
	return "bilibili-api"
}

func (f *BilibiliUserFetcher) Fetch(ctx context.Context, cfg models.SourceConfig) ([]models.CandidateItem, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	user, ok := params.(models.PlatformUserParams)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot serve %s", models.ErrInvalidSourceParams, f.Name(), cfg.Type)
	}
	return f.client.UserVideos(ctx, user.UID, user.Limit)
}
