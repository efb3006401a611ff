package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownSourceType   = errors.New("unknown source type")
	ErrInvalidSourceParams = errors.New("invalid source params")
)

// SourceType tags the kind of upstream a SourceConfig points at.
type SourceType string

const (
	SourceTypeBilibiliUser SourceType = "bilibili_user"
	SourceTypeRSSFeed      SourceType = "rss_feed"
	SourceTypeHotList      SourceType = "hot_list"
)

// DisplayName is the human-readable source label attached to snapshot items.
func (t SourceType) DisplayName() string {
	switch t {
	case SourceTypeBilibiliUser:
		return "Bilibili"
	case SourceTypeRSSFeed:
		return "RSS"
	case SourceTypeHotList:
		return "Hot List"
	default:
		return string(t)
	}
}

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeBilibiliUser, SourceTypeRSSFeed, SourceTypeHotList:
		return true
	}
	return false
}

// SourceConfig is one configured upstream polled on behalf of a persona.
type SourceConfig struct {
	ID             int64                  `json:"id" yaml:"id"`
	PersonaID      int64                  `json:"persona_id" yaml:"-"`
	Type           SourceType             `json:"type" yaml:"type"`
	Name           string                 `json:"name" yaml:"name"`
	ConfigData     map[string]interface{} `json:"config_data" yaml:"config"`
	Enabled        bool                   `json:"enabled" yaml:"enabled"`
	ViewsThreshold int64                  `json:"views_threshold" yaml:"views_threshold"`
}

// SourceParams is the typed form of SourceConfig.ConfigData. Exactly one
// variant exists per SourceType.
type SourceParams interface {
	SourceType() SourceType
}

// PlatformUserParams identifies a creator account on the video platform.
type PlatformUserParams struct {
	UID   int64
	Limit int
}

func (PlatformUserParams) SourceType() SourceType { return SourceTypeBilibiliUser }

// FeedParams points at an RSS/Atom document.
type FeedParams struct {
	URL string
}

func (FeedParams) SourceType() SourceType { return SourceTypeRSSFeed }

// HotListSelectors are the CSS selectors used to scrape a hot-list page.
type HotListSelectors struct {
	Container string
	Title     string
	Link      string
	Summary   string
	Heat      string
}

// HotListParams points at an HTML ranking page.
type HotListParams struct {
	URL       string
	Selectors HotListSelectors
}

func (HotListParams) SourceType() SourceType { return SourceTypeHotList }

// Params decodes ConfigData into the variant matching Type.
func (c SourceConfig) Params() (SourceParams, error) {
	switch c.Type {
	case SourceTypeBilibiliUser:
		uid, ok := intParam(c.ConfigData, "uid")
		if !ok || uid <= 0 {
			return nil, fmt.Errorf("%w: %s config %d needs a numeric uid", ErrInvalidSourceParams, c.Type, c.ID)
		}
		limit, _ := intParam(c.ConfigData, "limit")
		return PlatformUserParams{UID: uid, Limit: int(limit)}, nil

	case SourceTypeRSSFeed:
		url := stringParam(c.ConfigData, "url")
		if url == "" {
			return nil, fmt.Errorf("%w: %s config %d needs a url", ErrInvalidSourceParams, c.Type, c.ID)
		}
		return FeedParams{URL: url}, nil

	case SourceTypeHotList:
		url := stringParam(c.ConfigData, "url")
		if url == "" {
			return nil, fmt.Errorf("%w: %s config %d needs a url", ErrInvalidSourceParams, c.Type, c.ID)
		}
		sel := HotListSelectors{
			Container: stringParam(c.ConfigData, "container"),
			Title:     stringParam(c.ConfigData, "title"),
			Link:      stringParam(c.ConfigData, "link"),
			Summary:   stringParam(c.ConfigData, "summary"),
			Heat:      stringParam(c.ConfigData, "heat"),
		}
		if sel.Container == "" || sel.Title == "" {
			return nil, fmt.Errorf("%w: %s config %d needs container and title selectors", ErrInvalidSourceParams, c.Type, c.ID)
		}
		return HotListParams{URL: url, Selectors: sel}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceType, c.Type)
	}
}

func stringParam(data map[string]interface{}, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

// intParam accepts JSON numbers, YAML ints and numeric strings.
func intParam(data map[string]interface{}, key string) (int64, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
