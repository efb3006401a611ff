package sources

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

// ErrSourceUnavailable wraps every upstream failure reported by a fetcher.
var ErrSourceUnavailable = errors.New("source unavailable")

// Fetcher retrieves raw candidates for one source config. Fetchers only map
// fields; thresholds and enrichment happen downstream.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, cfg models.SourceConfig) ([]models.CandidateItem, error)
}

type FetcherConfig struct {
	Timeout   time.Duration
	MaxItems  int
	UserAgent string
}

func DefaultConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:   30 * time.Second,
		MaxItems:  50,
		UserAgent: "TopicBuddy/1.0 (+discovery)",
	}
}

func unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSourceUnavailable, fmt.Sprintf(format, args...))
}

func generateID(source, link string) string {
	hash := sha256.Sum256([]byte(source + link))
	return fmt.Sprintf("%x", hash[:8])
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// hostOf returns the host used as a rate-limit key.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

// resolveURL resolves ref against base, returning ref unchanged when either
// fails to parse.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// normalizeImageURL gives protocol-relative image URLs an https scheme.
func normalizeImageURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// capItems bounds n by max when max is positive.
func capItems(n, max int) int {
	if max > 0 && (n <= 0 || n > max) {
		return max
	}
	return n
}
