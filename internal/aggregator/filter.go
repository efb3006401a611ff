package aggregator

import (
	"strings"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

// UnknownAuthor is used when neither the config nor the adapter names one.
const UnknownAuthor = "Unknown Creator"

// Normalize drops items below the config's views threshold and stamps the
// survivors with provenance, status and a resolved author.
func Normalize(items []models.CandidateItem, cfg models.SourceConfig) []models.CandidateItem {
	kept := make([]models.CandidateItem, 0, len(items))

	for _, item := range items {
		if !PassesThreshold(item, cfg.ViewsThreshold) {
			continue
		}

		item.SourceConfigID = cfg.ID
		item.Status = string(models.TopicStatusNew)
		item.Author = resolveAuthor(cfg.Name, item.Author)

		if item.Metrics == nil {
			item.Metrics = models.Metrics{}
		}
		if item.Labels == nil {
			item.Labels = []string{}
		}

		kept = append(kept, item)
	}

	return kept
}

// PassesThreshold keeps items whose views are at least threshold. Missing
// views count as zero.
func PassesThreshold(item models.CandidateItem, threshold int64) bool {
	return item.Metrics.Views() >= threshold
}

func resolveAuthor(configName, adapterAuthor string) string {
	if name := strings.TrimSpace(configName); name != "" {
		return name
	}
	if author := strings.TrimSpace(adapterAuthor); author != "" {
		return author
	}
	return UnknownAuthor
}
