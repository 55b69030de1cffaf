package aggregate

import (
	"math"
	"sort"
	"time"

	"today-feed/internal/domain/entity"
)

// recencyHalfLifeHours controls how fast the recency factor decays.
const recencyHalfLifeHours = 48.0

// rankArticles merges the enriched streams, sorts by publish time
// descending, deduplicates by url_hash keeping the first (freshest)
// occurrence, and computes the composite score. This stage is the sole
// ordering authority for the emitted feed.
func rankArticles(articles []*entity.Article, publishers map[string]*entity.Publisher, now time.Time) []*entity.Article {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishTime.After(articles[j].PublishTime.Time)
	})

	seen := make(map[string]struct{}, len(articles))
	result := make([]*entity.Article, 0, len(articles))
	for _, article := range articles {
		if _, dup := seen[article.URLHash]; dup {
			continue
		}
		seen[article.URLHash] = struct{}{}

		var pubScore float64
		if pub := publishers[article.PublisherID]; pub != nil {
			pubScore = pub.Score
		}
		article.Score = ComputeScore(article.PopScore, article.PublishTime.Time, pubScore, now)
		if article.Channels == nil {
			article.Channels = []string{}
		}
		result = append(result, article)
	}

	return result
}

// ComputeScore combines the normalized popularity score, a recency decay,
// and the publisher's catalog score into the ranking scalar. Pure function
// of its inputs.
func ComputeScore(popScore float64, publishTime time.Time, publisherScore float64, now time.Time) float64 {
	ageHours := now.Sub(publishTime).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	recency := math.Exp2(-ageHours / recencyHalfLifeHours)
	return popScore*recency + publisherScore
}
