package seed

import (
	"context"
	"fmt"

	"github.com/okian/fathom/pkg/logger"
)

// verifyPatterns checks every planted template is reported as a pattern of
// its subject and action.
func verifyPatterns(ctx context.Context, client *Client, stats *Stats) error {
	log := logger.Get().Named("seed")
	for _, t := range Planted() {
		resp, err := client.Patterns(ctx, t.Subject, t.Action, 0)
		if err != nil {
			return fmt.Errorf("query patterns %s/%s: %w", t.Subject, t.Action, err)
		}
		found := false
		for _, p := range resp.Patterns {
			if p.Subject == t.Subject && p.Action == t.Action {
				found = true
				break
			}
		}
		if found {
			stats.PatternsFound++
			continue
		}
		stats.PatternsMissing++
		log.Warn(ctx, "planted pattern not detected",
			logger.String("subject", t.Subject),
			logger.String("action", t.Action),
			logger.Int("groups", resp.Groups))
	}
	if stats.PatternsMissing > 0 {
		return fmt.Errorf("%d of %d planted patterns missing", stats.PatternsMissing, len(Planted()))
	}
	return nil
}

// verifyTrends checks the monthly trend covers every subject that was seeded.
func verifyTrends(ctx context.Context, client *Client, stats *Stats) error {
	resp, err := client.Trends(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("query trends: %w", err)
	}
	stats.TrendSeries = len(resp.Series)

	seen := make(map[string]bool, len(resp.Series))
	for _, s := range resp.Series {
		seen[s.Key] = true
	}
	for _, t := range Planted() {
		if !seen[t.Subject] {
			return fmt.Errorf("trend has no series for %q", t.Subject)
		}
	}
	return nil
}
