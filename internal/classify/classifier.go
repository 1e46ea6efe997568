// Package classify decides whether a page carries visible content.
package classify

import (
	"context"
	"log/slog"

	"pagebind/internal/catalog"
	"pagebind/internal/imagestats"
	"pagebind/internal/logging"
)

// A page is blank only when it is both near-white and near-uniform. A uniform
// dark page is content. Values are on the 0-65535 quantum scale and are fixed
// empirically tuned defaults.
const (
	blankMeanFloor     = 65000
	blankStdDevCeiling = 500
)

// Classifier flags blank pages using full-page luminance statistics.
type Classifier struct {
	provider imagestats.Provider
	logger   *slog.Logger
}

// New constructs a classifier. A nil logger is replaced with a no-op logger.
func New(provider imagestats.Provider, logger *slog.Logger) *Classifier {
	return &Classifier{
		provider: provider,
		logger:   logging.NewComponentLogger(logger, "classifier"),
	}
}

// Classify returns the content flag for page. Statistics failures fail open
// to content so a corrupt page never silently vanishes from the output.
func (c *Classifier) Classify(ctx context.Context, page catalog.Page) catalog.ContentFlag {
	stats, err := c.provider.Stats(ctx, page.Path, imagestats.Region{})
	if err != nil {
		c.logger.Warn("page statistics unavailable, keeping page",
			logging.String(logging.FieldPage, page.Name()),
			logging.Error(err),
		)
		return catalog.FlagContent
	}
	if stats.Mean > blankMeanFloor && stats.StdDev < blankStdDevCeiling {
		c.logger.Debug("page classified blank",
			logging.String(logging.FieldPage, page.Name()),
			logging.Float64("mean", stats.Mean),
			logging.Float64("stddev", stats.StdDev),
		)
		return catalog.FlagBlank
	}
	return catalog.FlagContent
}
