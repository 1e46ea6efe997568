// Package spread decides whether two adjacent content pages are the halves of
// one physical double-page spread.
package spread

import (
	"context"
	"log/slog"

	"pagebind/internal/catalog"
	"pagebind/internal/imagestats"
	"pagebind/internal/logging"
)

// Edge-strip geometry and thresholds. All are fixed empirically tuned
// defaults; thresholds are on the 0-65535 quantum scale except the merge
// threshold, which is a normalized dissimilarity.
const (
	skipStripWidth  = 5
	skipStripHeight = 100
	testStripWidth  = 10
	testStripHeight = 200

	brightMeanFloor = 65000
	darkMeanCeiling = 500

	// A pair merges only when its dissimilarity is strictly below this.
	mergeThreshold = 0.4
)

// Decision is the analyzer's verdict for one page pair. It is computed once
// and never re-evaluated.
type Decision struct {
	Merge bool
	// Reason names the rule that produced the verdict, for logging.
	Reason string
}

// Analyzer compares the touching edges of candidate pairs.
type Analyzer struct {
	provider imagestats.Provider
	logger   *slog.Logger
}

// New constructs an analyzer. A nil logger is replaced with a no-op logger.
func New(provider imagestats.Provider, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		provider: provider,
		logger:   logging.NewComponentLogger(logger, "spread-analyzer"),
	}
}

// Decide returns the merge verdict for a pair of content pages. The decision
// depends only on the two images, so repeated calls yield the same verdict.
// An error means the pair could not be evaluated; callers keep such pairs
// separate.
func (a *Analyzer) Decide(ctx context.Context, left, right catalog.Page) (Decision, error) {
	// Brightness-extreme skip: shared near-white or near-black margins are
	// the common case for unrelated pages, not evidence of continuity.
	leftSkip, rightSkip, err := a.edgeRegions(ctx, left, right, skipStripWidth, skipStripHeight)
	if err != nil {
		return Decision{}, err
	}
	leftStats, err := a.provider.Stats(ctx, left.Path, leftSkip)
	if err != nil {
		return Decision{}, err
	}
	rightStats, err := a.provider.Stats(ctx, right.Path, rightSkip)
	if err != nil {
		return Decision{}, err
	}
	if leftStats.Mean > brightMeanFloor && rightStats.Mean > brightMeanFloor {
		return a.logDecision(left, right, Decision{Merge: false, Reason: "bright margins"}), nil
	}
	if leftStats.Mean < darkMeanCeiling && rightStats.Mean < darkMeanCeiling {
		return a.logDecision(left, right, Decision{Merge: false, Reason: "dark margins"}), nil
	}

	// Edge continuity test over wider strips.
	leftTest, rightTest, err := a.edgeRegions(ctx, left, right, testStripWidth, testStripHeight)
	if err != nil {
		return Decision{}, err
	}
	score, err := a.provider.Dissimilarity(ctx, left.Path, leftTest, right.Path, rightTest)
	if err != nil {
		return Decision{}, err
	}
	decision := Decision{Merge: score < mergeThreshold, Reason: "edge continuity"}
	a.logger.Debug("edge continuity scored",
		logging.String("left", left.Name()),
		logging.String("right", right.Name()),
		logging.Float64("dissimilarity", score),
	)
	return a.logDecision(left, right, decision), nil
}

// edgeRegions computes the trailing strip of left and the leading strip of
// right, vertically centered and clamped to each image's bounds.
func (a *Analyzer) edgeRegions(ctx context.Context, left, right catalog.Page, stripW, stripH int) (imagestats.Region, imagestats.Region, error) {
	leftW, leftH, err := a.provider.Size(ctx, left.Path)
	if err != nil {
		return imagestats.Region{}, imagestats.Region{}, err
	}
	rightW, rightH, err := a.provider.Size(ctx, right.Path)
	if err != nil {
		return imagestats.Region{}, imagestats.Region{}, err
	}
	return trailingStrip(leftW, leftH, stripW, stripH), leadingStrip(rightW, rightH, stripW, stripH), nil
}

func trailingStrip(imgW, imgH, stripW, stripH int) imagestats.Region {
	w := min(stripW, imgW)
	h := min(stripH, imgH)
	return imagestats.Region{X: imgW - w, Y: (imgH - h) / 2, Width: w, Height: h}
}

func leadingStrip(imgW, imgH, stripW, stripH int) imagestats.Region {
	w := min(stripW, imgW)
	h := min(stripH, imgH)
	return imagestats.Region{X: 0, Y: (imgH - h) / 2, Width: w, Height: h}
}

func (a *Analyzer) logDecision(left, right catalog.Page, decision Decision) Decision {
	verdict := "separate"
	if decision.Merge {
		verdict = "merge"
	}
	a.logger.Debug("pair decided",
		logging.String("left", left.Name()),
		logging.String("right", right.Name()),
		logging.String("decision_result", verdict),
		logging.String("decision_reason", decision.Reason),
	)
	return decision
}
