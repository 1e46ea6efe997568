package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pagebind/internal/imagestats"
)

// FakeProvider implements imagestats.Provider with canned responses keyed by
// file name, so pipeline behavior can be tested without real image math.
type FakeProvider struct {
	mu sync.Mutex

	// PageStats maps file base name to full-page statistics.
	PageStats map[string]imagestats.Stats
	// StripStats maps file base name to edge-strip statistics. When a name is
	// missing, strip queries fall back to PageStats.
	StripStats map[string]imagestats.Stats
	// PairScores maps "left|right" base-name keys to dissimilarity scores.
	PairScores map[string]float64
	// StatsErr, if set, is returned for the named page's statistics queries.
	StatsErr map[string]error
	// ConcatErr, if set, fails every ConcatHorizontal call.
	ConcatErr error
	// PingErr, if set, is returned from Ping.
	PingErr error

	// StatsCalls and DissimilarityCalls record invocation order.
	StatsCalls         []string
	DissimilarityCalls []string
}

// NewFakeProvider returns an empty fake where every page reads as mid-gray
// content and every pair scores maximally dissimilar.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		PageStats:  map[string]imagestats.Stats{},
		StripStats: map[string]imagestats.Stats{},
		PairScores: map[string]float64{},
		StatsErr:   map[string]error{},
	}
}

// PairKey builds the PairScores key for two page base names.
func PairKey(left, right string) string {
	return left + "|" + right
}

func (f *FakeProvider) Ping(ctx context.Context) error {
	return f.PingErr
}

func (f *FakeProvider) Size(ctx context.Context, path string) (int, int, error) {
	name := filepath.Base(path)
	f.mu.Lock()
	err := f.StatsErr[name]
	f.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}
	return 1000, 1500, nil
}

func (f *FakeProvider) Stats(ctx context.Context, path string, region imagestats.Region) (imagestats.Stats, error) {
	name := filepath.Base(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatsCalls = append(f.StatsCalls, name)
	if err := f.StatsErr[name]; err != nil {
		return imagestats.Stats{}, err
	}
	if !region.IsFull() {
		if stats, ok := f.StripStats[name]; ok {
			return stats, nil
		}
	}
	if stats, ok := f.PageStats[name]; ok {
		return stats, nil
	}
	return imagestats.Stats{Mean: 32000, StdDev: 9000}, nil
}

func (f *FakeProvider) Dissimilarity(ctx context.Context, pathA string, regionA imagestats.Region, pathB string, regionB imagestats.Region) (float64, error) {
	key := PairKey(filepath.Base(pathA), filepath.Base(pathB))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DissimilarityCalls = append(f.DissimilarityCalls, key)
	if score, ok := f.PairScores[key]; ok {
		return score, nil
	}
	return 1, nil
}

func (f *FakeProvider) ConcatHorizontal(ctx context.Context, leftPath, rightPath, dst string) error {
	if f.ConcatErr != nil {
		return f.ConcatErr
	}
	content := fmt.Sprintf("merged:%s+%s", filepath.Base(leftPath), filepath.Base(rightPath))
	return os.WriteFile(dst, []byte(content), 0o644)
}
