package classify_test

import (
	"context"
	"errors"
	"testing"

	"pagebind/internal/catalog"
	"pagebind/internal/classify"
	"pagebind/internal/imagestats"
	"pagebind/internal/testsupport"
)

func page(name string) catalog.Page {
	return catalog.Page{Path: "/pages/" + name, OrderKey: name}
}

func TestClassifyThresholds(t *testing.T) {
	cases := []struct {
		name  string
		stats imagestats.Stats
		want  catalog.ContentFlag
	}{
		{"near white uniform", imagestats.Stats{Mean: 65200, StdDev: 100}, catalog.FlagBlank},
		{"bright but textured", imagestats.Stats{Mean: 65200, StdDev: 900}, catalog.FlagContent},
		{"uniform but dark", imagestats.Stats{Mean: 400, StdDev: 50}, catalog.FlagContent},
		{"uniform mid gray", imagestats.Stats{Mean: 30000, StdDev: 10}, catalog.FlagContent},
		{"mean exactly at floor", imagestats.Stats{Mean: 65000, StdDev: 100}, catalog.FlagContent},
		{"stddev exactly at ceiling", imagestats.Stats{Mean: 65200, StdDev: 500}, catalog.FlagContent},
		{"just past both thresholds", imagestats.Stats{Mean: 65000.5, StdDev: 499.5}, catalog.FlagBlank},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := testsupport.NewFakeProvider()
			provider.PageStats["p.jpg"] = tc.stats
			classifier := classify.New(provider, nil)

			if got := classifier.Classify(context.Background(), page("p.jpg")); got != tc.want {
				t.Errorf("Classify = %v, want %v (stats %+v)", got, tc.want, tc.stats)
			}
		})
	}
}

func TestClassifyFailsOpenOnUnreadableImage(t *testing.T) {
	provider := testsupport.NewFakeProvider()
	provider.StatsErr["broken.jpg"] = imagestats.ErrUnreadableImage
	classifier := classify.New(provider, nil)

	if got := classifier.Classify(context.Background(), page("broken.jpg")); got != catalog.FlagContent {
		t.Errorf("Classify = %v, want FlagContent for unreadable page", got)
	}
}

func TestClassifyFailsOpenOnArbitraryError(t *testing.T) {
	provider := testsupport.NewFakeProvider()
	provider.StatsErr["odd.jpg"] = errors.New("transient failure")
	classifier := classify.New(provider, nil)

	if got := classifier.Classify(context.Background(), page("odd.jpg")); got != catalog.FlagContent {
		t.Errorf("Classify = %v, want FlagContent", got)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	provider := testsupport.NewFakeProvider()
	provider.PageStats["p.jpg"] = imagestats.Stats{Mean: 65300, StdDev: 50}
	classifier := classify.New(provider, nil)

	first := classifier.Classify(context.Background(), page("p.jpg"))
	second := classifier.Classify(context.Background(), page("p.jpg"))
	if first != second {
		t.Errorf("classification not deterministic: %v then %v", first, second)
	}
}
