package main

import (
	"fmt"
	"time"

	"pagebind/internal/config"
	"pagebind/internal/imagestats"
	"pagebind/internal/imagestats/magick"
	"pagebind/internal/imagestats/native"
)

func buildProvider(cfg *config.Config) (imagestats.Provider, error) {
	switch cfg.Pipeline.Provider {
	case config.ProviderNative:
		return native.New(), nil
	case config.ProviderMagick:
		return magick.New(cfg.Pipeline.MagickBinary,
			magick.WithCallTimeout(time.Duration(cfg.Pipeline.StatsTimeout)*time.Second))
	default:
		return nil, fmt.Errorf("unknown statistics provider %q", cfg.Pipeline.Provider)
	}
}
