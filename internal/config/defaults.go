package config

const (
	defaultStagingDir   = "~/.local/share/pagebind/staging"
	defaultLogDir       = "~/.local/share/pagebind/logs"
	defaultWorkers      = 1
	defaultProvider     = ProviderNative
	defaultMagickBinary = "magick"
	defaultStatsTimeout = 60
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
)

// Provider backend names accepted by pipeline.provider.
const (
	ProviderNative = "native"
	ProviderMagick = "magick"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Pipeline: Pipeline{
			SpreadDetection: true,
			Workers:         defaultWorkers,
			Provider:        defaultProvider,
			MagickBinary:    defaultMagickBinary,
			StatsTimeout:    defaultStatsTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
