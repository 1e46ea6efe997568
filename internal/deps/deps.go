// Package deps reports availability of the external binaries pagebind can
// delegate image work to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"pagebind/internal/config"
)

// Requirement defines an external dependency.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries relevant to the given configuration. The
// ImageMagick entry is mandatory only when the magick provider is selected;
// the native provider needs no external tools.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "ImageMagick",
			Command:     cfg.Pipeline.MagickBinary,
			Description: "Backs the magick statistics provider",
			Optional:    cfg.Pipeline.Provider != config.ProviderMagick,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// AllRequiredAvailable reports whether every non-optional dependency is
// present.
func AllRequiredAvailable(statuses []Status) bool {
	for _, status := range statuses {
		if !status.Optional && !status.Available {
			return false
		}
	}
	return true
}
