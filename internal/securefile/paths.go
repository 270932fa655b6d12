package securefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvVar selects a per-environment data folder.
const EnvVar = "TOSHI_ENV"

// EnvFolder maps TOSHI_ENV to its subfolder. Production uses none.
func EnvFolder() (string, error) {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(EnvVar)))
	switch raw {
	case "", "prod", "production":
		return "", nil
	case "local":
		return "local", nil
	case "dev", "develop", "development":
		return "develop", nil
	default:
		return "", fmt.Errorf("invalid %s %q (allowed: local, develop, production)", EnvVar, raw)
	}
}

// PathCandidates lists where app's filename may live, most preferred first.
func PathCandidates(app, filename string) ([]string, error) {
	if app == "" || filename == "" {
		return nil, errors.New("securefile: app and filename are required")
	}
	env, err := EnvFolder()
	if err != nil {
		return nil, err
	}

	var out []string
	seen := map[string]bool{}
	add := func(base string) {
		p := filepath.Join(base, app, env, filename)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, home := range []string{os.Getenv("SNAP_REAL_HOME"), os.Getenv("HOME")} {
		if home != "" {
			add(filepath.Join(home, ".config"))
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		add(dir)
	} else if len(out) == 0 {
		return nil, fmt.Errorf("user config dir: %w", err)
	}
	return out, nil
}

// DefaultPath is the first candidate, or the first existing one if any.
func DefaultPath(app, filename string) (string, error) {
	paths, err := PathCandidates(app, filename)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return paths[0], nil
}
