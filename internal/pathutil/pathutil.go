package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultStateDir = "~/.bunkbot"

func ExpandHomePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

// ResolveStateDir falls back to ~/.bunkbot when dir is blank.
func ResolveStateDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = defaultStateDir
	}
	return filepath.Clean(ExpandHomePath(dir))
}

// ResolveStateChildDir returns name (or fallback) under the state dir.
// Absolute or home-relative names are used as-is.
func ResolveStateChildDir(stateDir, name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	if strings.HasPrefix(name, "~") {
		return filepath.Clean(ExpandHomePath(name))
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(ResolveStateDir(stateDir), name)
}

func ResolveStateFile(stateDir, filename string) string {
	return filepath.Join(ResolveStateDir(stateDir), strings.TrimSpace(filename))
}
