package config

import (
	"os"
	"path/filepath"
	"strings"
)

const resourcesPrefix = "resources" + string(filepath.Separator)

// ResourceDirs lists the directories searched for bundled resources: the
// working directory and its parents, next to the executable, and
// ~/.catwatch/resources.
func ResourceDirs() []string {
	dirs := []string{"resources", "../resources", "../../resources"}

	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "resources"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".catwatch", "resources"))
	}

	return dirs
}

// OpenCVDataDirs lists where OpenCV installs its stock cascades.
func OpenCVDataDirs() []string {
	return []string{
		"/usr/share/opencv4/haarcascades",
		"/usr/local/share/opencv4/haarcascades",
		"/opt/homebrew/share/opencv4/haarcascades",
		"/usr/share/opencv/haarcascades",
	}
}

// FindResource returns path if it exists. Otherwise it looks for the part
// after the leading "resources/" in each ResourceDirs entry, then for the
// bare file name in extra. If nothing matches, path is returned unchanged
// so load errors name what the user asked for.
func FindResource(path string, extra ...string) string {
	if path == "" {
		return path
	}
	if exists(path) {
		return path
	}

	rel := filepath.Clean(path)
	rel = strings.TrimPrefix(rel, resourcesPrefix)

	for _, dir := range ResourceDirs() {
		candidate := filepath.Join(dir, rel)
		if exists(candidate) {
			if abs, err := filepath.Abs(candidate); err == nil {
				return abs
			}
			return candidate
		}
	}

	base := filepath.Base(path)
	for _, dir := range extra {
		candidate := filepath.Join(dir, base)
		if exists(candidate) {
			return candidate
		}
	}

	return path
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
