package frames

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VideoExtensions lists the container formats accepted for screening.
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}

// ErrUnsupportedVideo is returned for a file whose extension is not in
// VideoExtensions.
var ErrUnsupportedVideo = errors.New("unsupported video format")

// IsVideo reports whether path has an accepted video extension.
func IsVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range VideoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// ValidateVideo checks that path is an existing regular file with an
// accepted extension and returns its absolute path.
func ValidateVideo(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("video not found: %s", path)
		}
		return "", fmt.Errorf("failed to access video: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("video path is a directory: %s", path)
	}
	if !IsVideo(path) {
		return "", fmt.Errorf("%w: %s (accepted: %s)", ErrUnsupportedVideo, filepath.Ext(path), strings.Join(VideoExtensions, " "))
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}
