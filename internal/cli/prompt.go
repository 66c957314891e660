package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-screen/internal/frames"
)

// ErrCanceled is returned when the user dismisses the video picker.
var ErrCanceled = errors.New("video selection canceled")

// PickVideo asks the user for a video with the native file dialog, falling
// back to a terminal prompt when no dialog can be shown.
func PickVideo() (string, error) {
	patterns := make([]string, 0, len(frames.VideoExtensions))
	for _, ext := range frames.VideoExtensions {
		patterns = append(patterns, "*"+ext)
	}

	selected, err := zenity.SelectFile(
		zenity.Title("Select a video to screen"),
		zenity.FileFilters{
			{Name: "Video files", Patterns: patterns},
		},
	)
	if err == nil {
		log.Debug().Str("path", selected).Msg("Video picked via native dialog")
		return selected, nil
	}
	if errors.Is(err, zenity.ErrCanceled) {
		return "", ErrCanceled
	}

	log.Debug().Err(err).Msg("File dialog unavailable, prompting on the terminal")
	return PromptForVideo(os.Stdin, os.Stderr)
}

// PromptForVideo reads a video path from in. An empty answer cancels.
func PromptForVideo(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Video file: ")

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	input = strings.Trim(strings.TrimSpace(input), `"'`)
	if input == "" {
		return "", ErrCanceled
	}
	return input, nil
}
