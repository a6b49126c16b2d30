// Package ytdlp adapts the yt-dlp command line tool as a source
// handler. It covers the large family of video/audio hosting sites
// that yt-dlp itself supports; the handler shells out for both info
// extraction (-J) and the fetch itself.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/DINO060/mediasink/internal/plugin"
	"github.com/DINO060/mediasink/pkg/logger"
)

var log = logger.Get("YtDlp")

// Fast-path URL patterns for the most common sources. can_handle must
// not perform I/O, so rather than asking yt-dlp whether it recognises
// the URL we match against the sites this deployment cares about.
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?|youtube\.com/shorts/|youtu\.be/)`),
	regexp.MustCompile(`vimeo\.com/\d+`),
	regexp.MustCompile(`dailymotion\.com/video/`),
	regexp.MustCompile(`(?:twitter\.com|x\.com)/[^/]+/status/`),
	regexp.MustCompile(`instagram\.com/(?:p|reel|tv)/`),
	regexp.MustCompile(`tiktok\.com/@[^/]+/video/`),
	regexp.MustCompile(`soundcloud\.com/`),
	regexp.MustCompile(`twitch\.tv/`),
	regexp.MustCompile(`reddit\.com/r/[^/]+/comments/`),
	regexp.MustCompile(`facebook\.com/.+/videos/`),
}

type (
	Config struct {
		BinaryPath string `yaml:"binary_path" env:"YTDLP_BINARY_PATH" env-default:"yt-dlp"`
	}

	handler struct {
		config Config
	}
)

func New(config Config) *handler {
	return &handler{config: config}
}

func (h *handler) Info() plugin.Info {
	return plugin.Info{
		Name:        "ytdlp",
		Version:     "1.0.0",
		Description: "yt-dlp backed handler for video/audio hosting sites",
		Priority:    100,
	}
}

func (h *handler) CanHandle(url string) bool {
	for _, pattern := range urlPatterns {
		if pattern.MatchString(url) {
			return true
		}
	}

	return false
}

// ExtractInfo runs yt-dlp in JSON dump mode (no download) and maps
// the output in to the handler metadata bag.
func (h *handler) ExtractInfo(ctx context.Context, url string) (plugin.Metadata, error) {
	cmd := exec.CommandContext(ctx, h.config.BinaryPath,
		"--dump-single-json",
		"--no-warnings",
		"--no-playlist",
		"--skip-download",
		url,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp info extraction failed: %w (%s)", err, firstLine(stderr.String()))
	}

	var dump map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &dump); err != nil {
		return nil, fmt.Errorf("yt-dlp produced unparseable JSON: %w", err)
	}

	metadata := plugin.Metadata{
		"title":       dump["title"],
		"description": dump["description"],
		"duration":    dump["duration"],
		"uploader":    dump["uploader"],
		"id":          dump["id"],
		"extractor":   dump["extractor"],
	}
	if width, ok := dump["width"].(float64); ok {
		if height, ok := dump["height"].(float64); ok {
			metadata["resolution"] = fmt.Sprintf("%dx%d", int(width), int(height))
		}
	}
	if size, ok := dump["filesize_approx"].(float64); ok {
		metadata["filesize"] = int64(size)
	}

	return metadata, nil
}

// Fetch downloads the media in to destDir. The final on-disk path is
// recovered from yt-dlp itself (--print after_move:filepath) rather
// than guessed from the output template.
func (h *handler) Fetch(ctx context.Context, url string, destDir string, options plugin.Options) (plugin.FetchResult, error) {
	args := []string{
		"--no-warnings",
		"--no-progress",
		"--no-playlist",
		"--print", "after_move:filepath",
		"-o", destDir + "/%(id)s.%(ext)s",
	}

	if audioOnly, ok := options["audio_only"].(bool); ok && audioOnly {
		args = append(args, "-x", "--audio-format", "mp3")
	}
	if format, ok := options["format"].(string); ok && format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, h.config.BinaryPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Emit(logger.DEBUG, "Fetching '%s' via %s\n", url, h.config.BinaryPath)
	if err := cmd.Run(); err != nil {
		return plugin.FetchResult{
			Metadata: plugin.Metadata{"error": firstLine(stderr.String())},
		}, fmt.Errorf("yt-dlp fetch failed: %w", err)
	}

	localPath := lastLine(stdout.String())
	if localPath == "" {
		return plugin.FetchResult{}, fmt.Errorf("yt-dlp fetch for '%s' reported no output file", url)
	}

	return plugin.FetchResult{Success: true, LocalPath: localPath}, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
