// Package direct implements the lowest-priority fallback handler:
// a plain HTTP(S) download for URLs no specialised handler claims.
package direct

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/DINO060/mediasink/internal/plugin"
	"github.com/DINO060/mediasink/pkg/logger"
)

var log = logger.Get("DirectHTTP")

const defaultRequestTimeout = time.Minute * 5

type handler struct {
	client *http.Client
}

func New() *handler {
	return &handler{
		client: &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (h *handler) Info() plugin.Info {
	return plugin.Info{
		Name:        "direct",
		Version:     "1.0.0",
		Description: "direct HTTP download fallback",
		Priority:    0,
	}
}

// CanHandle accepts any absolute http(s) URL; as the lowest-priority
// handler this only matters when every specialised handler has
// declined the URL.
func (h *handler) CanHandle(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == "http" || scheme == "https") && parsed.Host != ""
}

// ExtractInfo performs a HEAD request to discover what little a plain
// HTTP resource can tell us about itself.
func (h *handler) ExtractInfo(ctx context.Context, raw string) (plugin.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, raw, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HEAD request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HEAD request returned status %d", resp.StatusCode)
	}

	metadata := plugin.Metadata{
		"title":        filenameFor(resp, raw),
		"content_type": resp.Header.Get("Content-Type"),
	}
	if resp.ContentLength > 0 {
		metadata["filesize"] = resp.ContentLength
	}

	return metadata, nil
}

// Fetch streams the resource to a file inside destDir. A partially
// written file is removed if the transfer fails.
func (h *handler) Fetch(ctx context.Context, raw string, destDir string, _ plugin.Options) (plugin.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return plugin.FetchResult{}, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return plugin.FetchResult{}, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return plugin.FetchResult{
			Metadata: plugin.Metadata{"error": fmt.Sprintf("unexpected status %d", resp.StatusCode)},
		}, fmt.Errorf("GET request returned status %d", resp.StatusCode)
	}

	localPath := filepath.Join(destDir, filenameFor(resp, raw))
	file, err := os.Create(localPath)
	if err != nil {
		return plugin.FetchResult{}, fmt.Errorf("failed to create destination file: %w", err)
	}

	written, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(localPath)
		return plugin.FetchResult{}, fmt.Errorf("transfer failed after %d bytes: %w", written, err)
	}

	log.Emit(logger.DEBUG, "Fetched %d bytes from '%s'\n", written, raw)
	return plugin.FetchResult{
		Success:   true,
		LocalPath: localPath,
		Metadata: plugin.Metadata{
			"content_type": resp.Header.Get("Content-Type"),
			"filesize":     written,
		},
	}, nil
}

// filenameFor derives a safe local filename from the responses
// Content-Disposition header, falling back to the URL path.
func filenameFor(resp *http.Response, raw string) string {
	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if filename, ok := params["filename"]; ok {
				return plugin.SanitizeFilename(filename)
			}
		}
	}

	if parsed, err := url.Parse(raw); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "/" && base != "." {
			return plugin.SanitizeFilename(base)
		}
	}

	return "download"
}
