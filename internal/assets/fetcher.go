// Package assets downloads the result locators of a completed job and bundles
// them for local use.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"blitzai/internal/infra"
	"blitzai/internal/job"
	"blitzai/pkg/zip"
)

// Fetcher retrieves result assets over HTTP.
type Fetcher struct {
	httpClient *http.Client
	logger     *infra.Logger
}

// Options configures a Fetcher.
type Options struct {
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// NewFetcher constructs a fetcher with sane defaults.
func NewFetcher(opts Options) *Fetcher {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Fetcher{httpClient: httpClient, logger: logger}
}

// FetchArchive downloads every result ref of the record and returns them as a
// zip archive. A completed record with no refs is a valid degraded state; it
// yields a nil archive and no error.
func (f *Fetcher) FetchArchive(ctx context.Context, rec job.Record) ([]byte, error) {
	if len(rec.ResultRefs) == 0 {
		f.logger.Debug().Str("job_id", rec.ID).Msg("assets: record has no result refs")
		return nil, nil
	}

	bundle := make([]zip.Asset, 0, len(rec.ResultRefs))
	for i, ref := range rec.ResultRefs {
		data, mime, err := f.download(ctx, ref)
		if err != nil {
			return nil, err
		}
		bundle = append(bundle, zip.Asset{
			Filename: filenameFor(ref, i),
			MIME:     mime,
			Data:     data,
		})
	}
	f.logger.Info().Str("job_id", rec.ID).Int("assets", len(bundle)).Msg("assets: archive built")
	return zip.ArchiveAssets(bundle), nil
}

func (f *Fetcher) download(ctx context.Context, ref string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("assets: invalid result ref %q", ref)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("assets: build download request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("assets: download %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("assets: download %s: status %d", ref, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("assets: read %s: %w", ref, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// filenameFor derives an archive entry name from the ref's URL path, falling
// back to a positional name when the path is unusable.
func filenameFor(ref string, index int) string {
	if parsed, err := url.Parse(ref); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return fmt.Sprintf("asset-%02d", index+1)
}
