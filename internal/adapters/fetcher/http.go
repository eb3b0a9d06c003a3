package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"audiopipe/internal/core/domain"
)

// chunkSize is the streaming copy granularity. The ceiling check runs
// per chunk, so a transfer can overshoot by at most one chunk before it
// is aborted.
const chunkSize = 32 * 1024

// browserUserAgent keeps picky hosts from rejecting the download.
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// HTTPFetcher implements ports.Fetcher over plain HTTP. It streams the
// body to disk in fixed-size chunks and never buffers the payload in
// memory.
type HTTPFetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = client }
}

// WithLogger sets the fetcher's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *HTTPFetcher) { f.logger = logger }
}

// New creates an HTTPFetcher. Transfer deadlines come from the caller's
// context, not a client-wide timeout, since payloads can be large.
func New(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch streams the resolved source to destPath, aborting the instant
// accumulated size exceeds sizeCeiling. The partial file is deleted on
// every failure path. Retrying is the orchestrator's decision, never
// done here.
func (f *HTTPFetcher) Fetch(ctx context.Context, src domain.ResolvedSource, destPath string, sizeCeiling int64) (domain.FetchedMedia, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FetchURL, nil)
	if err != nil {
		return domain.FetchedMedia{}, &domain.FetchError{Kind: domain.ErrTransport, Err: err}
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Referer", src.FetchURL)

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.FetchedMedia{}, &domain.FetchError{Kind: domain.ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.FetchedMedia{}, &domain.FetchError{Kind: domain.ErrBadStatus, Status: resp.StatusCode}
	}

	file, err := os.Create(destPath)
	if err != nil {
		return domain.FetchedMedia{}, &domain.FetchError{Kind: domain.ErrTransport, Err: err}
	}

	size, err := copyCapped(file, resp.Body, sizeCeiling)
	closeErr := file.Close()
	if err == nil && closeErr != nil {
		err = &domain.FetchError{Kind: domain.ErrTransport, Err: closeErr}
	}
	if err != nil {
		os.Remove(destPath)
		return domain.FetchedMedia{}, err
	}

	f.logger.Debug().Str("url", src.FetchURL).Int64("bytes", size).Msg("fetch complete")

	origin := domain.OriginDirect
	if src.Class == domain.SourceCloudPublic {
		origin = domain.OriginCloud
	}
	return domain.FetchedMedia{Path: destPath, SizeBytes: size, Origin: origin}, nil
}

// copyCapped copies src to dst in chunkSize pieces, accounting size per
// chunk and failing with ErrTooLarge the moment the ceiling is crossed.
func copyCapped(dst io.Writer, src io.Reader, ceiling int64) (int64, error) {
	var size int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			size += int64(n)
			if ceiling > 0 && size > ceiling {
				return size, &domain.FetchError{Kind: domain.ErrTooLarge}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return size, &domain.FetchError{Kind: domain.ErrTransport, Err: err}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return size, nil
			}
			return size, &domain.FetchError{Kind: domain.ErrTransport, Err: readErr}
		}
	}
}
