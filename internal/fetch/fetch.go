// Package fetch downloads a single remote file to disk, resuming from whatever partial file is already there.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	la "github.com/alanbriolat/lecture-archiver"
)

// ChunkSize is the size of each write to disk.
const ChunkSize = 8192

var (
	// ErrTransient covers network and disk failures that may go away on a later sweep.
	ErrTransient = errors.New("transient fetch failure")
	// ErrBadStatus is returned for any HTTP status other than 200 or 206.
	ErrBadStatus = errors.New("unexpected http status")
)

// Result describes the outcome of one Fetch call.
type Result struct {
	// Size is the final on-disk size, or 0 if the fetch failed.
	Size int64
	// Transferred is how many bytes this call wrote, including on failure.
	Transferred int64
	// Resumed is true if bytes were appended to an existing partial file.
	Resumed bool
	// Status is the HTTP status code, 0 if no response was received.
	Status int
}

func (r Result) OK() bool {
	return r.Size > 0
}

type Option func(*Fetcher)

func WithClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithRateLimit spaces out requests to at most rps per second; 0 or less disables pacing.
func WithRateLimit(rps float64) Option {
	return func(f *Fetcher) {
		if rps > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			f.limiter = nil
		}
	}
}

// WithProgress registers a callback receiving the byte count of every chunk written to disk.
func WithProgress(callback func(n int)) Option {
	return func(f *Fetcher) {
		f.progressCallback = callback
	}
}

type Fetcher struct {
	fs               afero.Fs
	client           *http.Client
	limiter          *rate.Limiter
	progressCallback func(int)
	logger           *zap.Logger
}

func New(fs afero.Fs, logger *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		fs:     fs,
		client: http.DefaultClient,
		logger: logger.Named("fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) wait(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Wait(ctx)
}

// ProbeSize asks the server for the remote size with a HEAD request. A failed request gives an unknown size; a
// response without a usable Content-Length gives an absent size.
func (f *Fetcher) ProbeSize(ctx context.Context, url string) la.ExpectedSize {
	logger := f.logger.With(zap.String("url", url))
	if err := f.wait(ctx); err != nil {
		return la.UnknownSize()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		logger.Warn("invalid size request", zap.Error(err))
		return la.UnknownSize()
	}
	resp, err := f.client.Do(req)
	if err != nil {
		logger.Warn("size request failed", zap.Error(err))
		return la.UnknownSize()
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Info("size request refused", zap.Int("status", resp.StatusCode))
		return la.AbsentSize()
	}
	if resp.ContentLength <= 0 {
		logger.Debug("no usable content length")
		return la.AbsentSize()
	}
	return la.KnownSize(resp.ContentLength)
}

// Fetch downloads url to path. An existing partial file is resumed with a Range request when it is smaller than a
// known expected size, or whenever the expected size is not known; a file that is already at least as large as a
// known expected size is discarded first. Failures are logged and returned with a zero Size; partial bytes stay on
// disk for the next attempt.
func (f *Fetcher) Fetch(ctx context.Context, url string, path string, expected la.ExpectedSize) (Result, error) {
	logger := f.logger.With(zap.String("url", url), zap.String("path", path))

	var existing int64
	if info, err := f.fs.Stat(path); err == nil {
		existing = info.Size()
	}
	if existing > 0 && expected.IsKnown() && existing >= expected.Bytes {
		logger.Info("existing file is not smaller than expected size, downloading again",
			zap.String("existing", humanize.IBytes(uint64(existing))),
			zap.String("expected", humanize.IBytes(uint64(expected.Bytes))),
		)
		if err := f.fs.Remove(path); err != nil {
			logger.Error("failed to remove existing file", zap.Error(err))
			return Result{}, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		existing = 0
	}

	if err := f.wait(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
		logger.Info("resuming download", zap.Int64("offset", existing))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		logger.Warn("download failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	result := Result{Status: resp.StatusCode}
	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		if existing > 0 {
			if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); ok && start != existing {
				logger.Warn("server resumed at wrong offset", zap.Int64("offset", start))
				return result, fmt.Errorf("%w: resumed at %d instead of %d", ErrBadStatus, start, existing)
			}
			flags |= os.O_APPEND
			result.Resumed = true
		} else {
			flags |= os.O_TRUNC
		}
	case http.StatusOK:
		if existing > 0 {
			logger.Info("server ignored range request, downloading from start")
		}
		flags |= os.O_TRUNC
	default:
		logger.Info("download refused", zap.Int("status", resp.StatusCode))
		return result, fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}

	if err := f.fs.MkdirAll(filepath.Dir(path), 0775); err != nil {
		return result, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	file, err := f.fs.OpenFile(path, flags, 0644)
	if err != nil {
		logger.Error("failed to open target file", zap.Error(err))
		return result, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	n, err := f.copyChunks(ctx, file, resp.Body)
	closeErr := file.Close()
	result.Transferred = n
	if err == nil {
		err = closeErr
	}
	if err != nil {
		logger.Warn("download interrupted", zap.Int64("transferred", n), zap.Error(err))
		return result, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	info, err := f.fs.Stat(path)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	result.Size = info.Size()
	logger.Debug("download finished",
		zap.String("size", humanize.IBytes(uint64(result.Size))),
		zap.Int64("transferred", n),
		zap.Bool("resumed", result.Resumed),
	)
	return result, nil
}

func (f *Fetcher) copyChunks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	// MultiWriter also hides any ReadFrom on dst, so writes stay at ChunkSize
	writers := []io.Writer{dst}
	if f.progressCallback != nil {
		writers = append(writers, progressWriter(f.progressCallback))
	}
	return io.CopyBuffer(io.MultiWriter(writers...), la.NewContextReader(ctx, src), make([]byte, ChunkSize))
}

// progressWriter discards data but reports the byte count. Use it last in an io.MultiWriter so failed writes are not
// counted.
type progressWriter func(int)

func (w progressWriter) Write(p []byte) (int, error) {
	w(len(p))
	return len(p), nil
}

// contentRangeStart parses the first byte position of a "bytes start-end/total" header.
func contentRangeStart(header string) (int64, bool) {
	rng, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}
