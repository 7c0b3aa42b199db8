// Package integrity decides whether a media file on disk is complete: its size matches the expected size, when that
// is known, and its first frame can be read.
package integrity

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	la "github.com/alanbriolat/lecture-archiver"
)

// Prober checks that a media file can be decoded. Any error means the file is not decodable.
type Prober interface {
	Probe(ctx context.Context, path string) error
}

type ProberFunc func(ctx context.Context, path string) error

func (f ProberFunc) Probe(ctx context.Context, path string) error {
	return f(ctx, path)
}

type Checker struct {
	fs     afero.Fs
	prober Prober
	logger *zap.Logger
}

func NewChecker(fs afero.Fs, prober Prober, logger *zap.Logger) *Checker {
	return &Checker{fs: fs, prober: prober, logger: logger.Named("integrity")}
}

// SizeMatches compares the on-disk size with expected. Sizes that are not known always match; a missing or
// unreadable file never does.
func (c *Checker) SizeMatches(path string, expected la.ExpectedSize) bool {
	info, err := c.fs.Stat(path)
	if err != nil {
		c.logger.Debug("cannot stat file", zap.String("path", path), zap.Error(err))
		return false
	}
	if !expected.Matches(info.Size()) {
		c.logger.Info("size mismatch",
			zap.String("path", path),
			zap.String("expected", humanize.IBytes(uint64(expected.Bytes))),
			zap.String("actual", humanize.IBytes(uint64(info.Size()))),
		)
		return false
	}
	return true
}

// IsDecodable fails closed: a probe error of any kind is reported as not decodable.
func (c *Checker) IsDecodable(ctx context.Context, path string) bool {
	if err := c.prober.Probe(ctx, path); err != nil {
		c.logger.Info("file is not decodable", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

// Validate is SizeMatches and then IsDecodable; the probe is skipped on a size mismatch.
func (c *Checker) Validate(ctx context.Context, path string, expected la.ExpectedSize) bool {
	return c.SizeMatches(path, expected) && c.IsDecodable(ctx, path)
}

// NewProber builds a prober by name: "mp4" or "ffprobe".
func NewProber(name string, fs afero.Fs) (Prober, error) {
	switch name {
	case "", "mp4":
		return NewMP4Prober(fs), nil
	case "ffprobe":
		return NewFFProbe(""), nil
	default:
		return nil, fmt.Errorf("unknown prober %q", name)
	}
}
