package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/alanbriolat/lecture-archiver/internal/fetch"
)

// fetchAction downloads one URL to path, resuming if part of it is already there, and validates the result.
func fetchAction(ctx context.Context, c *cli.Context, url string, path string) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	checker, err := rt.newChecker()
	if err != nil {
		return err
	}
	var bar *progressbar.ProgressBar
	fetcher := fetch.New(rt.fs, rt.logger,
		fetch.WithRateLimit(rt.config.RequestsPerSecond),
		fetch.WithProgress(func(n int) {
			if bar != nil {
				_ = bar.Add(n)
			}
		}),
	)

	expected := fetcher.ProbeSize(ctx, url)
	rt.logger.Info("Remote size", zap.String("url", url), zap.Stringer("expected", expected))
	total := int64(-1)
	if expected.IsKnown() {
		total = expected.Bytes
	}
	if info, err := rt.fs.Stat(path); err == nil && expected.Remaining(info.Size()) > 0 {
		bar = progressbar.DefaultBytes(total, "resuming")
		_ = bar.Set64(info.Size())
	} else {
		bar = progressbar.DefaultBytes(total, "downloading")
	}

	result, err := fetcher.Fetch(ctx, url, path, expected)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("download of %s failed: %w", url, err)
	}
	rt.logger.Info("Downloaded",
		zap.String("path", path),
		zap.String("size", humanize.IBytes(uint64(result.Size))),
		zap.String("transferred", humanize.IBytes(uint64(result.Transferred))),
		zap.Bool("resumed", result.Resumed),
	)

	if !checker.Validate(ctx, path, expected) {
		return cli.Exit(fmt.Sprintf("%s failed validation", path), 1)
	}
	rt.logger.Info("Validated", zap.String("path", path))
	return nil
}
