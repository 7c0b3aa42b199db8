package main

import (
	"context"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/alanbriolat/lecture-archiver/internal/boltdb"
	"github.com/alanbriolat/lecture-archiver/internal/fetch"
	"github.com/alanbriolat/lecture-archiver/internal/history"
	"github.com/alanbriolat/lecture-archiver/internal/integrity"
	"github.com/alanbriolat/lecture-archiver/internal/process"
	"github.com/alanbriolat/lecture-archiver/internal/transcribe"
	"github.com/alanbriolat/lecture-archiver/internal/validation"
)

// components holds everything a sweep needs, in the order it must be closed.
type components struct {
	recorder  *validation.Recorder
	checker   *integrity.Checker
	fetcher   *fetch.Fetcher
	queue     *transcribe.Queue
	state     process.Database
	history   *history.History
	processor *process.Processor
	closers   []func() error
}

func (rt *runtime) newValidationLog(ctx context.Context) (validation.Log, func() error, error) {
	if rt.config.RedisURL != "" {
		log, err := validation.NewRedisLogFromURL(ctx, rt.config.RedisURL, rt.config.RedisKey)
		if err != nil {
			return nil, nil, err
		}
		rt.logger.Info("Using redis validation log", zap.String("key", rt.config.RedisKey))
		return log, log.Close, nil
	}
	rt.logger.Info("Using validation log file", zap.String("path", rt.config.ValidationLog))
	return validation.NewFileLog(rt.fs, rt.config.ValidationLog), nil, nil
}

func (rt *runtime) newChecker() (*integrity.Checker, error) {
	prober, err := integrity.NewProber(rt.config.Prober, rt.fs)
	if err != nil {
		return nil, err
	}
	return integrity.NewChecker(rt.fs, prober, rt.logger), nil
}

func (rt *runtime) newTranscriber() transcribe.Transcriber {
	tc := rt.config.Transcripts
	if !tc.Enabled {
		return transcribe.Nop{Logger: rt.logger}
	}
	return transcribe.NewWhisperCLI(rt.fs, rt.logger,
		transcribe.WithBinary(tc.Binary),
		transcribe.WithModel(tc.Model),
		transcribe.WithOutputDir(tc.Dir),
	)
}

// buildComponents opens the stores and builds the per-item pipeline. The caller must call close on success.
func (rt *runtime) buildComponents(ctx context.Context, opts ...fetch.Option) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			_ = c.close()
		}
	}()

	log, closeLog, err := rt.newValidationLog(ctx)
	if err != nil {
		return nil, err
	}
	if closeLog != nil {
		c.closers = append(c.closers, closeLog)
	}
	// Items still in flight after an interrupt must be able to record their result
	if c.recorder, err = validation.NewRecorder(context.WithoutCancel(ctx), log, rt.logger); err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() error { c.recorder.Close(); return nil })

	if c.checker, err = rt.newChecker(); err != nil {
		return nil, err
	}

	opts = append([]fetch.Option{fetch.WithRateLimit(rt.config.RequestsPerSecond)}, opts...)
	c.fetcher = fetch.New(rt.fs, rt.logger, opts...)

	c.state = process.NilDatabase{}
	if rt.config.StateDB != "" {
		if err := rt.fs.MkdirAll(filepath.Dir(rt.config.StateDB), 0775); err != nil {
			return nil, err
		}
		state, err := boltdb.New(rt.config.StateDB, rt.logger)
		if err != nil {
			return nil, err
		}
		c.state = state
		c.closers = append(c.closers, state.Close)
	}

	if rt.config.HistoryDB != "" {
		if err := rt.fs.MkdirAll(filepath.Dir(rt.config.HistoryDB), 0775); err != nil {
			return nil, err
		}
		if c.history, err = history.Open(rt.config.HistoryDB, rt.logger); err != nil {
			return nil, err
		}
		c.closers = append(c.closers, c.history.Close)
	}

	// Closed first so pending transcriptions finish before the stores go away
	c.queue = transcribe.NewQueue(ctx, rt.newTranscriber(), rt.config.Transcripts.QueueSize, rt.logger)
	c.closers = append(c.closers, func() error { c.queue.Close(); return nil })

	c.processor = process.New(rt.fs, c.recorder, c.checker, c.fetcher, c.queue, c.state, rt.logger)
	return c, nil
}

func (c *components) close() error {
	var result error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.closers = nil
	return result
}
