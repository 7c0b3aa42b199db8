// Package process runs one MediaItem through log lookup, validation of any existing file, download, validation of
// the result, and hand-off to transcription.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	la "github.com/alanbriolat/lecture-archiver"
	"github.com/alanbriolat/lecture-archiver/internal/fetch"
	"github.com/alanbriolat/lecture-archiver/internal/transcribe"
)

var (
	ErrSizeMismatch = errors.New("downloaded size does not match expected size")
	ErrCorruptMedia = errors.New("downloaded file is not decodable")
)

type Recorder interface {
	Contains(path string) bool
	Record(path string) (bool, error)
}

type Checker interface {
	SizeMatches(path string, expected la.ExpectedSize) bool
	IsDecodable(ctx context.Context, path string) bool
	Validate(ctx context.Context, path string, expected la.ExpectedSize) bool
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, path string, expected la.ExpectedSize) (fetch.Result, error)
}

type Processor struct {
	fs          afero.Fs
	recorder    Recorder
	checker     Checker
	fetcher     Fetcher
	transcriber transcribe.Transcriber
	db          Database
	logger      *zap.Logger
	now         func() time.Time
}

func New(
	fs afero.Fs,
	recorder Recorder,
	checker Checker,
	fetcher Fetcher,
	transcriber transcribe.Transcriber,
	db Database,
	logger *zap.Logger,
) *Processor {
	if db == nil {
		db = NilDatabase{}
	}
	return &Processor{
		fs:          fs,
		recorder:    recorder,
		checker:     checker,
		fetcher:     fetcher,
		transcriber: transcriber,
		db:          db,
		logger:      logger.Named("process"),
		now:         time.Now,
	}
}

// Process never fails as a whole: every problem ends the item in the Skipped state with the reason in the Outcome.
func (p *Processor) Process(ctx context.Context, item la.MediaItem) Outcome {
	logger := p.logger.With(zap.String("item", item.Key()), zap.String("path", item.Path))
	ctx = la.WithLogger(ctx, logger)
	outcome := Outcome{Item: item}
	state := CheckLog

	for state != Done && state != Skipped {
		logger.Debug("entering state", zap.Stringer("state", state))
		switch state {
		case CheckLog:
			state = p.checkLog(logger, item, &outcome)
		case ValidateExisting:
			state = p.validateExisting(ctx, logger, item)
		case Download:
			state = p.download(ctx, logger, item, &outcome)
		case ValidateResult:
			state = p.validateResult(ctx, logger, item, &outcome)
		case Transcribe:
			if err := p.transcriber.Transcribe(ctx, item.Path, item.Course); err != nil {
				logger.Warn("transcription hand-off failed", zap.Error(err))
			}
			outcome.Terminal = Validated
			state = Done
		default:
			panic(fmt.Sprintf("invalid state %d", state))
		}
	}

	outcome.State = state
	p.persist(logger, outcome)
	return outcome
}

func (p *Processor) checkLog(logger *zap.Logger, item la.MediaItem, outcome *Outcome) State {
	if p.recorder.Contains(item.Path) {
		logger.Info("already passed validation, skipping checks")
		outcome.FromLog = true
		return Transcribe
	}
	if exists, _ := afero.Exists(p.fs, item.Path); exists {
		return ValidateExisting
	}
	return Download
}

func (p *Processor) validateExisting(ctx context.Context, logger *zap.Logger, item la.MediaItem) State {
	if p.checker.Validate(ctx, item.Path, item.Expected) {
		logger.Info("existing file passed validation")
		p.record(logger, item.Path)
		return Transcribe
	}
	logger.Info("existing file failed validation, downloading again")
	p.remove(logger, item.Path)
	return Download
}

func (p *Processor) download(ctx context.Context, logger *zap.Logger, item la.MediaItem, outcome *Outcome) State {
	result, err := p.fetcher.Fetch(ctx, item.URL, item.Path, item.Expected)
	outcome.Transferred = result.Transferred
	if !result.OK() {
		if err == nil {
			err = fmt.Errorf("%w: empty download", fetch.ErrTransient)
		}
		logger.Info("download failed", zap.Error(err))
		outcome.Terminal = DownloadFailed
		outcome.Err = err
		return Skipped
	}
	return ValidateResult
}

func (p *Processor) validateResult(ctx context.Context, logger *zap.Logger, item la.MediaItem, outcome *Outcome) State {
	if !p.checker.SizeMatches(item.Path, item.Expected) {
		// Treated as never downloaded; the file is fetched again on the next sweep
		p.remove(logger, item.Path)
		outcome.Terminal = DownloadFailed
		outcome.Err = ErrSizeMismatch
		return Skipped
	}
	if !p.checker.IsDecodable(ctx, item.Path) {
		logger.Info("downloaded file is not decodable, skipping transcription")
		p.remove(logger, item.Path)
		outcome.Terminal = FailedValidation
		outcome.Err = ErrCorruptMedia
		return Skipped
	}
	p.record(logger, item.Path)
	return Transcribe
}

// record only logs failures; an unrecorded file is validated again on the next sweep.
func (p *Processor) record(logger *zap.Logger, path string) {
	if _, err := p.recorder.Record(path); err != nil {
		logger.Error("failed to record validation pass", zap.Error(err))
	}
}

func (p *Processor) remove(logger *zap.Logger, path string) {
	if err := p.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to delete file", zap.Error(err))
	}
}

func (p *Processor) persist(logger *zap.Logger, outcome Outcome) {
	record := outcome.Record(p.now())
	if previous, ok, err := p.db.GetItem(record.Path); err != nil {
		logger.Warn("failed to read item record", zap.Error(err))
	} else if ok {
		record.Attempts = previous.Attempts
	}
	record.Attempts++
	if err := p.db.WriteItem(&record); err != nil {
		logger.Warn("failed to write item record", zap.Error(err))
	}
}
