package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	la "github.com/alanbriolat/lecture-archiver"
)

const (
	DefaultBinary    = "whisper"
	DefaultModel     = "tiny"
	DefaultOutputDir = "DB/Transcripciones"
)

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Variant is one transcript produced per video.
type Variant struct {
	// Dir is the sub-directory of the course's transcript directory.
	Dir string
	// Language is passed to the model; empty means auto-detect.
	Language string
}

var Variants = []Variant{
	{Dir: "es", Language: "es"},
	{Dir: "ad", Language: ""},
}

// WhisperCLI runs the whisper command line tool once per Variant, writing
// <output>/<course>/<variant>/<stem>_<model>.txt. Transcripts that already exist are not redone.
type WhisperCLI struct {
	fs        afero.Fs
	binary    string
	model     string
	outputDir string
	run       Runner
	logger    *zap.Logger
}

// WhisperOption configures a WhisperCLI; empty strings keep the defaults.
type WhisperOption func(*WhisperCLI)

func WithBinary(binary string) WhisperOption {
	return func(w *WhisperCLI) {
		if binary != "" {
			w.binary = binary
		}
	}
}

func WithModel(model string) WhisperOption {
	return func(w *WhisperCLI) {
		if model != "" {
			w.model = model
		}
	}
}

func WithOutputDir(dir string) WhisperOption {
	return func(w *WhisperCLI) {
		if dir != "" {
			w.outputDir = dir
		}
	}
}

func WithRunner(run Runner) WhisperOption {
	return func(w *WhisperCLI) {
		w.run = run
	}
}

func NewWhisperCLI(fs afero.Fs, logger *zap.Logger, opts ...WhisperOption) *WhisperCLI {
	w := &WhisperCLI{
		fs:        fs,
		binary:    DefaultBinary,
		model:     DefaultModel,
		outputDir: DefaultOutputDir,
		run:       execRunner,
		logger:    logger.Named("transcribe"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WhisperCLI) OutputPath(course la.CourseID, variant Variant, stem string) string {
	return filepath.Join(w.outputDir, course.String(), variant.Dir, stem+"_"+w.model+".txt")
}

func (w *WhisperCLI) Transcribe(ctx context.Context, path string, course la.CourseID) error {
	logger := w.logger.With(zap.String("path", path), zap.Stringer("course", course))
	if _, err := w.fs.Stat(path); err != nil {
		logger.Warn("video file not found")
		return nil
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var result *multierror.Error
	for _, variant := range Variants {
		target := w.OutputPath(course, variant, stem)
		if _, err := w.fs.Stat(target); err == nil {
			logger.Info("transcript already exists, skipping", zap.String("variant", variant.Dir))
			continue
		}
		if err := w.transcribeTo(ctx, path, stem, target, variant.Language); err != nil {
			logger.Error("transcription failed", zap.String("variant", variant.Dir), zap.Error(err))
			result = multierror.Append(result, err)
			continue
		}
		logger.Info("transcription completed", zap.String("variant", variant.Dir), zap.String("model", w.model))
	}
	return result.ErrorOrNil()
}

func (w *WhisperCLI) transcribeTo(ctx context.Context, path, stem, target, language string) error {
	dir := filepath.Dir(target)
	if err := w.fs.MkdirAll(dir, 0775); err != nil {
		return err
	}
	// whisper names its output after the input, so write to a scratch dir and move into place
	scratch, err := afero.TempDir(w.fs, dir, ".whisper-")
	if err != nil {
		return err
	}
	defer func() { _ = w.fs.RemoveAll(scratch) }()

	args := []string{path, "--model", w.model, "--output_format", "txt", "--output_dir", scratch}
	if language != "" {
		args = append(args, "--language", language)
	}
	if err := w.run(ctx, w.binary, args...); err != nil {
		return err
	}
	output := filepath.Join(scratch, stem+".txt")
	if _, err := w.fs.Stat(output); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s produced no transcript for %s", w.binary, path)
	}
	return w.fs.Rename(output, target)
}
