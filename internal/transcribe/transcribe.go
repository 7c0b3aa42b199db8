// Package transcribe hands validated videos to a speech recognition model. Transcription is slow and the model is
// not safe for concurrent use, so all jobs go through a single-consumer Queue.
package transcribe

import (
	"context"

	"go.uber.org/zap"

	la "github.com/alanbriolat/lecture-archiver"
)

type Transcriber interface {
	Transcribe(ctx context.Context, path string, course la.CourseID) error
}

type TranscriberFunc func(ctx context.Context, path string, course la.CourseID) error

func (f TranscriberFunc) Transcribe(ctx context.Context, path string, course la.CourseID) error {
	return f(ctx, path, course)
}

// Nop only logs what would have been transcribed.
type Nop struct {
	Logger *zap.Logger
}

func (n Nop) Transcribe(_ context.Context, path string, course la.CourseID) error {
	if n.Logger != nil {
		n.Logger.Debug("transcription disabled", zap.String("path", path), zap.Stringer("course", course))
	}
	return nil
}
