package transcribe

import (
	"context"
	"errors"

	"go.uber.org/zap"

	la "github.com/alanbriolat/lecture-archiver"
	"github.com/alanbriolat/lecture-archiver/internal/pubsub"
	sync_ "github.com/alanbriolat/lecture-archiver/internal/sync"
)

var ErrQueueClosed = errors.New("transcription queue closed")

type Job struct {
	Path   string
	Course la.CourseID
}

type QueueStats struct {
	Completed int
	Failed    int
}

// Queue feeds jobs from any number of producers to one goroutine, so transcriptions never overlap.
type Queue struct {
	ctx         context.Context
	transcriber Transcriber
	jobs        pubsub.Channel[Job]
	stats       *sync_.Mutexed[QueueStats]
	done        *sync_.Event
	logger      *zap.Logger
}

// NewQueue starts the consumer. Submit blocks once bufSize jobs are waiting.
func NewQueue(ctx context.Context, transcriber Transcriber, bufSize int, logger *zap.Logger) *Queue {
	q := &Queue{
		ctx:         ctx,
		transcriber: transcriber,
		jobs:        pubsub.NewChannel[Job](bufSize),
		stats:       sync_.NewMutexed(QueueStats{}),
		done:        sync_.NewEvent(),
		logger:      logger.Named("transcribe"),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.done.Set()
	for job := range q.jobs.Receive() {
		err := q.transcriber.Transcribe(q.ctx, job.Path, job.Course)
		if err != nil {
			q.logger.Error("failed to transcribe", zap.String("path", job.Path), zap.Error(err))
		}
		_ = q.stats.Locked(func(stats *QueueStats) error {
			if err != nil {
				stats.Failed++
			} else {
				stats.Completed++
			}
			return nil
		})
	}
}

// Submit enqueues a job, returning false if the queue is closed.
func (q *Queue) Submit(path string, course la.CourseID) bool {
	return q.jobs.Send(Job{Path: path, Course: course})
}

// Transcribe lets the queue stand in for a Transcriber: the job is enqueued and the call returns immediately.
func (q *Queue) Transcribe(_ context.Context, path string, course la.CourseID) error {
	if !q.Submit(path, course) {
		return ErrQueueClosed
	}
	return nil
}

func (q *Queue) Stats() QueueStats {
	return q.stats.Get()
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (q *Queue) Close() {
	q.jobs.Close()
	<-q.done.Wait()
}
