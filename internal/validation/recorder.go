package validation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/alanbriolat/lecture-archiver/generic"
	"github.com/alanbriolat/lecture-archiver/internal/lpc"
)

var (
	ErrRecorderClosed = errors.New("validation recorder closed")
)

type pathCommand = *lpc.Command[string, bool]
type countCommand = *lpc.Command[generic.Void, int]

// Recorder is the single owner of a Log. One goroutine holds the set of known paths and performs every append, so
// concurrent workers can never interleave lines or record a path twice.
type Recorder struct {
	log       Log
	ctx       context.Context
	ctxCancel context.CancelFunc
	logger    *zap.Logger

	known   generic.Set[string]
	records chan pathCommand
	lookups chan pathCommand
	counts  chan countCommand
	done    chan struct{}
}

// NewRecorder loads the log and starts the owning goroutine; Close must be called to stop it.
func NewRecorder(ctx context.Context, log Log, logger *zap.Logger) (*Recorder, error) {
	known, err := log.Loaded(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Recorder{
		log:       log,
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    logger.Named("validation"),
		known:     known,
		records:   make(chan pathCommand),
		lookups:   make(chan pathCommand),
		counts:    make(chan countCommand),
		done:      make(chan struct{}),
	}
	r.logger.Debug("validation log loaded", zap.Int("paths", known.Count()))
	go r.run()
	return r, nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case cmd := <-r.lookups:
			_ = cmd.Respond(r.known.Contains(cmd.Arg()))
		case cmd := <-r.counts:
			_ = cmd.Respond(r.known.Count())
		case cmd := <-r.records:
			r.record(cmd)
		}
	}
}

func (r *Recorder) record(cmd pathCommand) {
	path := cmd.Arg()
	if r.known.Contains(path) {
		_ = cmd.Respond(false)
		return
	}
	if err := r.log.Record(r.ctx, path); err != nil {
		r.logger.Error("failed to record validation pass", zap.String("path", path), zap.Error(err))
		_ = cmd.RespondError(err)
		return
	}
	r.known.Add(path)
	r.logger.Debug("recorded validation pass", zap.String("path", path))
	_ = cmd.Respond(true)
}

func (r *Recorder) send(ch chan pathCommand, path string) (bool, error) {
	cmd := pathCommand(nil).New(path)
	select {
	case ch <- cmd:
		return cmd.Wait()
	case <-r.done:
		return false, ErrRecorderClosed
	}
}

// Contains reports whether the path already passed validation, in this run or a previous one.
func (r *Recorder) Contains(path string) bool {
	found, err := r.send(r.lookups, path)
	return err == nil && found
}

// Record appends the path to the log unless already present, returning true if a line was written.
func (r *Recorder) Record(path string) (bool, error) {
	added, err := r.send(r.records, path)
	if err != nil {
		return false, fmt.Errorf("cannot record %s: %w", path, err)
	}
	return added, nil
}

// Count is the number of known paths.
func (r *Recorder) Count() int {
	cmd := countCommand(nil).New(generic.NewVoid())
	select {
	case r.counts <- cmd:
	case <-r.done:
		return 0
	}
	count, _ := cmd.Wait()
	return count
}

// Close stops the owning goroutine. Calls after Close fail with ErrRecorderClosed.
func (r *Recorder) Close() {
	r.ctxCancel()
	<-r.done
}
