// Package validation keeps the durable record of media files that passed validation. Presence in the log is an
// append-only fact keyed by path: a recorded path is never validated again unless the log is cleared by hand.
package validation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/alanbriolat/lecture-archiver/generic"
)

const DefaultRedisKey = "lecture-archiver:validated"

// Log is a persistent set of known-good file paths. Implementations do no locking of their own; use a Recorder to
// serialize writes.
type Log interface {
	// Loaded returns every path recorded so far; a log that does not exist yet is empty.
	Loaded(ctx context.Context) (generic.Set[string], error)
	// Record appends a path to the log.
	Record(ctx context.Context, path string) error
}

// FileLog is a plain text file with one path per line.
type FileLog struct {
	fs   afero.Fs
	path string
}

func NewFileLog(fs afero.Fs, path string) *FileLog {
	return &FileLog{fs: fs, path: path}
}

func (l *FileLog) Path() string {
	return l.path
}

func (l *FileLog) Loaded(_ context.Context) (generic.Set[string], error) {
	paths := generic.NewSet[string]()
	f, err := l.fs.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return paths, nil
		}
		return nil, fmt.Errorf("failed to open validation log %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			paths.Add(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read validation log %s: %w", l.path, err)
	}
	return paths, nil
}

func (l *FileLog) Record(_ context.Context, path string) error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := l.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create validation log dir: %w", err)
		}
	}
	f, err := l.fs.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open validation log %s: %w", l.path, err)
	}
	if _, err := f.Write([]byte(path + "\n")); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to validation log: %w", err)
	}
	return f.Close()
}

// RedisLog keeps the log as a redis set, so several hosts sweeping the same catalog share one record.
type RedisLog struct {
	cl  *redis.Client
	key string
}

func NewRedisLog(cl *redis.Client, key string) *RedisLog {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLog{cl: cl, key: key}
}

// NewRedisLogFromURL parses a redis:// URL and checks the server is reachable.
func NewRedisLogFromURL(ctx context.Context, url string, key string) (*RedisLog, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	cl := redis.NewClient(opt)
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return NewRedisLog(cl, key), nil
}

func (l *RedisLog) Loaded(ctx context.Context) (generic.Set[string], error) {
	members, err := l.cl.SMembers(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot read validation set %s: %w", l.key, err)
	}
	return generic.NewSet(members...), nil
}

func (l *RedisLog) Record(ctx context.Context, path string) error {
	if err := l.cl.SAdd(ctx, l.key, path).Err(); err != nil {
		return fmt.Errorf("cannot add %s to validation set: %w", path, err)
	}
	return nil
}

func (l *RedisLog) Close() error {
	return l.cl.Close()
}
