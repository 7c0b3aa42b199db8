package integrity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	la "github.com/alanbriolat/lecture-archiver"
)

var ErrNoFrame = errors.New("no frame decoded")

// FFProbe decodes the first video frame with an external ffprobe binary. It only works on the OS filesystem.
type FFProbe struct {
	Binary string
}

func NewFFProbe(binary string) *FFProbe {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFProbe{Binary: binary}
}

func (p *FFProbe) args(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-read_intervals", "%+#1",
		"-show_entries", "frame=pict_type",
		"-of", "csv=p=0",
		path,
	}
}

func (p *FFProbe) Probe(ctx context.Context, path string) error {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Binary, p.args(path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	la.Logger(ctx).Debug("running ffprobe", zap.Stringer("cmd", cmd))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffprobe %s: %w: %s", path, err, bytes.TrimSpace(stderr.Bytes()))
	}
	if len(bytes.TrimSpace(stdout.Bytes())) == 0 {
		return fmt.Errorf("ffprobe %s: %w", path, ErrNoFrame)
	}
	return nil
}
