package integrity

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/abema/go-mp4"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	la "github.com/alanbriolat/lecture-archiver"
)

var (
	ErrNoTrack   = errors.New("no track found")
	ErrNoSamples = errors.New("track has no samples")
)

// MP4Prober reads the first sample of the first track of an ISO-BMFF file. If the sample table can be parsed and
// the sample's bytes are all present on disk, the file is treated as decodable.
type MP4Prober struct {
	fs afero.Fs
}

func NewMP4Prober(fs afero.Fs) *MP4Prober {
	return &MP4Prober{fs: fs}
}

func sampleTablePath(leaf mp4.BoxType) mp4.BoxPath {
	return mp4.BoxPath{mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl(), leaf}
}

func (p *MP4Prober) Probe(ctx context.Context, path string) error {
	f, err := p.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	offset, size, err := firstSample(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < offset+size {
		return fmt.Errorf("%s: first sample truncated at %d of %d bytes: %w", path, info.Size(), offset+size, io.ErrUnexpectedEOF)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.ReadFull(io.NewSectionReader(f, offset, size), make([]byte, size)); err != nil {
		return fmt.Errorf("%s: cannot read first sample: %w", path, err)
	}
	la.Logger(ctx).Debug("read first sample", zap.Int64("offset", offset), zap.Int64("size", size))
	return nil
}

func firstSample(r io.ReadSeeker) (offset int64, size int64, err error) {
	traks, err := mp4.ExtractBox(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeTrak()})
	if err != nil {
		return 0, 0, fmt.Errorf("cannot parse container: %w", err)
	}
	if len(traks) == 0 {
		return 0, 0, ErrNoTrack
	}
	boxes, err := mp4.ExtractBoxesWithPayload(r, traks[0], []mp4.BoxPath{
		sampleTablePath(mp4.BoxTypeStsz()),
		sampleTablePath(mp4.BoxTypeStco()),
		sampleTablePath(mp4.BoxTypeCo64()),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("cannot parse sample table: %w", err)
	}

	size, offset = -1, -1
	for _, box := range boxes {
		switch payload := box.Payload.(type) {
		case *mp4.Stsz:
			if payload.SampleCount == 0 {
				return 0, 0, ErrNoSamples
			}
			if payload.SampleSize != 0 {
				size = int64(payload.SampleSize)
			} else if len(payload.EntrySize) > 0 {
				size = int64(payload.EntrySize[0])
			}
		case *mp4.Stco:
			if len(payload.ChunkOffset) > 0 {
				offset = int64(payload.ChunkOffset[0])
			}
		case *mp4.Co64:
			if len(payload.ChunkOffset) > 0 {
				offset = int64(payload.ChunkOffset[0])
			}
		}
	}
	if size < 0 || offset < 0 {
		return 0, 0, ErrNoSamples
	}
	return offset, size, nil
}
