package integrity

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/spf13/afero"
	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	la "github.com/alanbriolat/lecture-archiver"
)

func box(typ string, payloads ...[]byte) []byte {
	size := 8
	for _, p := range payloads {
		size += len(p)
	}
	out := binary.BigEndian.AppendUint32(nil, uint32(size))
	out = append(out, typ...)
	for _, p := range payloads {
		out = append(out, p...)
	}
	return out
}

func u32s(values ...uint32) []byte {
	var out []byte
	for _, v := range values {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	return out
}

// buildMP4 lays out ftyp, moov, mdat with one track whose first chunk points at the start of mdat's payload.
func buildMP4(sampleCount uint32, sampleSizes ...uint32) []byte {
	ftyp := box("ftyp", []byte("isom"), u32s(0x200), []byte("isommp41"))
	moov := func(chunkOffset uint32) []byte {
		stsz := box("stsz", u32s(0, 0, sampleCount), u32s(sampleSizes...))
		stco := box("stco", u32s(0, 1, chunkOffset))
		return box("moov", box("trak", box("mdia", box("minf", box("stbl", stsz, stco)))))
	}
	offset := uint32(len(ftyp) + len(moov(0)) + 8)
	var total uint32
	for _, s := range sampleSizes {
		total += s
	}
	mdat := box("mdat", make([]byte, total))
	out := append([]byte{}, ftyp...)
	out = append(out, moov(offset)...)
	return append(out, mdat...)
}

func TestMP4Prober(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	prober := NewMP4Prober(fs)

	good := buildMP4(2, 16, 8)
	require.NoError(afero.WriteFile(fs, "good.mp4", good, 0644))
	assert.NoError(prober.Probe(ctx, "good.mp4"))

	// Cut inside the first sample
	require.NoError(afero.WriteFile(fs, "truncated.mp4", good[:len(good)-20], 0644))
	assert.Error(prober.Probe(ctx, "truncated.mp4"))

	// Cut inside the container header
	require.NoError(afero.WriteFile(fs, "header.mp4", good[:40], 0644))
	assert.Error(prober.Probe(ctx, "header.mp4"))

	require.NoError(afero.WriteFile(fs, "empty-track.mp4", buildMP4(0), 0644))
	assert.ErrorIs(prober.Probe(ctx, "empty-track.mp4"), ErrNoSamples)

	require.NoError(afero.WriteFile(fs, "text.mp4", []byte("this is not a video file"), 0644))
	assert.Error(prober.Probe(ctx, "text.mp4"))

	assert.Error(prober.Probe(ctx, "missing.mp4"))
}

type countingProber struct {
	calls int
	err   error
}

func (p *countingProber) Probe(context.Context, string) error {
	p.calls++
	return p.err
}

func TestChecker_Validate(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	assert.NoError(afero.WriteFile(fs, "a.mp4", make([]byte, 100), 0644))

	prober := &countingProber{}
	checker := NewChecker(fs, prober, zaptest.NewLogger(t))

	assert.True(checker.Validate(ctx, "a.mp4", la.KnownSize(100)))
	assert.Equal(1, prober.calls)

	// Size mismatch short-circuits before the probe
	assert.False(checker.Validate(ctx, "a.mp4", la.KnownSize(101)))
	assert.Equal(1, prober.calls)

	// Sizes that are not known fall back to the probe alone
	assert.True(checker.Validate(ctx, "a.mp4", la.AbsentSize()))
	assert.True(checker.Validate(ctx, "a.mp4", la.UnknownSize()))
	assert.Equal(3, prober.calls)

	prober.err = errors.New("broken")
	assert.False(checker.Validate(ctx, "a.mp4", la.KnownSize(100)))
	assert.False(checker.IsDecodable(ctx, "a.mp4"))

	assert.False(checker.SizeMatches("missing.mp4", la.UnknownSize()))
	assert.True(checker.SizeMatches("a.mp4", la.UnknownSize()))
}

func TestNewProber(t *testing.T) {
	assert := assert_.New(t)
	fs := afero.NewMemMapFs()

	p, err := NewProber("", fs)
	assert.NoError(err)
	assert.IsType(&MP4Prober{}, p)
	p, err = NewProber("ffprobe", fs)
	assert.NoError(err)
	assert.IsType(&FFProbe{}, p)
	_, err = NewProber("opencv", fs)
	assert.Error(err)
}

func TestFFProbe(t *testing.T) {
	assert := assert_.New(t)

	p := NewFFProbe("")
	assert.Equal("ffprobe", p.Binary)
	args := p.args("/videos/a.mp4")
	assert.Contains(args, "%+#1")
	assert.Equal("/videos/a.mp4", args[len(args)-1])

	p = NewFFProbe("/nonexistent/ffprobe")
	assert.Error(p.Probe(context.Background(), "a.mp4"))
}
