package lecture_archiver

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestParseCourseID(t *testing.T) {
	assert := assert_.New(t)

	c, err := ParseCourseID("  aali \n")
	assert.Nil(err)
	assert.Equal(CourseID("aali"), c)

	for _, s := range []string{"", "  ", ".", "..", "a/b", `a\b`} {
		_, err := ParseCourseID(s)
		assert.ErrorIs(err, ErrInvalidCourseID, s)
	}
}

func TestParseClassNumber(t *testing.T) {
	assert := assert_.New(t)

	n, err := ParseClassNumber("7")
	assert.Nil(err)
	assert.Equal(ClassNumber(7), n)
	assert.Equal("07", n.String())

	n, err = ParseClassNumber("012")
	assert.Nil(err)
	assert.Equal("12", n.String())

	for _, s := range []string{"", "x1", "-1", "1.5", "1 2"} {
		_, err := ParseClassNumber(s)
		assert.ErrorIs(err, ErrInvalidClassNumber, s)
	}
}

func TestExpectedSize(t *testing.T) {
	assert := assert_.New(t)

	known := KnownSize(100)
	assert.True(known.IsKnown())
	assert.True(known.Matches(100))
	assert.False(known.Matches(99))
	assert.False(known.Matches(101))
	assert.Equal(int64(40), known.Remaining(60))
	assert.Equal(int64(0), known.Remaining(100))
	assert.Equal(int64(0), known.Remaining(500))
	assert.Equal("100", known.String())

	// A zero known size is still a real size
	assert.False(KnownSize(0).Matches(500))

	for _, e := range []ExpectedSize{AbsentSize(), UnknownSize()} {
		assert.False(e.IsKnown())
		assert.True(e.Matches(500))
		assert.Equal(int64(0), e.Remaining(10))
	}
	assert.Equal("absent", AbsentSize().String())
	assert.Equal("unknown", UnknownSize().String())
}

func TestLayout(t *testing.T) {
	assert := assert_.New(t)

	l := NewLayout()
	l.Root = filepath.Join("db", "opens")
	item := l.Item("aali", 3, KnownSize(10))
	assert.Equal("https://open.fing.edu.uy/media/aali/aali_03.mp4", item.URL)
	assert.Equal(filepath.Join("db", "opens", "aali", "aali_03.mp4"), item.Path)
	assert.Equal(filepath.Join("db", "opens", "aali", "classes.txt"), l.ManifestPath("aali"))
	assert.Equal("aali/03", item.Key())

	// No usable file name in the URL falls back to the conventional name
	l.BaseURL = "https://example.com/{course}/{nn}/"
	assert.Equal(filepath.Join("db", "opens", "gal1", "gal1_12.mp4"), l.ItemPath("gal1", 12))
	assert.True(strings.HasSuffix(l.ItemURL("gal1", 12), "/gal1/12/"))
}

func TestLoggerContext(t *testing.T) {
	assert := assert_.New(t)

	logger := zap.NewNop()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(logger, Logger(ctx))
	assert.NotNil(Logger(context.Background()))
}

func TestContextReader(t *testing.T) {
	assert := assert_.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	r := NewContextReader(ctx, strings.NewReader("abcdef"))
	buf := make([]byte, 3)
	n, err := r.Read(buf)
	assert.Nil(err)
	assert.Equal(3, n)
	cancel()
	_, err = r.Read(buf)
	assert.ErrorIs(err, context.Canceled)
}
