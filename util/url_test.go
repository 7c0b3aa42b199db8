package util

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestFilenameFromURLString(t *testing.T) {
	assert := assert_.New(t)

	name, err := FilenameFromURLString("https://open.fing.edu.uy/media/aali/aali_03.mp4")
	assert.Nil(err)
	assert.Equal("aali_03.mp4", name)

	name, err = FilenameFromURLString("https://example.com/a/b/video.mp4/")
	assert.Nil(err)
	assert.Equal("video.mp4", name)

	for _, s := range []string{"https://example.com/", "https://example.com/..", "https://example.com/a/...", ""} {
		_, err = FilenameFromURLString(s)
		assert.ErrorIs(err, ErrNoFilename, s)
	}
}
