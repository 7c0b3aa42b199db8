package catalog

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	assert_ "github.com/stretchr/testify/assert"

	la "github.com/alanbriolat/lecture-archiver"
)

func TestFileSource(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	layout := la.Layout{BaseURL: la.DefaultBaseURL, Root: "opens"}

	assert.NoError(afero.WriteFile(fs, "courses.txt", []byte("gal1\n\n  aali \ngal1\nfis2\n"), 0644))
	assert.NoError(afero.WriteFile(fs, "opens/gal1/classes.txt", []byte("1\n02\nintro\n\n 3 \n4b\n10\n"), 0644))

	source := NewFileSource(fs, layout, "courses.txt")
	courses, err := source.Courses(ctx)
	assert.NoError(err)
	assert.Equal([]la.CourseID{"gal1", "aali", "fis2"}, courses)

	classes, err := source.Classes(ctx, "gal1")
	assert.NoError(err)
	assert.Equal([]la.ClassNumber{1, 2, 3, 10}, classes)

	_, err = source.Classes(ctx, "aali")
	assert.ErrorIs(err, ErrMissingManifest)
}

func TestFileSource_Errors(t *testing.T) {
	assert := assert_.New(t)
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	source := NewFileSource(fs, la.NewLayout(), "")
	_, err := source.Courses(ctx)
	assert.Error(err)

	assert.NoError(afero.WriteFile(fs, DefaultCoursesFile, []byte("gal1\n../etc\n"), 0644))
	_, err = source.Courses(ctx)
	assert.ErrorIs(err, la.ErrInvalidCourseID)
}

func TestStatic(t *testing.T) {
	assert := assert_.New(t)
	fs := afero.NewMemMapFs()
	assert.NoError(afero.WriteFile(fs, "opens/x/classes.txt", []byte("7\n"), 0644))

	source := Static{Source: NewFileSource(fs, la.Layout{Root: "opens"}, "unused.txt"), Only: []la.CourseID{"x"}}
	courses, err := source.Courses(context.Background())
	assert.NoError(err)
	assert.Equal([]la.CourseID{"x"}, courses)
	classes, err := source.Classes(context.Background(), "x")
	assert.NoError(err)
	assert.Equal([]la.ClassNumber{7}, classes)
}
