package lecture_archiver

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/alanbriolat/lecture-archiver/util"
)

const (
	DefaultBaseURL      = "https://open.fing.edu.uy/media/{course}/{course}_{nn}.mp4"
	DefaultRoot         = "DB/Opens"
	ManifestFilename    = "classes.txt"
	placeholderCourse   = "{course}"
	placeholderClassNum = "{nn}"
)

// Layout is the single place where item URLs and on-disk paths are built.
type Layout struct {
	// BaseURL is a URL template containing {course} and {nn} placeholders.
	BaseURL string
	// Root is the directory holding one sub-directory per course.
	Root string
}

func NewLayout() Layout {
	return Layout{
		BaseURL: DefaultBaseURL,
		Root:    DefaultRoot,
	}
}

func (l Layout) CourseDir(course CourseID) string {
	return filepath.Join(l.Root, course.String())
}

func (l Layout) ManifestPath(course CourseID) string {
	return filepath.Join(l.CourseDir(course), ManifestFilename)
}

func (l Layout) ItemURL(course CourseID, class ClassNumber) string {
	r := strings.NewReplacer(
		placeholderCourse, course.String(),
		placeholderClassNum, class.String(),
	)
	return r.Replace(l.BaseURL)
}

// ItemPath places the item in its course directory, named after the last element of its URL when that has an
// extension, and <course>_<nn>.mp4 otherwise.
func (l Layout) ItemPath(course CourseID, class ClassNumber) string {
	filename, err := util.FilenameFromURLString(l.ItemURL(course, class))
	if err != nil || path.Ext(filename) == "" {
		filename = course.String() + "_" + class.String() + ".mp4"
	}
	return filepath.Join(l.CourseDir(course), filename)
}

func (l Layout) Item(course CourseID, class ClassNumber, expected ExpectedSize) MediaItem {
	return MediaItem{
		Course:   course,
		Class:    class,
		URL:      l.ItemURL(course, class),
		Path:     l.ItemPath(course, class),
		Expected: expected,
	}
}
