// Package catalog reads the list of courses and the class manifest of each course from the plain text files written
// by the external catalog scraper.
package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"

	la "github.com/alanbriolat/lecture-archiver"
)

const DefaultCoursesFile = "DB/CoursesNames/course_acronyms.txt"

var ErrMissingManifest = errors.New("course manifest not found")

type Source interface {
	Courses(ctx context.Context) ([]la.CourseID, error)
	Classes(ctx context.Context, course la.CourseID) ([]la.ClassNumber, error)
}

type FileSource struct {
	fs          afero.Fs
	layout      la.Layout
	coursesFile string
}

func NewFileSource(fs afero.Fs, layout la.Layout, coursesFile string) *FileSource {
	if coursesFile == "" {
		coursesFile = DefaultCoursesFile
	}
	return &FileSource{fs: fs, layout: layout, coursesFile: coursesFile}
}

// Courses returns the course identifiers in file order, skipping blank lines and duplicates.
func (s *FileSource) Courses(_ context.Context) ([]la.CourseID, error) {
	f, err := s.fs.Open(s.coursesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open course list: %w", err)
	}
	defer f.Close()

	var courses []la.CourseID
	seen := make(map[la.CourseID]bool)
	err = eachLine(f, func(line string) error {
		course, err := la.ParseCourseID(line)
		if err != nil {
			return err
		}
		if !seen[course] {
			seen[course] = true
			courses = append(courses, course)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid course list %s: %w", s.coursesFile, err)
	}
	return courses, nil
}

// Classes returns the class numbers listed in the course manifest. Lines that are not all digits are ignored.
func (s *FileSource) Classes(_ context.Context, course la.CourseID) ([]la.ClassNumber, error) {
	path := s.layout.ManifestPath(course)
	f, err := s.fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingManifest, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	var classes []la.ClassNumber
	err = eachLine(f, func(line string) error {
		if class, err := la.ParseClassNumber(line); err == nil {
			classes = append(classes, class)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return classes, nil
}

func eachLine(r io.Reader, f func(line string) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := f(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Static is a fixed catalog, for running a hand-picked set of courses.
type Static struct {
	Source
	Only []la.CourseID
}

func (s Static) Courses(_ context.Context) ([]la.CourseID, error) {
	return s.Only, nil
}
