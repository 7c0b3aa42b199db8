package lecture_archiver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidCourseID    = errors.New("invalid course identifier")
	ErrInvalidClassNumber = errors.New("invalid class number")
)

// CourseID identifies a course in the catalog, e.g. "aali".
type CourseID string

// ParseCourseID trims s and checks it can safely be used as a URL and path element.
func ParseCourseID(s string) (CourseID, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCourseID, s)
	}
	return CourseID(s), nil
}

func (c CourseID) String() string {
	return string(c)
}

// ClassNumber is the sequence number of a lecture within its course.
type ClassNumber int

// ParseClassNumber accepts only non-empty all-digit strings, matching the manifest format.
func ParseClassNumber(s string) (ClassNumber, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidClassNumber
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClassNumber, s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidClassNumber, err)
	}
	return ClassNumber(n), nil
}

// String formats the class number zero-padded to two digits, as used in URLs and file names.
func (n ClassNumber) String() string {
	return fmt.Sprintf("%02d", int(n))
}

// SizeState says how much is known about the remote size of a MediaItem.
type SizeState int

const (
	// SizeUnknown means the size request itself failed.
	SizeUnknown SizeState = iota
	// SizeAbsent means the server answered but did not report a usable length.
	SizeAbsent
	// SizeKnown means Bytes holds the length reported by the server.
	SizeKnown
)

func (s SizeState) String() string {
	switch s {
	case SizeKnown:
		return "known"
	case SizeAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// ExpectedSize is the expected length of a remote file. Only SizeKnown sizes are used for size checks; the other
// states fall back to validating by decodability alone.
type ExpectedSize struct {
	State SizeState
	Bytes int64
}

func KnownSize(n int64) ExpectedSize {
	return ExpectedSize{State: SizeKnown, Bytes: n}
}

func AbsentSize() ExpectedSize {
	return ExpectedSize{State: SizeAbsent}
}

func UnknownSize() ExpectedSize {
	return ExpectedSize{State: SizeUnknown}
}

// IsKnown reports whether a size check is possible.
func (e ExpectedSize) IsKnown() bool {
	return e.State == SizeKnown
}

// Matches is exact equality for known sizes, and always true otherwise.
func (e ExpectedSize) Matches(actual int64) bool {
	if !e.IsKnown() {
		return true
	}
	return actual == e.Bytes
}

// Remaining is how many bytes are still missing given actual bytes on disk; 0 when the size is not known.
func (e ExpectedSize) Remaining(actual int64) int64 {
	if !e.IsKnown() || actual >= e.Bytes {
		return 0
	}
	return e.Bytes - actual
}

func (e ExpectedSize) String() string {
	if e.IsKnown() {
		return strconv.FormatInt(e.Bytes, 10)
	}
	return e.State.String()
}

// MediaItem is one downloadable lecture video.
type MediaItem struct {
	Course   CourseID
	Class    ClassNumber
	URL      string
	Path     string
	Expected ExpectedSize
}

// Key uniquely identifies the item within a sweep.
func (m MediaItem) Key() string {
	return m.Course.String() + "/" + m.Class.String()
}

func (m MediaItem) String() string {
	return fmt.Sprintf("MediaItem{Course:%q, Class:%s, Path:%q, Expected:%s}", m.Course, m.Class, m.Path, m.Expected)
}
