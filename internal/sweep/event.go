package sweep

import (
	"github.com/google/uuid"

	la "github.com/alanbriolat/lecture-archiver"
	"github.com/alanbriolat/lecture-archiver/internal/process"
)

type Event interface {
	// The course this event relates to.
	Course() la.CourseID
}

type courseEvent struct {
	course la.CourseID
}

func (e courseEvent) Course() la.CourseID {
	return e.course
}

type CourseStarted struct {
	courseEvent
	RunID uuid.UUID
	Items int
}
type ItemFinished struct {
	courseEvent
	Outcome    process.Outcome
	FolderSize int64
}
type CourseFinished struct {
	courseEvent
	Report CourseReport
}
