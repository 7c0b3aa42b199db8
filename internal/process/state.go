package process

import (
	"time"

	la "github.com/alanbriolat/lecture-archiver"
)

type State int

const (
	CheckLog State = iota
	ValidateExisting
	Download
	ValidateResult
	Transcribe
	Done
	Skipped
)

func (s State) String() string {
	switch s {
	case CheckLog:
		return "check-log"
	case ValidateExisting:
		return "validate-existing"
	case Download:
		return "download"
	case ValidateResult:
		return "validate-result"
	case Transcribe:
		return "transcribe"
	case Done:
		return "done"
	case Skipped:
		return "skipped"
	default:
		return "invalid"
	}
}

// Terminal is the final outcome of processing an item.
type Terminal string

const (
	Validated        Terminal = "validated"
	FailedValidation Terminal = "failed-validation"
	DownloadFailed   Terminal = "download-failed"
)

type Outcome struct {
	Item     la.MediaItem
	State    State
	Terminal Terminal
	// FromLog is true when the item was already in the validation log.
	FromLog bool
	// Transferred is the number of bytes downloaded, also on failure.
	Transferred int64
	Err         error
}

// ItemRecord is the persisted last outcome for one destination path.
type ItemRecord struct {
	Path          string    `json:"path"`
	Course        string    `json:"course"`
	Class         int       `json:"class"`
	Terminal      Terminal  `json:"terminal"`
	ExpectedState string    `json:"expected_state"`
	ExpectedBytes int64     `json:"expected_bytes"`
	Transferred   int64     `json:"transferred"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (o Outcome) Record(now time.Time) ItemRecord {
	r := ItemRecord{
		Path:          o.Item.Path,
		Course:        o.Item.Course.String(),
		Class:         int(o.Item.Class),
		Terminal:      o.Terminal,
		ExpectedState: o.Item.Expected.State.String(),
		ExpectedBytes: o.Item.Expected.Bytes,
		Transferred:   o.Transferred,
		UpdatedAt:     now,
	}
	if o.Err != nil {
		r.LastError = o.Err.Error()
	}
	return r
}

type Database interface {
	GetItem(path string) (ItemRecord, bool, error)
	ListItems() ([]ItemRecord, error)
	WriteItem(*ItemRecord) error
}

type NilDatabase struct{}

func (d NilDatabase) GetItem(_ string) (ItemRecord, bool, error) {
	return ItemRecord{}, false, nil
}

func (d NilDatabase) ListItems() ([]ItemRecord, error) {
	return nil, nil
}

func (d NilDatabase) WriteItem(_ *ItemRecord) error {
	return nil
}
