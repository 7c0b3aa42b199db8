package config

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/alanbriolat/lecture-archiver/generic"
)

// ByteSize is an optional byte count written in human form, e.g. "15GiB" or "2 GB". "unlimited" or an empty value
// means no limit.
type ByteSize struct {
	generic.Option[int64]
}

func Bytes(n int64) ByteSize {
	return ByteSize{generic.Some(n)}
}

func Unlimited() ByteSize {
	return ByteSize{generic.None[int64]()}
}

func ParseByteSize(s string) (ByteSize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unlimited", "none":
		return Unlimited(), nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return ByteSize{}, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return Bytes(int64(n)), nil
}

func (b ByteSize) String() string {
	if n, ok := b.Get(); ok {
		return humanize.IBytes(uint64(n))
	}
	return "unlimited"
}

func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// Set implements flag.Value, so a ByteSize can back a CLI flag.
func (b *ByteSize) Set(s string) error {
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
