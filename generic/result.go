package generic

// Result carries either a value or an error, e.g. across a channel.
type Result[T any] struct {
	Value T
	Error error
}

// Ok wraps a value as a successful Result[T].
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Err wraps an error as a failed Result[T].
func Err[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

func (r Result[T]) IsErr() bool {
	return r.Error != nil
}

// Parts splits the Result[T] back into a (T, error) pair.
func (r Result[T]) Parts() (T, error) {
	return r.Value, r.Error
}
