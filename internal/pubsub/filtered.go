package pubsub

// NewFilteredSender forwards to s only the messages for which keep returns true. A nil keep forwards everything.
// Closing either side closes both.
func NewFilteredSender[T any](s SenderCloser[T], keep func(T) bool) SenderCloser[T] {
	return &filteredSender[T]{SenderCloser: s, keep: keep}
}

type filteredSender[T any] struct {
	SenderCloser[T]
	keep func(T) bool
}

// Send reports a dropped message as accepted; it only returns false once the sender is closed.
func (s *filteredSender[T]) Send(msg T) bool {
	select {
	case <-s.Closed():
		return false
	default:
	}
	if s.keep != nil && !s.keep(msg) {
		return true
	}
	return s.SenderCloser.Send(msg)
}
