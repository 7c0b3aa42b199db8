package async

// Run calls f in a new goroutine, delivering its result on the returned channel.
func Run[T any](f func() T) <-chan T {
	c := make(chan T, 1)
	go func() {
		c <- f()
	}()
	return c
}
