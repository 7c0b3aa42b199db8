package generic

// Void is a zero-size value, used as the element type of sets and as the value of error-only results.
type Void struct{}

func NewVoid() Void {
	return Void{}
}
