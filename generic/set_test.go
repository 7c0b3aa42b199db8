package generic

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	assert := assert_.New(t)

	s := NewSet[string]()
	assert.Equal(0, s.Count())
	assert.False(s.Contains("aali/aali_01.mp4"))
	assert.True(s.Add("aali/aali_01.mp4"))
	assert.False(s.Add("aali/aali_01.mp4"))
	assert.Equal(1, s.Count())
	assert.True(s.Contains("aali/aali_01.mp4"))
	assert.True(s.Remove("aali/aali_01.mp4"))
	assert.False(s.Remove("aali/aali_01.mp4"))
	assert.Equal(0, s.Count())

	s = NewSet("b", "c", "a", "b")
	assert.Equal(3, s.Count())
	assert.Equal([]string{"a", "b", "c"}, s.Sorted(func(a, b string) bool { return a < b }))
	assert.ElementsMatch([]string{"a", "b", "c"}, s.ToSlice())

	s.Clear()
	assert.Equal(0, s.Count())
	assert.True(s.Add("a"))
}

func TestSetOfPointers(t *testing.T) {
	assert := assert_.New(t)

	type sub struct{ name string }
	a, b := &sub{"a"}, &sub{"a"}
	s := NewSet(a)
	assert.True(s.Contains(a))
	assert.False(s.Contains(b), "pointers compare by identity")
	assert.True(s.Add(b))
	assert.Equal(2, s.Count())
}
