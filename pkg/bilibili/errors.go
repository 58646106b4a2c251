package bilibili

import "fmt"

// RangeError is returned when the part isn't one of the video
type RangeError struct {
	Part  int
	Count int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("part %d out of range 1..%d", e.Part, e.Count)
}
