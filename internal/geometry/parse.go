package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseShape parses "x,y,w,h" into a Shape.
func ParseShape(value string) (Shape, error) {
	parts := strings.Split(strings.TrimSpace(value), ",")
	if len(parts) != 4 {
		return Shape{}, fmt.Errorf("invalid shape %q: want x,y,w,h", value)
	}

	var nums [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Shape{}, fmt.Errorf("invalid shape %q: %w", value, err)
		}
		nums[i] = n
	}
	if nums[2] < 0 || nums[3] < 0 {
		return Shape{}, fmt.Errorf("invalid shape %q: negative size", value)
	}
	return Shape{X: nums[0], Y: nums[1], W: nums[2], H: nums[3]}, nil
}
