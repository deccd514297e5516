package assembler

import (
	"regexp"
	"strconv"
)

var imageName = regexp.MustCompile(`^img_([0-9]{3})\.(jpg|png|jpeg)$`)

// ParseImageName returns the index encoded in a scan image file name.
//
// Returns:
//   - int: The three-digit index (0..999)
//   - bool: false when name is not a scan image
func ParseImageName(name string) (int, bool) {
	m := imageName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}

	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}

	return index, true
}
