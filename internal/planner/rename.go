package planner

import (
	"regexp"
	"strconv"
)

var trailingNumberRE = regexp.MustCompile(`^(.*) (\d+)$`)

// incrementName applies the name-increment rule: find the longest trailing
// numeric suffix after a separating space and increment it; if none is
// present, append " 2".
func incrementName(name string) string {
	if m := trailingNumberRE.FindStringSubmatch(name); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil {
			return m[1] + " " + strconv.Itoa(n+1)
		}
	}

	return name + " 2"
}
