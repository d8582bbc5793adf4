package provider

import (
	"fmt"
	"strings"
)

// checkCStrings reports the first argument that cannot be passed as a NUL
// terminated C string.
func checkCStrings(ss ...string) error {
	for i, s := range ss {
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("argument %d contains a NUL byte", i)
		}
	}
	return nil
}
