package lakecat

import "io"

// closer closes c and stores the close error in *err unless an error is
// already set. Use with defer on named error results.
func closer(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
