package ioutil

import (
	"fmt"
	"io"
)

// ErrorBodyLimit bounds how much of an upstream error body ends up in an
// error message.
const ErrorBodyLimit = 512

// ReadLimited reads up to limit bytes from r and returns the content as a string.
// If reading fails, returns a string describing the read failure instead of silencing
// the error. This is intended for including response bodies in error messages and logs.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	if int64(len(body)) == limit {
		return string(body) + "..."
	}
	return string(body)
}
