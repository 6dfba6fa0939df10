//go:build unix

package engine

import (
	"errors"

	"golang.org/x/sys/unix"
)

// defaultLiveness probes the pid with signal 0. EPERM still proves the
// process exists.
func defaultLiveness(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
