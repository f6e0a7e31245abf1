//go:build unix

package daemon

import (
	"os"
	"syscall"

	pkgerrors "github.com/pkg/errors"
)

// execSelf replaces the process with a fresh copy of the same binary.
var execSelf = func() error {
	exe, err := os.Executable()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to locate executable")
	}
	return pkgerrors.Wrapf(syscall.Exec(exe, os.Args, os.Environ()), "failed to exec %s", exe)
}
