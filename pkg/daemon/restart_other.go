//go:build !unix

package daemon

import pkgerrors "github.com/pkg/errors"

var execSelf = func() error {
	return pkgerrors.New("restart is not supported on this platform")
}
