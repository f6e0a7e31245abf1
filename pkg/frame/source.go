// Package frame produces RGB888 frames for the motion engine.
package frame

import (
	"bytes"
	"context"
	"os/exec"

	pkgerrors "github.com/pkg/errors"

	"github.com/cams3/camnode/pkg/motion"
)

// Source yields one frame per call to Capture.
type Source interface {
	Capture(ctx context.Context) (*motion.Frame, error)
	Close() error
}

// commandFunc runs a command and returns its stdout.
type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, pkgerrors.Wrapf(err, "%s failed: %s", name, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}
