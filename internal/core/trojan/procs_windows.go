//go:build windows

package trojan

import (
	"context"

	pkgerrors "hunter/pkg/errors"
)

// SystemLister is not implemented on Windows.
type SystemLister struct{}

func (SystemLister) List(ctx context.Context) ([]Process, error) {
	return nil, pkgerrors.ErrUnsupportedPlatform
}
