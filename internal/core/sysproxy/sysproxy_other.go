//go:build !linux && !darwin

package sysproxy

import pkgerrors "hunter/pkg/errors"

func platformBackend(runner CommandRunner) backend {
	return unsupported{err: pkgerrors.ErrUnsupportedPlatform}
}
