//go:build !linux

package sockcan

import (
	"errors"
	"io"
)

func openBCM(_ string) (io.ReadWriteCloser, error) {
	return nil, errors.ErrUnsupported
}
