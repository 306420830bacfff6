//go:build !darwin && !linux

package device

import (
	"errors"
	"runtime"
)

func platformID() (string, error) {
	return "", errors.New("no machine identifier on " + runtime.GOOS)
}
