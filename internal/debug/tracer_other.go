//go:build !linux

package debug

import "errors"

func tracerPID() (int, error) {
	return 0, errors.New("debugger detection not supported on this platform")
}
