//go:build !unix

package debug

import "os"

// EnableInProcessStackDumping is a no-op without SIGUSR1.
func EnableInProcessStackDumping() (stop func()) {
	return startStackDumper(os.Stderr, func(chan<- os.Signal) {})
}
