//go:build unix

package debug

import (
	"os"
	"os/signal"
	"syscall"
)

// EnableInProcessStackDumping writes every goroutine's stack to stderr each
// time the process receives SIGUSR1, without terminating it. The returned
// func stops the handler.
func EnableInProcessStackDumping() (stop func()) {
	return startStackDumper(os.Stderr, func(ch chan<- os.Signal) {
		signal.Notify(ch, syscall.SIGUSR1)
	})
}
