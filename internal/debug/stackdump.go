package debug

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
)

// DumpAllStacks writes the stack of every goroutine to w.
func DumpAllStacks(w io.Writer) {
	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}
	fmt.Fprintf(w, "=== goroutine dump (pid %d) ===\n%s\n=== end goroutine dump ===\n", os.Getpid(), buf)
}

func startStackDumper(w io.Writer, notify func(chan<- os.Signal)) (stop func()) {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	notify(ch)
	go func() {
		for {
			select {
			case <-ch:
				DumpAllStacks(w)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
