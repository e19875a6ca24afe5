package multiprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/logging"
)

func init() {
	Register("ExitSeven", func() int { return 7 })
	Register("EchoSwitch", func() int {
		cl := cmdline.ForCurrentProcess()
		fmt.Printf("color=%s args=%s\n", cl.SwitchValue("color"), strings.Join(cl.Args(), ","))
		if cl.HasSwitch(cmdline.TestLauncherOutput) {
			return 3
		}
		return 0
	})
}

func TestMain(m *testing.M) {
	cmdline.Init(os.Args)
	if name := ChildProcessName(); name != "" {
		os.Exit(InvokeChildProcessTest(name))
	}
	os.Exit(m.Run())
}

func TestSpawnChildReturnsHelperStatus(t *testing.T) {
	cmd, err := SpawnChild(context.Background(), "ExitSeven")
	require.NoError(t, err)
	code, err := ExitCode(cmd)
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestSpawnChildForwardsArguments(t *testing.T) {
	cl := cmdline.ForCurrentProcess()
	cl.AppendSwitchValue(cmdline.TestLauncherOutput, "/nonexistent/out.xml")
	defer cl.RemoveSwitch(cmdline.TestLauncherOutput)

	cmd, err := SpawnChild(context.Background(), "EchoSwitch", "--color=blue", "one", "two")
	require.NoError(t, err)
	var out bytes.Buffer
	cmd.Stdout = &out

	code, err := ExitCode(cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, code, "output switches must not leak into the child")
	assert.Contains(t, out.String(), "color=blue args=one,two")
}

func TestSpawnUnknownChild(t *testing.T) {
	_, err := SpawnChild(context.Background(), "Missing")
	assert.Error(t, err)
}

type exited struct{ code int }

func TestInvokeUnknownIsFatal(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewLogger(logging.DEBUG, false)
	l.SetOutput(&buf)
	prev := logging.SetDefault(l)
	defer logging.SetDefault(prev)
	defer logging.SetExitFunc(func(code int) { panic(exited{code}) })()

	assert.PanicsWithValue(t, exited{1}, func() { InvokeChildProcessTest("Missing") })
	assert.Contains(t, buf.String(), `no child process function registered as "Missing"`)
}

func TestRegisterTwiceIsFatal(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewLogger(logging.DEBUG, false)
	l.SetOutput(&buf)
	prev := logging.SetDefault(l)
	defer logging.SetDefault(prev)
	defer logging.SetExitFunc(func(code int) { panic(exited{code}) })()

	assert.PanicsWithValue(t, exited{1}, func() { Register("ExitSeven", func() int { return 0 }) })
	assert.Contains(t, Names(), "ExitSeven")
}

func TestInvokeInProcess(t *testing.T) {
	assert.Equal(t, 7, InvokeChildProcessTest("ExitSeven"))
}
