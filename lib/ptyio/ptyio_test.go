package ptyio

import (
	"bytes"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func TestValidDimensions(t *testing.T) {
	require.True(t, ValidDimensions(80, 24))
	require.True(t, ValidDimensions(MaxTerminalDimension, 1))
	require.False(t, ValidDimensions(0, 24))
	require.False(t, ValidDimensions(80, -1))
	require.False(t, ValidDimensions(MaxTerminalDimension+1, 24))
}

func TestPumpReadsUntilSlaveCloses(t *testing.T) {
	t.Parallel()

	cmd := exec.Command("sh", "-c", "printf 'pump-output'")
	ptmx, err := pty.Start(cmd)
	require.NoError(t, err)
	defer ptmx.Close()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- Pump(ptmx, make(chan struct{}), func(chunk []byte) error {
			out.Write(chunk)
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not return after process exit")
	}
	_ = cmd.Wait()
	require.Contains(t, out.String(), "pump-output")
}

func TestPumpStopsOnSignalAndCallbackError(t *testing.T) {
	t.Parallel()

	cmd := exec.Command("sh", "-c", "printf ready; sleep 30")
	ptmx, err := pty.Start(cmd)
	require.NoError(t, err)
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = ptmx.Close()
	}()

	errStop := errors.New("stop here")
	err = Pump(ptmx, make(chan struct{}), func([]byte) error { return errStop })
	require.ErrorIs(t, err, errStop)

	stop := make(chan struct{})
	close(stop)
	require.NoError(t, Pump(ptmx, stop, func([]byte) error { return nil }))
}
