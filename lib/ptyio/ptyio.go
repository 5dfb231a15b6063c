// Package ptyio reads pseudo-terminal output without blocking shutdown.
package ptyio

import (
	"errors"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	// PollTimeoutMs bounds how long a read waits before re-checking the stop channel.
	PollTimeoutMs = 100

	// MaxTerminalDimension is the largest rows/cols value a PTY accepts.
	MaxTerminalDimension = 65535

	readBufferSize = 32 * 1024
)

// ValidDimensions reports whether cols and rows can be applied to a PTY.
func ValidDimensions(cols, rows int) bool {
	return cols > 0 && rows > 0 && cols <= MaxTerminalDimension && rows <= MaxTerminalDimension
}

// ChunkFunc receives a copy of every chunk read from the PTY. Returning an error stops
// the read loop and the error is returned from Pump.
type ChunkFunc func(chunk []byte) error

// Pump polls the PTY master and hands each chunk to fn until the slave side closes,
// stop is closed, or fn fails. A closed slave (EIO on Linux) ends the loop without error.
func Pump(ptmx *os.File, stop <-chan struct{}, fn ChunkFunc) error {
	fd := int32(ptmx.Fd())
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		pfds := []unix.PollFd{{Fd: fd, Events: unix.POLLIN}}
		if _, err := unix.Poll(pfds, PollTimeoutMs); err != nil && !errors.Is(err, syscall.EINTR) {
			return err
		}
		if pfds[0].Revents&unix.POLLNVAL != 0 {
			return nil
		}
		if pfds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}

		n, rerr := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := fn(chunk); err != nil {
				return err
			}
		}
		if rerr != nil {
			switch {
			case errors.Is(rerr, io.EOF), errors.Is(rerr, syscall.EIO), errors.Is(rerr, os.ErrClosed):
				return nil
			case errors.Is(rerr, syscall.EAGAIN):
				continue
			}
			return rerr
		}
	}
}
