// Package sniff classifies file content as text or binary for transport encoding.
//
// The check is a heuristic (a NUL byte in the head of the file), not a MIME detector.
package sniff

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// HeadSize is the number of leading bytes inspected.
const HeadSize = 1024

type Class int

const (
	Text Class = iota
	Binary
)

func (c Class) String() string {
	if c == Binary {
		return "binary"
	}
	return "text"
}

// Classify inspects the first HeadSize bytes of the file at path. Any read failure
// classifies the file as Binary so callers fall back to opaque transport.
func Classify(path string) Class {
	f, err := os.Open(path)
	if err != nil {
		return Binary
	}
	defer f.Close()

	buf := make([]byte, HeadSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Binary
	}
	return ClassifyBytes(buf[:n])
}

// ClassifyBytes applies the same rule to an in-memory head.
func ClassifyBytes(head []byte) Class {
	if len(head) > HeadSize {
		head = head[:HeadSize]
	}
	if bytes.IndexByte(head, 0x00) >= 0 {
		return Binary
	}
	return Text
}
