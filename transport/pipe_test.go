package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestPipeRoundTrip(t *testing.T) {
	a, b := Pipe()

	msg := []byte("hello across the pipe")
	n, err := a.Write(msg)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("Write accepted %d bytes, want %d", n, len(msg))
	}

	buf := make([]byte, 64)
	n, err = b.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("Read %q, want %q", buf[:n], msg)
	}
}

func TestPipeEmptyReadWouldBlock(t *testing.T) {
	a, _ := Pipe()

	buf := make([]byte, 16)
	n, err := a.Read(buf)
	if n != 0 {
		t.Fatalf("Read returned %d bytes from empty pipe", n)
	}
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Read error = %v, want ErrWouldBlock", err)
	}
}

func TestPipeFullWriteWouldBlock(t *testing.T) {
	a, b := BufferedPipe(8)

	n, err := a.Write([]byte("0123456789"))
	if err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if n != 8 {
		t.Fatalf("Short write accepted %d bytes, want 8", n)
	}

	if _, err := a.Write([]byte("x")); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Write to full pipe error = %v, want ErrWouldBlock", err)
	}

	// Draining the peer frees capacity again.
	buf := make([]byte, 8)
	if _, err := b.Read(buf); err != nil {
		t.Fatalf("Drain read failed: %v", err)
	}
	if _, err := a.Write([]byte("x")); err != nil {
		t.Fatalf("Write after drain failed: %v", err)
	}
}

func TestPipeCloseSemantics(t *testing.T) {
	a, b := Pipe()

	if _, err := a.Write([]byte("last words")); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	// Buffered data survives the close, then EOF.
	buf := make([]byte, 32)
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("Read of buffered data after close failed: %v", err)
	}
	if string(buf[:n]) != "last words" {
		t.Fatalf("Read %q after close", buf[:n])
	}
	if _, err := b.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("Read after drain error = %v, want io.EOF", err)
	}

	if _, err := b.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Write to closed pipe error = %v, want io.ErrClosedPipe", err)
	}
}

func TestPipeBuffered(t *testing.T) {
	a, b := Pipe()

	if got := b.Buffered(); got != 0 {
		t.Fatalf("Buffered = %d on fresh pipe", got)
	}
	if _, err := a.Write(make([]byte, 100)); err != nil {
		t.Fatal(err)
	}
	if got := b.Buffered(); got != 100 {
		t.Fatalf("Buffered = %d, want 100", got)
	}
}
