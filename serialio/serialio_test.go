package serialio

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// timeoutReader behaves like a serial port with a read timeout: it hands
// out its data and then reports "nothing yet" forever.
type timeoutReader struct {
	data []byte
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, nil
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func drain(t *testing.T, poll func() (byte, bool, error), want int, limit time.Duration) []byte {
	t.Helper()
	var got []byte
	deadline := time.Now().Add(limit)
	for len(got) < want && time.Now().Before(deadline) {
		b, ok, err := poll()
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if ok {
			got = append(got, b)
		}
	}
	return got
}

func TestPortSource(t *testing.T) {
	src := NewPortSource(&timeoutReader{data: []byte("<OPEN>")})

	got := drain(t, src.Poll, 6, time.Second)
	if string(got) != "<OPEN>" {
		t.Fatalf("bytes = %q, want %q", got, "<OPEN>")
	}

	if _, ok, err := src.Poll(); ok || err != nil {
		t.Errorf("Poll() on idle line = ok %v, err %v; want no byte, no error", ok, err)
	}
}

func TestPortSourceError(t *testing.T) {
	src := NewPortSource(bytes.NewReader(nil))
	if _, _, err := src.Poll(); !errors.Is(err, io.EOF) {
		t.Errorf("Poll() error = %v, want io.EOF", err)
	}
}

func TestStreamSource(t *testing.T) {
	pr, pw := io.Pipe()
	src := NewStreamSource(pr, 5*time.Millisecond)

	// Nothing written yet: Poll must give up after the wait.
	start := time.Now()
	if _, ok, err := src.Poll(); ok || err != nil {
		t.Fatalf("Poll() = ok %v, err %v; want timeout", ok, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Poll() blocked for %v", elapsed)
	}

	go func() {
		pw.Write([]byte("<STOP>"))
		pw.Write([]byte("<OPEN>"))
		pw.Close()
	}()

	got := drain(t, src.Poll, 12, time.Second)
	if string(got) != "<STOP><OPEN>" {
		t.Fatalf("bytes = %q, want %q", got, "<STOP><OPEN>")
	}

	deadline := time.Now().Add(time.Second)
	for {
		_, ok, err := src.Poll()
		if ok {
			t.Fatal("Poll() returned a byte after the stream was drained")
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Poll() error = %v, want io.EOF", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("Poll() never reported io.EOF")
		}
	}
}
