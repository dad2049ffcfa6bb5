package file

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/orcaman/writerseeker"

	"github.com/anuejn/ext4-image-writer/backend"
)

func TestWriteBlockPadsAndPositions(t *testing.T) {
	ws := &writerseeker.WriterSeeker{}
	dev := New(ws)

	if err := dev.WriteBlock(2, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := dev.WriteBlock(0, []byte{0xEF}); err != nil {
		t.Fatal(err)
	}

	out, err := io.ReadAll(ws.Reader())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3*backend.BlockSize {
		t.Fatalf("image is %d bytes, expected %d", len(out), 3*backend.BlockSize)
	}
	if out[0] != 0xEF {
		t.Errorf("block 0 starts with %#x", out[0])
	}
	if !bytes.Equal(out[2*backend.BlockSize:2*backend.BlockSize+5], []byte("hello")) {
		t.Error("block 2 does not hold the payload")
	}
	for _, i := range []int{1, 2*backend.BlockSize + 5, 3*backend.BlockSize - 1} {
		if out[i] != 0 {
			t.Errorf("byte %d is %#x, expected zero padding", i, out[i])
		}
	}
}

func TestWriteBlockRejectsOversizedPayload(t *testing.T) {
	dev := New(&writerseeker.WriterSeeker{})
	err := dev.WriteBlock(0, make([]byte, backend.BlockSize+1))
	if !errors.Is(err, backend.ErrOversizedPayload) {
		t.Errorf("expected ErrOversizedPayload, got %v", err)
	}
}

func TestCreateFromPath(t *testing.T) {
	path := t.TempDir() + "/test.img"
	dev, err := CreateFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.WriteBlock(1, []byte{0xAA}); err != nil {
		t.Fatal(err)
	}
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}

	// creating over an existing file fails
	if _, err := CreateFromPath(path); err == nil {
		t.Error("expected error creating over an existing image")
	}
}
