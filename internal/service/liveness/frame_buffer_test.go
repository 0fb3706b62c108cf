package liveness

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameBufferOpaqueChunkIsOneFrame(t *testing.T) {
	b := NewFrameBuffer(1024)
	frames, err := b.Push([]byte("raw-frame"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || string(frames[0]) != "raw-frame" {
		t.Fatalf("expected the chunk as a single frame, got %q", frames)
	}
	if b.Pending() != 0 {
		t.Fatalf("expected empty buffer, got %d pending bytes", b.Pending())
	}
}

func TestFrameBufferJoinsSplitJpeg(t *testing.T) {
	b := NewFrameBuffer(1024)
	frame := jpegFrame(1, 2, 3, 4)

	frames, err := b.Push(frame[:3])
	if err != nil || len(frames) != 0 {
		t.Fatalf("expected partial frame to be buffered, got %v %v", frames, err)
	}
	frames, err = b.Push(frame[3:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], frame) {
		t.Fatalf("expected reassembled frame %x, got %x", frame, frames)
	}
}

func TestFrameBufferSplitsConcatenatedJpegs(t *testing.T) {
	b := NewFrameBuffer(1024)
	first := jpegFrame(0x01)
	second := jpegFrame(0x02, 0x03)
	third := jpegFrame(0x04)

	chunk := append(append(append([]byte{}, first...), second...), third[:2]...)
	frames, err := b.Push(chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 || !bytes.Equal(frames[0], first) || !bytes.Equal(frames[1], second) {
		t.Fatalf("unexpected frames: %x", frames)
	}
	if b.Pending() != 2 {
		t.Fatalf("expected start of third frame buffered, got %d bytes", b.Pending())
	}

	frames, err = b.Push(third[2:])
	if err != nil || len(frames) != 1 || !bytes.Equal(frames[0], third) {
		t.Fatalf("expected third frame, got %x %v", frames, err)
	}
}

func TestFrameBufferRejectsEmptyChunk(t *testing.T) {
	b := NewFrameBuffer(1024)
	if _, err := b.Push(nil); !errors.Is(err, ErrEmptyChunk) {
		t.Fatalf("expected ErrEmptyChunk, got %v", err)
	}
}

func TestFrameBufferOverflowResets(t *testing.T) {
	b := NewFrameBuffer(8)
	if _, err := b.Push([]byte{0xFF, 0xD8, 1, 2, 3, 4, 5, 6, 7, 8}); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if b.Pending() != 0 {
		t.Fatalf("expected buffer reset after overflow, got %d bytes", b.Pending())
	}

	if _, err := b.Push(bytes.Repeat([]byte{0x01}, 9)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected oversized opaque chunk to be rejected, got %v", err)
	}

	frames, err := b.Push(jpegFrame(9))
	if err != nil || len(frames) != 1 {
		t.Fatalf("expected buffer usable after overflow, got %v %v", frames, err)
	}
}

// exifJpeg 构造一个 APP1 段内嵌缩略图（自带 SOI/EOI）的 JPEG
func exifJpeg() []byte {
	thumb := []byte{0xFF, 0xD8, 0xAA, 0xBB, 0xFF, 0xD9}
	app1 := append([]byte("Exif\x00\x00"), thumb...)
	frame := []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, byte(len(app1) + 2)}
	frame = append(frame, app1...)
	// SOS：长度 8 的段头，随后是熵编码数据（0xFF 以 0x00 填充）
	frame = append(frame, 0xFF, 0xDA, 0x00, 0x08, 1, 1, 0, 0, 0x3F, 0)
	frame = append(frame, 0x12, 0xFF, 0x00, 0x34, 0xFF, 0xD0, 0x56)
	return append(frame, 0xFF, 0xD9)
}

func TestFrameBufferKeepsEmbeddedThumbnail(t *testing.T) {
	b := NewFrameBuffer(1024)
	frame := exifJpeg()

	frames, err := b.Push(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], frame) {
		t.Fatalf("expected the whole frame, got %x", frames)
	}
	if b.Pending() != 0 {
		t.Fatalf("expected empty buffer, got %d pending bytes", b.Pending())
	}
}

func TestFrameBufferKeepsEmbeddedThumbnailAcrossChunks(t *testing.T) {
	b := NewFrameBuffer(1024)
	frame := exifJpeg()
	next := jpegFrame(0x07)

	// 在缩略图的 EOI 之后切开
	cut := bytes.Index(frame[2:], jpegEOI) + 2 + len(jpegEOI)
	frames, err := b.Push(frame[:cut])
	if err != nil || len(frames) != 0 {
		t.Fatalf("expected frame to stay buffered past the thumbnail, got %x %v", frames, err)
	}

	frames, err = b.Push(append(append([]byte{}, frame[cut:]...), next...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 || !bytes.Equal(frames[0], frame) || !bytes.Equal(frames[1], next) {
		t.Fatalf("unexpected frames: %x", frames)
	}
}
