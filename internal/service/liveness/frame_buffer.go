package liveness

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrEmptyChunk is returned for zero-length chunks.
	ErrEmptyChunk = errors.New("empty chunk received")
	// ErrFrameTooLarge is returned when a pending frame grows past the buffer bound.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FrameBuffer 将二进制分片拼接为完整帧。
//
// 以 JPEG SOI 开头的分片会被累积，直到遇到该帧自己的 EOI（APPn 段中内嵌的
// EXIF 缩略图按段长度跳过）；缓冲区为空时收到的其他分片视为一个完整的不透明帧，
// 交给 provider 自行解码。
type FrameBuffer struct {
	buf []byte
	max int
}

// NewFrameBuffer creates a buffer bounded to maxBytes per frame.
func NewFrameBuffer(maxBytes int) *FrameBuffer {
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}
	return &FrameBuffer{max: maxBytes}
}

// Push appends a chunk and returns every frame it completed, in order.
// Frames completed before an overflow are still returned alongside ErrFrameTooLarge.
func (b *FrameBuffer) Push(chunk []byte) ([][]byte, error) {
	if len(chunk) == 0 {
		return nil, ErrEmptyChunk
	}

	if len(b.buf) == 0 && !bytes.HasPrefix(chunk, jpegSOI) {
		if len(chunk) > b.max {
			return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(chunk), b.max)
		}
		return [][]byte{bytes.Clone(chunk)}, nil
	}

	b.buf = append(b.buf, chunk...)

	var frames [][]byte
	for {
		start := bytes.Index(b.buf, jpegSOI)
		if start < 0 {
			// 保留可能被截断的 SOI 前半字节
			if b.buf[len(b.buf)-1] == 0xFF {
				b.buf = append(b.buf[:0], 0xFF)
			} else {
				b.buf = b.buf[:0]
			}
			break
		}
		if start > 0 {
			b.buf = append(b.buf[:0], b.buf[start:]...)
		}

		end := jpegFrameEnd(b.buf)
		if end < 0 {
			break
		}

		frames = append(frames, bytes.Clone(b.buf[:end]))
		b.buf = append(b.buf[:0], b.buf[end:]...)
		if len(b.buf) == 0 {
			break
		}
	}

	if len(b.buf) > b.max {
		size := len(b.buf)
		b.Reset()
		return frames, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, size, b.max)
	}
	return frames, nil
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (b *FrameBuffer) Pending() int {
	return len(b.buf)
}

// Reset drops any partial frame.
func (b *FrameBuffer) Reset() {
	b.buf = b.buf[:0]
}

// jpegFrameEnd 返回 buf（以 SOI 开头）中第一帧的长度，数据不足时返回 -1。
// SOS 之前按段长度跳过各个标记段，之后在熵编码数据中查找 EOI；
// 段结构不合法时退回到第一个 EOI。
func jpegFrameEnd(buf []byte) int {
	i := len(jpegSOI)
	for {
		if i+1 >= len(buf) {
			return -1
		}
		if buf[i] != 0xFF {
			return firstEOI(buf, i)
		}

		marker := buf[i+1]
		switch {
		case marker == 0xFF:
			// 填充字节
			i++
			continue
		case marker == 0xD9:
			return i + 2
		case marker == 0x01, marker >= 0xD0 && marker <= 0xD7:
			// TEM 与 RSTn 没有长度字段
			i += 2
			continue
		case marker == 0x00, marker == 0xD8:
			return firstEOI(buf, i)
		}

		if i+4 > len(buf) {
			return -1
		}
		length := int(buf[i+2])<<8 | int(buf[i+3])
		if length < 2 {
			return firstEOI(buf, i)
		}
		i += 2 + length
		if marker == 0xDA {
			if i > len(buf) {
				return -1
			}
			return firstEOI(buf, i)
		}
	}
}

func firstEOI(buf []byte, from int) int {
	end := bytes.Index(buf[from:], jpegEOI)
	if end < 0 {
		return -1
	}
	return from + end + len(jpegEOI)
}
