package liveness

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// CompressPayload 按协议头声明的方式压缩帧数据
func CompressPayload(data []byte, method CompressionMethod) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			writer.Close()
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}

// DecompressPayload 解压缩，解压后大小受 MaxMessagePayload 限制
func DecompressPayload(data []byte, method CompressionMethod) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer reader.Close()

		result, err := io.ReadAll(io.LimitReader(reader, MaxMessagePayload+1))
		if err != nil {
			return nil, fmt.Errorf("gzip read failed: %w", err)
		}
		if len(result) > MaxMessagePayload {
			return nil, fmt.Errorf("decompressed payload exceeds %d bytes", MaxMessagePayload)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}
