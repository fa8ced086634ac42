package sink

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Compressor compresses archive payloads before upload. Compress returns
// the compressed bytes and the file extension to append to the object
// key, so consumers can tell the codec from the name alone.
type Compressor interface {
	Compress(data []byte) ([]byte, string, error)
	Decompress(data []byte) ([]byte, error)
}

// NewCompressor returns a compressor for the named codec. An empty name
// selects no compression.
func NewCompressor(codec string) (Compressor, error) {
	switch codec {
	case "", "none":
		return &noneCompressor{}, nil
	case "gzip":
		return &gzipCompressor{}, nil
	case "snappy":
		return &snappyCompressor{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression codec: %s", codec)
	}
}

type noneCompressor struct{}

func (c *noneCompressor) Compress(data []byte) ([]byte, string, error) {
	return data, "", nil
}

func (c *noneCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

type gzipCompressor struct{}

func (c *gzipCompressor) Compress(data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, "", fmt.Errorf("gzip write failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("gzip close failed: %w", err)
	}

	return buf.Bytes(), ".gz", nil
}

func (c *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return decompressed, nil
}

type snappyCompressor struct{}

func (c *snappyCompressor) Compress(data []byte) ([]byte, string, error) {
	return snappy.Encode(nil, data), ".snappy", nil
}

func (c *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode failed: %w", err)
	}
	return decompressed, nil
}
