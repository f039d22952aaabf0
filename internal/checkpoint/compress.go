// internal/checkpoint/compress.go
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Strategy selects how a snapshot payload is compressed on disk.
type Strategy string

const (
	StrategyNone     Strategy = "none"
	StrategyFast     Strategy = "fast"
	StrategyBalanced Strategy = "balanced"
	StrategyMax      Strategy = "max"
)

// Extensions that are already compressed; recompressing them wastes CPU for
// no gain.
var preCompressedExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
	".zip": true, ".gz": true, ".tar": true, ".7z": true, ".zst": true,
	".pdf": true, ".woff": true, ".woff2": true, ".ttf": true,
}

// Extensions worth the slow maximum-ratio path once they get large.
var textualExts = map[string]bool{
	".txt": true, ".log": true, ".json": true, ".xml": true,
	".csv": true, ".md": true, ".yaml": true, ".yml": true,
}

// selectStrategy applies the compression policy table. The decision is made
// once at creation time from the payload size and file extension.
func selectStrategy(size int64, ext string) Strategy {
	ext = strings.ToLower(ext)
	switch {
	case size < 1024:
		return StrategyNone
	case preCompressedExts[ext]:
		return StrategyNone
	case size > 1<<20 && textualExts[ext]:
		return StrategyMax
	case size > 10*1024:
		return StrategyBalanced
	default:
		return StrategyFast
	}
}

// compressor holds one zstd encoder per strategy plus a shared decoder.
// Encoders are created stateless (nil writer) and used via EncodeAll, so one
// instance is safe for concurrent snapshot workers.
type compressor struct {
	fast     *zstd.Encoder
	balanced *zstd.Encoder
	max      *zstd.Encoder
	decoder  *zstd.Decoder
}

func newCompressor() *compressor {
	fast, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	balanced, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	max, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	decoder, _ := zstd.NewReader(nil)

	return &compressor{
		fast:     fast,
		balanced: balanced,
		max:      max,
		decoder:  decoder,
	}
}

// Compress encodes content under the given strategy. StrategyNone returns
// the input unchanged.
func (c *compressor) Compress(content []byte, strategy Strategy) []byte {
	switch strategy {
	case StrategyFast:
		return c.fast.EncodeAll(content, nil)
	case StrategyBalanced:
		return c.balanced.EncodeAll(content, nil)
	case StrategyMax:
		return c.max.EncodeAll(content, nil)
	default:
		return content
	}
}

// Decompress decodes a zstd payload written by any strategy.
func (c *compressor) Decompress(content []byte) ([]byte, error) {
	out, err := c.decoder.DecodeAll(content, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	return out, nil
}

// HashContent computes the content address for a payload: the first 16 hex
// characters of its SHA256. It is the dedup key within a checkpoint.
func HashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])[:16]
}
