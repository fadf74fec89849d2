package hash

import (
	"io"
	"os"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// DefaultChunkBytes is the read chunk size (1 MiB): large enough to amortize
// syscall overhead, small enough that W workers stay within a few MiB each.
const DefaultChunkBytes = 1 << 20

// EnvChunkBytes overrides the read chunk size in bytes. Unset = DefaultChunkBytes.
const EnvChunkBytes = "TREESUM_CHUNK_BYTES"

func chunkBytesFromEnv() int {
	if s := os.Getenv(EnvChunkBytes); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return DefaultChunkBytes
}

// Sum streams r through BLAKE2b-512 in chunks of chunkBytes and returns the
// digest and the number of bytes read. Memory use is one chunk regardless of
// input size. onChunk, if non-nil, is called with each chunk's length after
// it has been hashed (used for live byte progress).
func Sum(r io.Reader, chunkBytes int, onChunk func(int64)) ([]byte, int64, error) {
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	h, _ := blake2b.New512(nil) // only fails with an oversized key
	buf := make([]byte, chunkBytes)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
			if onChunk != nil {
				onChunk(int64(n))
			}
		}
		if err == io.EOF {
			return h.Sum(nil), total, nil
		}
		if err != nil {
			return nil, total, err
		}
	}
}

// File opens and hashes the file at path. See Sum for the streaming contract.
func File(path string, chunkBytes int, onChunk func(int64)) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return Sum(f, chunkBytes, onChunk)
}
