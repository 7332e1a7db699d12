// Package hash computes blake3 checksums of files.
package hash

import (
	"encoding/hex"
	"io"

	"golang.org/x/exp/mmap"
	"lukechampine.com/blake3"
)

// Blake3File returns the hex blake3-256 digest of the file at path, read
// through a memory map.
func Blake3File(path string) (string, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, int64(r.Len()))); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
