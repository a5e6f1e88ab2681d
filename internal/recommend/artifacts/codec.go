// SPDX-License-Identifier: AGPL-3.0-or-later

package artifacts

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// envelope is the on-disk format for a single tensor file: a checksummed,
// gzip-compressed gob encoding of whatever value was saved.
type envelope struct {
	Checksum   string
	Compressed []byte
}

// saveTensor gob-encodes v, compresses it, and writes it to path alongside
// a SHA-256 checksum of the uncompressed bytes.
func saveTensor(path string, v interface{}) error {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(v); err != nil {
		return fmt.Errorf("encode tensor: %w", err)
	}

	hash := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return fmt.Errorf("compress tensor: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("finalize tensor compression: %w", err)
	}

	env := envelope{
		Checksum:   hex.EncodeToString(hash[:]),
		Compressed: compressed.Bytes(),
	}

	f, err := os.Create(path) //nolint:gosec // path is constructed from a trusted models directory
	if err != nil {
		return fmt.Errorf("create tensor file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after write is not actionable

	if err := gob.NewEncoder(f).Encode(env); err != nil {
		return fmt.Errorf("write tensor file: %w", err)
	}
	return nil
}

// loadTensor reads path, verifies its checksum, and decodes it into target.
func loadTensor(path string, target interface{}) error {
	f, err := os.Open(path) //nolint:gosec // path is constructed from a trusted models directory
	if err != nil {
		return fmt.Errorf("open tensor file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after read is not actionable

	var env envelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return fmt.Errorf("read tensor file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(env.Compressed))
	if err != nil {
		return fmt.Errorf("decompress tensor: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return fmt.Errorf("read decompressed tensor: %w", err)
	}

	hash := sha256.Sum256(raw)
	checksum := hex.EncodeToString(hash[:])
	if checksum != env.Checksum {
		return fmt.Errorf("tensor checksum mismatch: expected %s, got %s", env.Checksum, checksum)
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return fmt.Errorf("decode tensor: %w", err)
	}
	return nil
}

//nolint:gochecknoinits // gob.Register must run in init for interface-free but type-registry-sensitive values
func init() {
	gob.Register(Matrix{})
	gob.Register([]int{})
	gob.Register([]TrackRef{})
	gob.Register(PrecomputedNeighbors{})
	gob.Register(LyricsVectorizer{})
	gob.Register(LyricsTrainingMetadata{})
}
