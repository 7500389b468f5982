// Package fileutil provides the hashing and copy primitives the ingest
// pipeline is built on.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hashBufSize bounds memory during digest computation regardless of file size.
const hashBufSize = 64 * 1024

// Digest computes the SHA-256 of a file's full byte stream, reading in
// fixed-size chunks.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	buf := make([]byte, hashBufSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SameContent reports whether two files have identical content by comparing
// streaming digests. When either file cannot be read it reports false and
// returns the error: callers treat unreadable as divergent, which forces a
// rename instead of an incorrect skip.
func SameContent(a, b string) (bool, error) {
	digestA, err := Digest(a)
	if err != nil {
		return false, err
	}
	digestB, err := Digest(b)
	if err != nil {
		return false, err
	}
	return digestA == digestB, nil
}

// CopyFile streams src to dst and carries the source's modification time over
// to the copy. dst is truncated if it exists.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	mtime := info.ModTime()
	if err := os.Chtimes(dst, mtime, mtime); err != nil {
		return fmt.Errorf("preserve times: %w", err)
	}
	return nil
}
