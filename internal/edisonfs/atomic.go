// Package edisonfs provides the filesystem primitives shared by the entity,
// session, and validation-evidence layers: atomic writes, cross-device-safe
// renames, and advisory locking. It exists so every package that persists
// state to disk does so with the same crash-safety guarantees instead of
// re-deriving temp-file-plus-rename logic ad hoc.
package edisonfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileAtomic writes data to path by first writing to a sibling temp
// file and renaming it into place, so readers never observe a partially
// written file. Mirrors the temp+rename pattern used throughout
// jmgilman-sow's state.YAMLBackend.Save.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

// MoveFile moves src to dst, preserving contents. It first attempts a plain
// rename (the common case, atomic within the same filesystem) and falls
// back to copy+verify+delete when the rename fails across devices, per
// spec.md §4.3's state-machine rename contract.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDeviceErr(err) {
		return fmt.Errorf("rename file: %w", err)
	}

	return copyVerifyDelete(src, dst)
}

// copyVerifyDelete implements the cross-device rename fallback: copy the
// source to the destination, verify the byte count matches, then remove the
// source. The source is left intact if any step fails, preserving the
// invariant that either the source remains or the destination exists, never
// neither.
func copyVerifyDelete(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source for cross-device copy: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source for cross-device copy: %w", err)
	}

	tmpDst := dst + ".copying"
	out, err := os.OpenFile(tmpDst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("create destination for cross-device copy: %w", err)
	}

	written, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(tmpDst)
		return fmt.Errorf("copy cross-device: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpDst)
		return fmt.Errorf("sync cross-device copy: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpDst)
		return fmt.Errorf("close cross-device copy: %w", err)
	}
	if written != info.Size() {
		_ = os.Remove(tmpDst)
		return fmt.Errorf("cross-device copy truncated: wrote %d of %d bytes", written, info.Size())
	}

	if err := os.Rename(tmpDst, dst); err != nil {
		_ = os.Remove(tmpDst)
		return fmt.Errorf("rename verified copy into place: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after cross-device move (destination is valid): %w", err)
	}
	return nil
}

// isCrossDeviceErr reports whether err looks like an EXDEV failure. It is a
// best-effort string check on the error text, because the concrete error
// type varies across platforms/filesystems.
func isCrossDeviceErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid cross-device link") || strings.Contains(msg, "EXDEV")
}
