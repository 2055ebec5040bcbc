// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package atomicfile writes files so that the target is either fully
// replaced or left untouched.
//
// Data is written to a temporary file next to the target and renamed over
// it on Commit. Until Commit succeeds the target keeps its previous
// content; a crash or an abandoned write leaves at worst a stray temp
// file. Combined with a filelock.Lock for cross-process exclusion, this
// makes a critical-section write both race-free and crash-consistent.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
)

// ErrCommitted is returned when a File is used after Commit.
var ErrCommitted = errors.New("atomic file already committed")

// File is a pending atomic write. It implements io.Writer; call Commit to
// publish the content, or Close to abandon it. The usual pattern defers
// Close (a no-op after a successful Commit) and commits at the end:
//
//	f, err := atomicfile.Create(path)
//	if err != nil { ... }
//	defer f.Close()
//	// write to f
//	return f.Commit()
type File struct {
	file      *os.File
	tmpPath   string
	target    string
	committed bool
}

// Create starts an atomic write to path. The temporary file is created in
// the same directory (a rename across filesystems would not be atomic) and
// carries the process ID so concurrent writers from different processes do
// not collide on the temp name.
func Create(path string) (*File, error) {
	tmp := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &File{file: f, tmpPath: tmp, target: path}, nil
}

// Write appends to the pending content.
func (f *File) Write(p []byte) (int, error) {
	if f.committed {
		return 0, ErrCommitted
	}
	return f.file.Write(p)
}

// Name returns the target path the content will be published to.
func (f *File) Name() string { return f.target }

// Commit flushes the pending content to disk and atomically renames it
// over the target. On any failure the temp file is removed and the target
// is left untouched.
func (f *File) Commit() error {
	if f.committed {
		return ErrCommitted
	}

	if err := f.file.Sync(); err != nil {
		f.discard()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.file.Close(); err != nil {
		os.Remove(f.tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(f.tmpPath, f.target); err != nil {
		os.Remove(f.tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	f.committed = true
	return nil
}

// Close abandons the write if it was not committed: the temp file is
// removed and the target keeps its previous content. After a successful
// Commit, Close is a no-op.
func (f *File) Close() error {
	if f.committed {
		return nil
	}
	f.discard()
	f.committed = true
	return nil
}

func (f *File) discard() {
	f.file.Close()
	os.Remove(f.tmpPath)
}

// WriteFile atomically replaces path with data, analogous to os.WriteFile.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.file.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return f.Commit()
}
