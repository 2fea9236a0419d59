// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fsutil implements the cross-platform filesystem primitives the
// cache protocol depends on: atomic rename-in, and best-effort removal
// of scratch files/directories that tolerates Windows antivirus/locking
// quirks by retrying under exponential backoff (spec.md §4.2).
package fsutil

import (
	"errors"
	"os"
	"runtime"
	"syscall"
	"time"

	"github.com/cachedjdk/cjdk/internal/cachekey"
	"github.com/cachedjdk/cjdk/internal/cjdkerr"
	"github.com/cachedjdk/cjdk/internal/progressui"
)

// winOpenFileErrs are ERROR_ACCESS_DENIED (5) and ERROR_SHARING_VIOLATION
// (32), the two Windows error codes that mean "somebody else has this
// file/directory open right now" and are therefore worth retrying,
// per spec.md §4.2 and §9.
var winOpenFileErrs = map[uint32]bool{5: true, 32: true}

// isTransientWindowsBusy reports whether err looks like a transient
// Windows file-locking error that is worth retrying under backoff. On
// non-Windows platforms this always returns false: POSIX rename/unlink
// either succeeds or fails permanently.
func isTransientWindowsBusy(err error) bool {
	if runtime.GOOS != "windows" {
		return false
	}
	code, ok := winErrno(err)
	if !ok {
		return false
	}
	return winOpenFileErrs[code]
}

// winErrno extracts a Windows error code from err, if any. Factored out
// so the platform-specific syscall type assertion lives in one place.
func winErrno(err error) (uint32, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno), true
	}
	return 0, false
}

// SwapInFile atomically moves tmpfile onto target. On POSIX a single
// rename attempt is sufficient: it succeeds even while target is open by
// others, and any other failure (e.g. insufficient permissions) is
// permanent. On Windows, ERROR_ACCESS_DENIED/ERROR_SHARING_VIOLATION are
// retried under backoff up to timeout seconds, because a file briefly
// held open by antivirus or a reading consumer is indistinguishable from
// a permanently bad permission until the timeout elapses.
func SwapInFile(target, tmpfile string, timeout float64, sink progressui.Sink) error {
	if err := os.MkdirAll(parentDir(target), 0o777); err != nil {
		return cjdkerr.InstallError("failed to create directory %s: %v", parentDir(target), err)
	}
	if sink == nil {
		sink = progressui.Null{}
	}

	var lastErr error
	sink.Indefinite("File busy; waiting", func(update func()) {
		for _, wait := range cachekey.BackoffSeconds(0.001, 0.5, timeout, 1.5) {
			err := os.Rename(tmpfile, target)
			if err == nil {
				lastErr = nil
				return
			}
			if isTransientWindowsBusy(err) && wait > 0 {
				time.Sleep(time.Duration(wait * float64(time.Second)))
				update()
				continue
			}
			lastErr = cjdkerr.InstallError("failed to move %s to %s: %v", tmpfile, target, err)
			return
		}
	})
	return lastErr
}

// RmtreeTempdir recursively removes path if it exists, tolerating a
// missing path, and retrying Windows busy-file errors under backoff.
func RmtreeTempdir(path string) error {
	for _, wait := range cachekey.BackoffSeconds(0.001, 0.5, 2.5, 1.5) {
		err := os.RemoveAll(path)
		if err == nil {
			return nil
		}
		if isTransientWindowsBusy(err) && wait > 0 {
			time.Sleep(time.Duration(wait * float64(time.Second)))
			continue
		}
		return cjdkerr.InstallError("failed to remove directory %s: %v", path, err)
	}
	return nil
}

// UnlinkTempfile best-effort deletes path, retrying Windows busy-file
// errors under backoff. A missing file is not an error.
func UnlinkTempfile(path string) error {
	for _, wait := range cachekey.BackoffSeconds(0.001, 0.5, 2.5, 1.5) {
		if _, statErr := os.Stat(path); statErr != nil {
			if os.IsNotExist(statErr) {
				return nil
			}
		}
		err := os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		if isTransientWindowsBusy(err) && wait > 0 {
			time.Sleep(time.Duration(wait * float64(time.Second)))
			continue
		}
		return cjdkerr.InstallError("failed to delete file %s: %v", path, err)
	}
	return nil
}

func parentDir(path string) string {
	i := len(path) - 1
	for i >= 0 && !os.IsPathSeparator(path[i]) {
		i--
	}
	if i < 0 {
		return "."
	}
	return path[:i]
}
