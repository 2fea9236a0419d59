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

// Package cache implements the two cache protocol primitives described in
// spec.md §4.3: atomic_file (TTL'd single-file caching) and
// permanent_directory (write-once directory caching), including their
// cross-process mutual-exclusion and fast-path behaviors.
package cache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cachedjdk/cjdk/internal/cachekey"
	"github.com/cachedjdk/cjdk/internal/cjdkerr"
	"github.com/cachedjdk/cjdk/internal/fsutil"
	"github.com/cachedjdk/cjdk/internal/metrics"
	"github.com/cachedjdk/cjdk/internal/progressui"
)

// Key identifies a cache entry by its namespace prefix and URL-derived
// hash, per spec.md §3.
type Key struct {
	Prefix string
	Hash   string
}

// KeyForURL computes the Key for a cache entry cached under prefix from
// keyURL.
func KeyForURL(prefix, keyURL string) (Key, error) {
	h, err := cachekey.ForURL(keyURL)
	if err != nil {
		return Key{}, err
	}
	return Key{Prefix: prefix, Hash: h}, nil
}

// Directory returns the on-disk location of the committed entry for key
// under cacheDir: cacheDir/v0/<prefix>/<key>.
func Directory(cacheDir string, key Key) string {
	return filepath.Join(cacheDir, "v0", key.Prefix, key.Hash)
}

// TmpDir returns the scratch directory that doubles as the inter-process
// lock for key: cacheDir/v0/fetching/<prefix>/<key>.
func TmpDir(cacheDir string, key Key) string {
	return filepath.Join(cacheDir, "v0", "fetching", key.Prefix, key.Hash)
}

func urlSidecarPath(keydir string) string {
	return keydir + ".url"
}

// AtomicFileOptions configures a single atomic_file call.
type AtomicFileOptions struct {
	Prefix              string
	KeyURL              string
	Filename            string
	Fetch               func(dest string) error
	CacheDir            string
	TTL                 float64
	TimeoutFetchElsewhere float64 // default 10
	TimeoutReadElsewhere  float64 // default 2.5
	Progress            progressui.Sink
	Metrics             *metrics.Recorder
}

// AtomicFile retrieves the cached file for (prefix, keyURL), invoking
// fetch to populate it if it is missing or stale. See spec.md §4.3 for
// the full protocol description; this is a direct, faithful port of the
// Python original's atomic_file.
func AtomicFile(opt AtomicFileOptions) (string, error) {
	if opt.TimeoutFetchElsewhere == 0 {
		opt.TimeoutFetchElsewhere = 10
	}
	if opt.TimeoutReadElsewhere == 0 {
		opt.TimeoutReadElsewhere = 2.5
	}
	if opt.Progress == nil {
		opt.Progress = progressui.Null{}
	}

	key, err := KeyForURL(opt.Prefix, opt.KeyURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(opt.CacheDir, "v0"), 0o777); err != nil {
		return "", cjdkerr.InstallError("failed to create cache directory %s: %v", opt.CacheDir, err)
	}

	keydir := Directory(opt.CacheDir, key)
	target := filepath.Join(keydir, opt.Filename)

	if fileExistsAndFresh(target, opt.TTL) {
		opt.Metrics.RecordCacheLookup(opt.Prefix, true)
		return target, nil
	}
	opt.Metrics.RecordCacheLookup(opt.Prefix, false)

	tmpdir := TmpDir(opt.CacheDir, key)
	acquired, err := createKeyTmpdir(tmpdir)
	if err != nil {
		return "", err
	}

	if acquired {
		var fetchErr error
		filePath := filepath.Join(tmpdir, opt.Filename)
		func() {
			defer func() {
				_ = fsutil.UnlinkTempfile(filePath)
				_ = fsutil.RmtreeTempdir(tmpdir)
			}()
			if err := opt.Fetch(filePath); err != nil {
				fetchErr = err
				return
			}
			if err := fsutil.SwapInFile(target, filePath, opt.TimeoutReadElsewhere, opt.Progress); err != nil {
				fetchErr = err
				return
			}
			if err := writeURLSidecar(keydir, opt.KeyURL); err != nil {
				fetchErr = err
				return
			}
		}()
		if fetchErr != nil {
			return "", fetchErr
		}
		return target, nil
	}

	// Somebody else is currently fetching.
	opt.Metrics.RecordWriterWait(opt.Prefix)
	if err := waitForDirToVanish(tmpdir, opt.TimeoutFetchElsewhere, opt.Progress); err != nil {
		return "", err
	}
	if !fileExistsAndFresh(target, 1<<62) {
		return "", cjdkerr.InstallError(
			"another process was fetching %s but the file is not present; the other process may have failed or been interrupted", target)
	}
	return target, nil
}

// PermanentDirectoryOptions configures a single permanent_directory call.
type PermanentDirectoryOptions struct {
	Prefix                string
	KeyURL                string
	Fetch                 func(destdir string) error
	CacheDir              string
	TimeoutFetchElsewhere float64 // default 60
	Progress              progressui.Sink
	Metrics               *metrics.Recorder
}

// PermanentDirectory retrieves the cached directory for (prefix, keyURL),
// invoking fetch to populate it if it does not already exist. Directory
// entries have no TTL: once committed they are immutable. See spec.md
// §4.3.
func PermanentDirectory(opt PermanentDirectoryOptions) (string, error) {
	if opt.TimeoutFetchElsewhere == 0 {
		opt.TimeoutFetchElsewhere = 60
	}
	if opt.Progress == nil {
		opt.Progress = progressui.Null{}
	}

	key, err := KeyForURL(opt.Prefix, opt.KeyURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(opt.CacheDir, "v0"), 0o777); err != nil {
		return "", cjdkerr.InstallError("failed to create cache directory %s: %v", opt.CacheDir, err)
	}

	keydir := Directory(opt.CacheDir, key)
	if isDir(keydir) {
		opt.Metrics.RecordCacheLookup(opt.Prefix, true)
		return keydir, nil
	}
	opt.Metrics.RecordCacheLookup(opt.Prefix, false)

	tmpdir := TmpDir(opt.CacheDir, key)
	acquired, err := createKeyTmpdir(tmpdir)
	if err != nil {
		return "", err
	}

	if acquired {
		var fetchErr error
		func() {
			defer func() { _ = fsutil.RmtreeTempdir(tmpdir) }()
			if err := opt.Fetch(tmpdir); err != nil {
				fetchErr = err
				return
			}
			if err := moveInFetchedDirectory(keydir, tmpdir); err != nil {
				fetchErr = err
				return
			}
			if err := writeURLSidecar(keydir, opt.KeyURL); err != nil {
				fetchErr = err
				return
			}
		}()
		if fetchErr != nil {
			return "", fetchErr
		}
		return keydir, nil
	}

	opt.Metrics.RecordWriterWait(opt.Prefix)
	if err := waitForDirToVanish(tmpdir, opt.TimeoutFetchElsewhere, opt.Progress); err != nil {
		return "", err
	}
	if !isDir(keydir) {
		return "", cjdkerr.InstallError(
			"another process was fetching %s but the directory is not present; the other process may have failed or been interrupted", keydir)
	}
	return keydir, nil
}

func fileExistsAndFresh(file string, ttl float64) bool {
	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		return false
	}
	now := float64(time.Now().UnixNano()) / 1e9
	mtime := float64(info.ModTime().UnixNano()) / 1e9
	expiration := mtime + ttl
	// 1-second slack avoids clock-granularity races, per spec.md §4.3.
	return now+1.0 < expiration
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// createKeyTmpdir attempts to create tmpdir with exclusive semantics.
// acquired is true if this call created it (caller is the writer); false
// means someone else already holds it.
func createKeyTmpdir(tmpdir string) (acquired bool, err error) {
	if mkErr := os.MkdirAll(filepath.Dir(tmpdir), 0o777); mkErr != nil {
		return false, cjdkerr.InstallError("failed to create cache directory %s: %v", filepath.Dir(tmpdir), mkErr)
	}
	mkErr := os.Mkdir(tmpdir, 0o777)
	if mkErr == nil {
		return true, nil
	}
	if os.IsExist(mkErr) {
		return false, nil
	}
	return false, cjdkerr.InstallError("failed to create scratch directory %s: %v", tmpdir, mkErr)
}

func moveInFetchedDirectory(target, tmpdir string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o777); err != nil {
		return cjdkerr.InstallError("failed to create cache directory %s: %v", filepath.Dir(target), err)
	}
	if err := os.Rename(tmpdir, target); err != nil {
		return cjdkerr.InstallError("failed to move %s to %s: %v", tmpdir, target, err)
	}
	return nil
}

func writeURLSidecar(keydir, keyURL string) error {
	urlFile := urlSidecarPath(keydir)
	if err := os.WriteFile(urlFile, []byte(keyURL), 0o666); err != nil {
		return cjdkerr.InstallError("failed to write URL file %s: %v", urlFile, err)
	}
	return nil
}

func waitForDirToVanish(directory string, timeout float64, sink progressui.Sink) error {
	var timedOut bool
	sink.Indefinite("Already downloading; waiting", func(update func()) {
		for _, wait := range cachekey.BackoffSeconds(0.001, 0.5, timeout, 1.5) {
			if !isDir(directory) {
				return
			}
			if wait < 0 {
				timedOut = true
				return
			}
			time.Sleep(time.Duration(wait * float64(time.Second)))
			update()
		}
	})
	if timedOut {
		return cjdkerr.InstallError("timeout while waiting for directory %s to disappear", directory)
	}
	return nil
}
