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

package cache

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicFileFetchesOnce(t *testing.T) {
	dir := t.TempDir()
	var calls int32

	fetch := func(dest string) error {
		atomic.AddInt32(&calls, 1)
		return os.WriteFile(dest, []byte("content"), 0o644)
	}

	path, err := AtomicFile(AtomicFileOptions{
		Prefix:   "misc-files",
		KeyURL:   "https://example.com/f.txt",
		Filename: "f.txt",
		Fetch:    fetch,
		CacheDir: dir,
		TTL:      3600,
	})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	// Second call with the same key is a fast-path hit: fetch must not run
	// again.
	path2, err := AtomicFile(AtomicFileOptions{
		Prefix:   "misc-files",
		KeyURL:   "https://example.com/f.txt",
		Filename: "f.txt",
		Fetch:    fetch,
		CacheDir: dir,
		TTL:      3600,
	})
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAtomicFileRefetchesAfterTTLExpiry(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	fetch := func(dest string) error {
		atomic.AddInt32(&calls, 1)
		return os.WriteFile(dest, []byte("v"), 0o644)
	}

	opts := AtomicFileOptions{
		Prefix:   "misc-files",
		KeyURL:   "https://example.com/g.txt",
		Filename: "g.txt",
		Fetch:    fetch,
		CacheDir: dir,
		TTL:      -1, // already expired
	}
	_, err := AtomicFile(opts)
	require.NoError(t, err)
	_, err = AtomicFile(opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPermanentDirectoryFetchesOnce(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	fetch := func(destdir string) error {
		atomic.AddInt32(&calls, 1)
		return os.WriteFile(filepath.Join(destdir, "marker"), []byte("x"), 0o644)
	}

	keydir, err := PermanentDirectory(PermanentDirectoryOptions{
		Prefix:   "jdks",
		KeyURL:   "tgz+https://example.com/jdk.tar.gz",
		Fetch:    fetch,
		CacheDir: dir,
	})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(keydir, "marker"))
	require.NoError(t, err)

	keydir2, err := PermanentDirectory(PermanentDirectoryOptions{
		Prefix:   "jdks",
		KeyURL:   "tgz+https://example.com/jdk.tar.gz",
		Fetch:    fetch,
		CacheDir: dir,
	})
	require.NoError(t, err)
	assert.Equal(t, keydir, keydir2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestKeyForURLPropagatesInvalidURL(t *testing.T) {
	_, err := KeyForURL("misc-files", "https://example.com/a?x=1")
	assert.Error(t, err)
}

func TestDirectoryAndTmpDirAreDistinct(t *testing.T) {
	key := Key{Prefix: "jdks", Hash: "abc"}
	dir := Directory("/cache", key)
	tmp := TmpDir("/cache", key)
	assert.NotEqual(t, dir, tmp)
	assert.Contains(t, tmp, "fetching")
}
