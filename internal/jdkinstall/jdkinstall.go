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

// Package jdkinstall implements JDK installation and the java home
// discovery heuristic described in spec.md §4.6, ported from the
// original's _jdk.py: install_jdk and find_home.
package jdkinstall

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cachedjdk/cjdk/internal/cache"
	"github.com/cachedjdk/cjdk/internal/cjdkerr"
	"github.com/cachedjdk/cjdk/internal/conf"
	"github.com/cachedjdk/cjdk/internal/fetch"
	"github.com/cachedjdk/cjdk/internal/index"
)

const jdkKeyPrefix = "jdks"

// InstallJdk resolves c.Vendor/c.Version against idx, installing the
// matching archive into the cache if it is not already present, and
// returns the cache directory containing the unpacked JDK along with the
// exact version that was resolved (c.Version may have been a partial
// spec such as "17" or "17.0.1+").
func InstallJdk(ctx context.Context, idx index.Index, c *conf.Configuration) (dir string, exactVersion string, err error) {
	exactVersion, err = index.ResolveJdkVersion(idx, c)
	if err != nil {
		return "", "", err
	}
	url, err := index.JdkURL(idx, c, exactVersion)
	if err != nil {
		return "", "", err
	}

	dir, err = cache.PermanentDirectory(cache.PermanentDirectoryOptions{
		Prefix: jdkKeyPrefix,
		KeyURL: url,
		Fetch: func(destdir string) error {
			return fetch.DownloadAndExtract(ctx, fetch.DownloadAndExtractOptions{
				Destdir:       destdir,
				URL:           url,
				Progress:      c.ProgressSink,
				AllowInsecure: c.AllowInsecureForTesting,
				Metrics:       c.Metrics,
				MetricsPrefix: jdkKeyPrefix,
			})
		},
		CacheDir:              c.CacheDir,
		TimeoutFetchElsewhere: 300,
		Progress:              c.ProgressSink,
		Metrics:               c.Metrics,
	})
	if err != nil {
		if cjdkerr.IsKind(err, cjdkerr.UnsupportedFormat) {
			return "", "", cjdkerr.JdkNotFoundError("no installable archive found for vendor=%s version=%s", c.Vendor, exactVersion)
		}
		return "", "", err
	}
	return dir, exactVersion, nil
}

// FindHome locates the actual JAVA_HOME within an extracted JDK
// distribution, which often wraps the real home in single-child
// directories (and, on macOS, a Contents/Home convention), per spec.md
// §4.6. At most two levels of single-child directories are descended.
func FindHome(path string) (string, error) {
	return findHome(path, 2)
}

func findHome(path string, recursionDepth int) (string, error) {
	if looksLikeJavaHome(path) {
		return path, nil
	}
	if candidate := filepath.Join(path, "Contents", "Home"); looksLikeJavaHome(candidate) {
		return candidate, nil
	}
	if recursionDepth > 0 {
		if sub, ok := containsSingleSubdir(path); ok {
			return findHome(sub, recursionDepth-1)
		}
	}
	return "", cjdkerr.InstallError("cannot locate JAVA_HOME within %s", path)
}

func looksLikeJavaHome(path string) bool {
	bin := filepath.Join(path, "bin")
	info, err := os.Stat(bin)
	if err != nil || !info.IsDir() {
		return false
	}
	for _, name := range []string{"java", "java.exe"} {
		if fi, err := os.Stat(filepath.Join(bin, name)); err == nil && !fi.IsDir() {
			return true
		}
	}
	return false
}

// containsSingleSubdir returns the sole subdirectory of path, if path
// contains exactly one directory entry (other, non-directory entries such
// as a top-level LICENSE or release file are ignored).
func containsSingleSubdir(path string) (string, bool) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", false
	}
	var sub string
	found := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		found++
		sub = e.Name()
	}
	if found != 1 {
		return "", false
	}
	return filepath.Join(path, sub), true
}
