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

// Package cjdk materializes JDK/JRE distributions on demand into a
// content-addressed, concurrent-safe, on-disk cache shared across
// cooperating OS processes. It is the public API surface described in
// spec.md §5, ported from the original's _api.py.
package cjdk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cachedjdk/cjdk/internal/cache"
	"github.com/cachedjdk/cjdk/internal/cjdkerr"
	"github.com/cachedjdk/cjdk/internal/conf"
	"github.com/cachedjdk/cjdk/internal/fetch"
	"github.com/cachedjdk/cjdk/internal/index"
	"github.com/cachedjdk/cjdk/internal/jdkinstall"
)

// Error is the exported alias of the internal error type, so callers can
// type-switch on Kind and read ExitCode without reaching into internal
// packages.
type Error = cjdkerr.Error

// Kwargs is the exported configuration surface; see internal/conf.Kwargs
// for field documentation. It is re-exported here so callers of this
// package never need to import internal/conf.
type Kwargs = conf.Kwargs

const (
	miscFilesPrefix = "misc-files"
	miscDirsPrefix  = "misc-dirs"
	jdkKeyPrefix    = "jdks"
)

// CacheJDK ensures a JDK matching k is present in the cache, installing it
// if necessary, and returns its cache directory and the exact version
// resolved. Corresponds to the original's cache_jdk.
func CacheJDK(ctx context.Context, k Kwargs) (dir string, version string, err error) {
	c, err := conf.Configure(k)
	if err != nil {
		return "", "", err
	}
	idx, err := index.JdkIndex(ctx, c)
	if err != nil {
		return "", "", err
	}
	dir, version, err = jdkinstall.InstallJdk(ctx, idx, c)
	if err != nil {
		return "", "", err
	}
	return dir, version, nil
}

// JavaHome is like CacheJDK but returns the resolved JAVA_HOME within the
// installed distribution rather than its enclosing cache directory.
// Corresponds to the original's java_home.
func JavaHome(ctx context.Context, k Kwargs) (string, error) {
	dir, _, err := CacheJDK(ctx, k)
	if err != nil {
		return "", err
	}
	return jdkinstall.FindHome(dir)
}

// JavaEnv resolves JAVA_HOME (and, if addBin, prepends its bin directory
// to PATH), runs fn with those environment variables set, and restores
// the prior environment (including prior absence) before returning,
// regardless of how fn returns. Corresponds to the original's java_env
// context manager, reshaped into the Go idiom of "run this scoped
// function" rather than a context manager object (spec.md §9).
func JavaEnv(ctx context.Context, k Kwargs, addBin bool, fn func(home string) error) error {
	home, err := JavaHome(ctx, k)
	if err != nil {
		return err
	}

	restoreJavaHome := setEnvScoped("JAVA_HOME", home)
	defer restoreJavaHome()

	if addBin {
		bin := filepath.Join(home, "bin")
		newPath := bin + string(os.PathListSeparator) + os.Getenv("PATH")
		restorePath := setEnvScoped("PATH", newPath)
		defer restorePath()
	}

	return fn(home)
}

// setEnvScoped sets key to value, returning a restore function that
// undoes the change, deleting key entirely if it was previously unset
// (matching the original's _env_var_set).
func setEnvScoped(key, value string) (restore func()) {
	prev, wasSet := os.LookupEnv(key)
	_ = os.Setenv(key, value)
	return func() {
		if wasSet {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	}
}

// CacheFile downloads url and caches it as filename in the entry keyed by
// url, with the given ttl (zero means "never expires"), verifying any of
// the supplied hex-encoded hashes, and returns the cached file's path.
// name is only shown in the progress header. Corresponds to the
// original's cache_file.
func CacheFile(ctx context.Context, name, url, filename string, ttl float64, sha1Hex, sha256Hex, sha512Hex string, k Kwargs) (string, error) {
	if name == "" {
		return "", cjdkerr.ConfigError("name must not be empty")
	}
	if url == "" {
		return "", cjdkerr.ConfigError("url must not be empty")
	}
	if filename == "" {
		return "", cjdkerr.ConfigError("filename must not be empty")
	}
	c, err := conf.Configure(k)
	if err != nil {
		return "", err
	}
	if ttl == 0 {
		ttl = float64(int64(1) << 62)
	}

	checkfunc := fetch.HashChecker(sha1Hex, sha256Hex, sha512Hex)
	fetchFn := func(dest string) error {
		printProgressHeader(c, name)
		return fetch.DownloadFile(ctx, fetch.DownloadFileOptions{
			Dest:          dest,
			URL:           url,
			Checkfunc:     checkfunc,
			Progress:      c.ProgressSink,
			AllowInsecure: c.AllowInsecureForTesting,
			Metrics:       c.Metrics,
			MetricsPrefix: miscFilesPrefix,
		})
	}

	return cache.AtomicFile(cache.AtomicFileOptions{
		Prefix:   miscFilesPrefix,
		KeyURL:   url,
		Filename: filename,
		Fetch:    fetchFn,
		CacheDir: c.CacheDir,
		TTL:      ttl,
		Progress: c.ProgressSink,
		Metrics:  c.Metrics,
	})
}

// CachePackage downloads and extracts an archive at url and caches the
// extracted directory in the entry keyed by url, verifying any of the
// supplied hex-encoded hashes, and returns the cached directory's path.
// name is only shown in the progress header. Corresponds to the
// original's cache_package.
func CachePackage(ctx context.Context, name, url string, sha1Hex, sha256Hex, sha512Hex string, k Kwargs) (string, error) {
	if name == "" {
		return "", cjdkerr.ConfigError("name must not be empty")
	}
	if url == "" {
		return "", cjdkerr.ConfigError("url must not be empty")
	}
	c, err := conf.Configure(k)
	if err != nil {
		return "", err
	}

	normalized := normalizePackageURL(url)

	checkfunc := fetch.HashChecker(sha1Hex, sha256Hex, sha512Hex)
	fetchFn := func(destdir string) error {
		printProgressHeader(c, name)
		return fetch.DownloadAndExtract(ctx, fetch.DownloadAndExtractOptions{
			Destdir:       destdir,
			URL:           normalized,
			Checkfunc:     checkfunc,
			Progress:      c.ProgressSink,
			AllowInsecure: c.AllowInsecureForTesting,
			Metrics:       c.Metrics,
			MetricsPrefix: miscDirsPrefix,
		})
	}

	dir, err := cache.PermanentDirectory(cache.PermanentDirectoryOptions{
		Prefix:   miscDirsPrefix,
		KeyURL:   normalized,
		Fetch:    fetchFn,
		CacheDir: c.CacheDir,
		Progress: c.ProgressSink,
		Metrics:  c.Metrics,
	})
	if err != nil {
		if cjdkerr.IsKind(err, cjdkerr.UnsupportedFormat) {
			return "", cjdkerr.ConfigError("cannot determine archive format for %s", url)
		}
		return "", err
	}
	return dir, nil
}

// normalizePackageURL turns a bare "https://.../name.tgz" or ".zip" URL
// into the "<ext>+https://..." scheme download_and_extract expects,
// matching the original's cache_package convenience behavior.
func normalizePackageURL(url string) string {
	if strings.HasPrefix(url, "tgz+") || strings.HasPrefix(url, "zip+") {
		return url
	}
	if !strings.HasPrefix(url, "https://") {
		return url
	}
	switch {
	case strings.HasSuffix(url, ".tgz") || strings.HasSuffix(url, ".tar.gz"):
		return "tgz+" + url
	case strings.HasSuffix(url, ".zip"):
		return "zip+" + url
	default:
		return url
	}
}

func printProgressHeader(c *conf.Configuration, name string) {
	if c.Progress {
		fmt.Fprintf(c.Stderr, "cjdk: Installing %s to %s\n", name, c.CacheDir)
	}
}

// ListVendors returns the sorted list of all vendor names available for
// k's OS/Arch, ignoring any vendor/version/jdk filter carried in k (the
// original's list_vendors takes no such filter either).
func ListVendors(ctx context.Context, k Kwargs) ([]string, error) {
	c, err := conf.Configure(k)
	if err != nil {
		return nil, err
	}
	idx, err := index.JdkIndex(ctx, c)
	if err != nil {
		return nil, err
	}
	unfiltered := *c
	unfiltered.Vendor = ""
	unfiltered.Version = ""
	seen := map[string]bool{}
	for _, vv := range index.AvailableJdks(idx, &unfiltered) {
		seen[vv.Vendor] = true
	}
	vendors := make([]string, 0, len(seen))
	for v := range seen {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	return vendors, nil
}

// ListJDKs returns the sorted (vendor, version) pairs matching k,
// optionally restricted to vendor and/or version-spec filters carried in
// k.Vendor/k.Version/k.Jdk. When no vendor is given, every vendor is
// searched (any version filter still applies across all of them). When
// cachedOnly is true, only JDKs already present in the cache are
// returned; otherwise the full index is consulted. Corresponds to the
// original's list_jdks/_get_jdks.
func ListJDKs(ctx context.Context, k Kwargs, cachedOnly bool) ([]index.VendorVersion, error) {
	c, err := conf.Configure(k)
	if err != nil {
		return nil, err
	}
	idx, err := index.JdkIndex(ctx, c)
	if err != nil {
		return nil, err
	}

	vendorGiven, err := explicitVendor(k)
	if err != nil {
		return nil, err
	}
	filterConf := *c
	if vendorGiven == "" {
		filterConf.Vendor = ""
	}

	all := index.AvailableJdks(idx, &filterConf)
	if !cachedOnly {
		return all, nil
	}

	var out []index.VendorVersion
	for _, vv := range all {
		perVendor := *c
		perVendor.Vendor = vv.Vendor
		url, err := index.JdkURL(idx, &perVendor, vv.Version)
		if err != nil {
			continue
		}
		if jdkIsCached(c.CacheDir, url) {
			out = append(out, vv)
		}
	}
	return out, nil
}

// explicitVendor reports the vendor the caller actually asked for, as
// opposed to conf.Configure's defaulted c.Vendor: empty means "search
// every vendor". k.Jdk, if given, has already been validated by a prior
// conf.Configure(k) call, so re-parsing it here cannot fail.
func explicitVendor(k Kwargs) (string, error) {
	if k.Jdk != "" {
		vendor, _, err := conf.ParseVendorVersion(k.Jdk)
		if err != nil {
			return "", err
		}
		return vendor, nil
	}
	return k.Vendor, nil
}

// jdkIsCached reports whether the JDK archive at url has already been
// installed into cacheDir, without triggering a fetch.
func jdkIsCached(cacheDir, url string) bool {
	key, err := cache.KeyForURL(jdkKeyPrefix, url)
	if err != nil {
		return false
	}
	info, err := os.Stat(cache.Directory(cacheDir, key))
	return err == nil && info.IsDir()
}

// ClearCache removes the entire cache directory for k.
func ClearCache(ctx context.Context, k Kwargs) error {
	c, err := conf.Configure(k)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(c.CacheDir); err != nil {
		return cjdkerr.InstallError("failed to clear cache directory %s: %v", c.CacheDir, err)
	}
	return nil
}

