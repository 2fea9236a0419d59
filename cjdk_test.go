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

package cjdk

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJdkZip builds an in-memory zip archive containing a single
// bin/java file, standing in for a real JDK distribution archive.
func fakeJdkZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "bin/java", Method: zip.Deflate})
	require.NoError(t, err)
	_, err = w.Write([]byte("#!/bin/sh\necho fake java\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// jdkTestServer serves a minimal coursier-shaped index at /index.json, a
// fake JDK archive at /jdk.zip (adoptium) and /zulu/jdk.zip (zulu), and a
// plain file at /file.txt, tracking how many times the archives and the
// file were requested.
type jdkTestServer struct {
	*httptest.Server
	archiveRequests int32
	fileRequests    int32
}

func newJdkTestServer(t *testing.T) *jdkTestServer {
	t.Helper()
	archive := fakeJdkZip(t)
	s := &jdkTestServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"linux": {
				"amd64": {
					"jdk@adoptium": {
						"17.0.1+12": "zip+%[1]s/jdk.zip",
						"17.0.5+8": "zip+%[1]s/jdk.zip"
					},
					"jdk@zulu": {
						"11.0.2": "zip+%[1]s/zulu/jdk.zip"
					}
				}
			}
		}`, "http://"+r.Host)
	})
	serveArchive := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.archiveRequests, 1)
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(archive)))
		_, _ = w.Write(archive)
	}
	mux.HandleFunc("/jdk.zip", serveArchive)
	mux.HandleFunc("/zulu/jdk.zip", serveArchive)
	mux.HandleFunc("/file.txt", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.fileRequests, 1)
		_, _ = w.Write([]byte("hello"))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestJavaHomeEndToEnd(t *testing.T) {
	server := newJdkTestServer(t)
	cacheDir := t.TempDir()

	home, err := JavaHome(context.Background(), Kwargs{
		Vendor:                  "adoptium",
		Version:                 "17",
		OS:                      "linux",
		Arch:                    "amd64",
		CacheDir:                cacheDir,
		IndexURL:                server.URL + "/index.json",
		AllowInsecureForTesting: true,
	})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(home, "bin", "java"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	// Resolution must have picked the greatest compatible version.
	_, version, err := CacheJDK(context.Background(), Kwargs{
		Vendor:                  "adoptium",
		Version:                 "17",
		OS:                      "linux",
		Arch:                    "amd64",
		CacheDir:                cacheDir,
		IndexURL:                server.URL + "/index.json",
		AllowInsecureForTesting: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "17.0.5+8", version)

	// Both calls above resolve to 17.0.5+8 and its archive URL; installation
	// is cached per URL, so the second call is a cache hit and a single
	// fetch should suffice.
	assert.Equal(t, int32(1), atomic.LoadInt32(&server.archiveRequests))
}

func TestJavaEnvSetsAndRestoresEnvironment(t *testing.T) {
	server := newJdkTestServer(t)
	cacheDir := t.TempDir()
	k := Kwargs{
		Vendor:                  "adoptium",
		Version:                 "17",
		OS:                      "linux",
		Arch:                    "amd64",
		CacheDir:                cacheDir,
		IndexURL:                server.URL + "/index.json",
		AllowInsecureForTesting: true,
	}

	home, err := JavaHome(context.Background(), k)
	require.NoError(t, err)

	oldJavaHome, hadJavaHome := os.LookupEnv("JAVA_HOME")
	oldPath := os.Getenv("PATH")

	var sawHome string
	err = JavaEnv(context.Background(), k, true, func(h string) error {
		sawHome = h
		assert.Equal(t, home, os.Getenv("JAVA_HOME"))
		assert.Contains(t, os.Getenv("PATH"), filepath.Join(home, "bin"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, home, sawHome)

	gotJavaHome, stillSet := os.LookupEnv("JAVA_HOME")
	if hadJavaHome {
		assert.True(t, stillSet)
		assert.Equal(t, oldJavaHome, gotJavaHome)
	} else {
		assert.False(t, stillSet)
	}
	assert.Equal(t, oldPath, os.Getenv("PATH"))

	// archiveRequests stays at 1: the second resolution (inside JavaEnv)
	// is a cache hit.
	assert.Equal(t, int32(1), atomic.LoadInt32(&server.archiveRequests))
}

func TestJavaEnvPropagatesFnError(t *testing.T) {
	server := newJdkTestServer(t)
	k := Kwargs{
		Vendor:                  "adoptium",
		Version:                 "17",
		OS:                      "linux",
		Arch:                    "amd64",
		CacheDir:                t.TempDir(),
		IndexURL:                server.URL + "/index.json",
		AllowInsecureForTesting: true,
	}

	boom := fmt.Errorf("boom")
	_, hadJavaHome := os.LookupEnv("JAVA_HOME")
	err := JavaEnv(context.Background(), k, false, func(string) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, stillSet := os.LookupEnv("JAVA_HOME")
	assert.Equal(t, hadJavaHome, stillSet)
}

func TestListVendorsAndListJDKs(t *testing.T) {
	server := newJdkTestServer(t)
	cacheDir := t.TempDir()
	base := Kwargs{
		OS:                      "linux",
		Arch:                    "amd64",
		CacheDir:                cacheDir,
		IndexURL:                server.URL + "/index.json",
		AllowInsecureForTesting: true,
	}

	vendors, err := ListVendors(context.Background(), base)
	require.NoError(t, err)
	assert.Contains(t, vendors, "adoptium")
	assert.Contains(t, vendors, "zulu")

	all, err := ListJDKs(context.Background(), base, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := ListJDKs(context.Background(), base, true)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, _, err = CacheJDK(context.Background(), Kwargs{
		Vendor:                  "zulu",
		Version:                 "11",
		OS:                      "linux",
		Arch:                    "amd64",
		CacheDir:                cacheDir,
		IndexURL:                server.URL + "/index.json",
		AllowInsecureForTesting: true,
	})
	require.NoError(t, err)

	cachedOnly, err := ListJDKs(context.Background(), base, true)
	require.NoError(t, err)
	require.Len(t, cachedOnly, 1)
	assert.Equal(t, "zulu", cachedOnly[0].Vendor)
}

func TestListJDKsFiltersByVendorWhenNotCachedOnly(t *testing.T) {
	server := newJdkTestServer(t)
	zuluOnly, err := ListJDKs(context.Background(), Kwargs{
		Vendor:                  "zulu",
		OS:                      "linux",
		Arch:                    "amd64",
		CacheDir:                t.TempDir(),
		IndexURL:                server.URL + "/index.json",
		AllowInsecureForTesting: true,
	}, false)
	require.NoError(t, err)
	require.Len(t, zuluOnly, 1)
	assert.Equal(t, "zulu", zuluOnly[0].Vendor)
}

func TestCacheFileDownloadsAndCachesOnce(t *testing.T) {
	server := newJdkTestServer(t)
	cacheDir := t.TempDir()
	k := Kwargs{CacheDir: cacheDir, AllowInsecureForTesting: true}

	path, err := CacheFile(context.Background(), "greeting", server.URL+"/file.txt", "greeting.txt", 3600, "", "", "", k)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	path2, err := CacheFile(context.Background(), "greeting", server.URL+"/file.txt", "greeting.txt", 3600, "", "", "", k)
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&server.fileRequests))
}

func TestCachePackageExtractsArchive(t *testing.T) {
	server := newJdkTestServer(t)
	cacheDir := t.TempDir()
	k := Kwargs{CacheDir: cacheDir, AllowInsecureForTesting: true}

	dir, err := CachePackage(context.Background(), "fake-jdk", "zip+"+server.URL+"/jdk.zip", "", "", "", k)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "bin", "java"))
	assert.NoError(t, err)
}

func TestClearCacheRemovesDirectory(t *testing.T) {
	cacheDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "marker"), []byte("x"), 0o644))

	err := ClearCache(context.Background(), Kwargs{CacheDir: cacheDir})
	require.NoError(t, err)

	_, err = os.Stat(cacheDir)
	assert.True(t, os.IsNotExist(err))
}

func TestNormalizePackageURLAddsScheme(t *testing.T) {
	assert.Equal(t, "tgz+https://example.com/x.tar.gz", normalizePackageURL("https://example.com/x.tar.gz"))
	assert.Equal(t, "zip+https://example.com/x.zip", normalizePackageURL("https://example.com/x.zip"))
	assert.Equal(t, "zip+https://example.com/x.zip", normalizePackageURL("zip+https://example.com/x.zip"))
	assert.Equal(t, "https://example.com/x.bin", normalizePackageURL("https://example.com/x.bin"))
}
