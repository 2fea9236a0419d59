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

package conf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureDefaults(t *testing.T) {
	dir := t.TempDir()
	c, err := Configure(Kwargs{CacheDir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, c.CacheDir)
	assert.Equal(t, "adoptium", c.Vendor)
	assert.Equal(t, "https://raw.githubusercontent.com/coursier/jvm-index/master/index.json", c.IndexURL)
	assert.True(t, c.Progress)
	assert.NotNil(t, c.ProgressSink)
}

func TestConfigureRejectsRelativeCacheDir(t *testing.T) {
	_, err := Configure(Kwargs{CacheDir: "relative/path"})
	assert.Error(t, err)
}

func TestConfigureJdkMutualExclusionWithVendor(t *testing.T) {
	_, err := Configure(Kwargs{Jdk: "adoptium:17", Vendor: "zulu", CacheDir: t.TempDir()})
	assert.Error(t, err)
}

func TestConfigureJdkMutualExclusionWithVersion(t *testing.T) {
	_, err := Configure(Kwargs{Jdk: "adoptium:17", Version: "11", CacheDir: t.TempDir()})
	assert.Error(t, err)
}

func TestConfigureJdkSpecSplitsVendorVersion(t *testing.T) {
	c, err := Configure(Kwargs{Jdk: "zulu:17.0.1", CacheDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "zulu", c.Vendor)
	assert.Equal(t, "17.0.1", c.Version)
}

func TestConfigureExplicitIndexTTL(t *testing.T) {
	ttl := 123.0
	c, err := Configure(Kwargs{CacheDir: t.TempDir(), IndexTTL: &ttl})
	require.NoError(t, err)
	assert.Equal(t, 123.0, c.IndexTTL)
}

func TestParseVendorVersionVendorOnly(t *testing.T) {
	vendor, version, err := ParseVendorVersion("adoptium")
	require.NoError(t, err)
	assert.Equal(t, "adoptium", vendor)
	assert.Equal(t, "", version)
}

func TestParseVendorVersionVersionOnly(t *testing.T) {
	vendor, version, err := ParseVendorVersion("17.0.1+")
	require.NoError(t, err)
	assert.Equal(t, "", vendor)
	assert.Equal(t, "17.0.1+", version)
}

func TestParseVendorVersionColonForm(t *testing.T) {
	vendor, version, err := ParseVendorVersion("zulu:11")
	require.NoError(t, err)
	assert.Equal(t, "zulu", vendor)
	assert.Equal(t, "11", version)
}

func TestParseVendorVersionAmbiguousRejected(t *testing.T) {
	_, _, err := ParseVendorVersion("a:b:c")
	assert.Error(t, err)
}

func TestCanonicalizeOS(t *testing.T) {
	assert.Equal(t, "windows", CanonicalizeOS("win32"))
	assert.Equal(t, "darwin", CanonicalizeOS("macos"))
	assert.Equal(t, "aix", CanonicalizeOS("aix7"))
	assert.Equal(t, "solaris", CanonicalizeOS("solaris11"))
	assert.Equal(t, "linux", CanonicalizeOS("linux"))
}

func TestCanonicalizeArch(t *testing.T) {
	assert.Equal(t, "amd64", CanonicalizeArch("x86_64"))
	assert.Equal(t, "amd64", CanonicalizeArch("x64"))
	assert.Equal(t, "arm64", CanonicalizeArch("aarch64"))
	assert.Equal(t, "x86", CanonicalizeArch("i686"))
	assert.Equal(t, "ppc64", CanonicalizeArch("ppc64"))
}

func TestCheckString(t *testing.T) {
	empty := ""
	assert.NoError(t, CheckString("x", &empty, false, true))
	assert.Error(t, CheckString("x", &empty, false, false))
	assert.NoError(t, CheckString("x", nil, true, true))
	assert.Error(t, CheckString("x", nil, false, true))
}

func TestDefaultCacheDirHonorsEnvOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cjdk-cache")
	t.Setenv("CJDK_CACHE_DIR", dir)
	got, err := DefaultCacheDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestDefaultCacheDirRejectsRelativeEnvOverride(t *testing.T) {
	t.Setenv("CJDK_CACHE_DIR", "relative")
	_, err := DefaultCacheDir()
	assert.Error(t, err)
}
