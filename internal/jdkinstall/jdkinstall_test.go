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

package jdkinstall

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeJavaHome(t *testing.T, root string) {
	t.Helper()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	name := "java"
	if runtime.GOOS == "windows" {
		name = "java.exe"
	}
	require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte(""), 0o755))
}

func TestFindHomeDirectHit(t *testing.T) {
	root := t.TempDir()
	makeJavaHome(t, root)
	home, err := FindHome(root)
	require.NoError(t, err)
	assert.Equal(t, root, home)
}

func TestFindHomeSingleWrapperDirectory(t *testing.T) {
	root := t.TempDir()
	inner := filepath.Join(root, "jdk-17.0.1+12")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	makeJavaHome(t, inner)

	home, err := FindHome(root)
	require.NoError(t, err)
	assert.Equal(t, inner, home)
}

func TestFindHomeGivesUpBeyondRecursionDepth(t *testing.T) {
	root := t.TempDir()
	level1 := filepath.Join(root, "a")
	level2 := filepath.Join(level1, "b")
	level3 := filepath.Join(level2, "c")
	require.NoError(t, os.MkdirAll(level3, 0o755))
	makeJavaHome(t, level3)

	_, err := FindHome(root)
	assert.Error(t, err)
}

func TestFindHomeNoJavaIsError(t *testing.T) {
	root := t.TempDir()
	_, err := FindHome(root)
	assert.Error(t, err)
}

func TestContainsSingleSubdir(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "only")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	got, ok := containsSingleSubdir(root)
	require.True(t, ok)
	assert.Equal(t, sub, got)
}

func TestContainsSingleSubdirFalseWithMultipleEntries(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))

	_, ok := containsSingleSubdir(root)
	assert.False(t, ok)
}

func TestContainsSingleSubdirIgnoresTopLevelFiles(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "jdk-17.0.1+12")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "LICENSE"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "release"), []byte(""), 0o644))

	got, ok := containsSingleSubdir(root)
	require.True(t, ok)
	assert.Equal(t, sub, got)
}

func TestFindHomeSingleWrapperDirectoryWithSiblingFiles(t *testing.T) {
	root := t.TempDir()
	inner := filepath.Join(root, "jdk-17.0.1+12")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	makeJavaHome(t, inner)
	require.NoError(t, os.WriteFile(filepath.Join(root, "LICENSE"), []byte(""), 0o644))

	home, err := FindHome(root)
	require.NoError(t, err)
	assert.Equal(t, inner, home)
}

func TestFindHomeMacOSContentsHomeRegardlessOfHostOS(t *testing.T) {
	root := t.TempDir()
	contentsHome := filepath.Join(root, "Contents", "Home")
	makeJavaHome(t, contentsHome)

	home, err := FindHome(root)
	require.NoError(t, err)
	assert.Equal(t, contentsHome, home)
}
