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

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachedjdk/cjdk/internal/progressui"
)

func TestSwapInFileMovesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "nested", "dst")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	err := SwapInFile(dst, src, 1.0, progressui.Null{})
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestRmtreeTempdirToleratesMissing(t *testing.T) {
	err := RmtreeTempdir(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.NoError(t, err)
}

func TestRmtreeTempdirRemovesTree(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "f"), []byte("x"), 0o644))

	require.NoError(t, RmtreeTempdir(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestUnlinkTempfileToleratesMissing(t *testing.T) {
	err := UnlinkTempfile(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
}

func TestUnlinkTempfileRemovesFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	require.NoError(t, UnlinkTempfile(f))
	_, err := os.Stat(f)
	assert.True(t, os.IsNotExist(err))
}

func TestIsTransientWindowsBusyFalseOnNonWindows(t *testing.T) {
	// On non-Windows platforms isTransientWindowsBusy must always report
	// false, since POSIX rename/unlink failures are never transient here.
	assert.False(t, isTransientWindowsBusy(os.ErrPermission))
}
