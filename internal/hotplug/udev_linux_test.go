//go:build linux

package hotplug

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSoundAccess(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	require.NoError(t, checkSoundAccess(dir))

	missing := filepath.Join(dir, "snd")
	err := checkSoundAccess(missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), missing)
}
