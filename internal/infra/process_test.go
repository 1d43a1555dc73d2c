package infra

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessResolver_CurrentPID(t *testing.T) {
	pr := NewProcessResolver()
	assert.Equal(t, uint32(os.Getpid()), pr.CurrentPID())
}

func TestProcessResolver_ExeNameOfSelf(t *testing.T) {
	pr := NewProcessResolver()

	name, err := pr.ExeName(pr.CurrentPID())
	require.NoError(t, err)

	exe, err := os.Executable()
	require.NoError(t, err)
	// Linux truncates comm to 15 characters.
	assert.True(t, strings.HasPrefix(filepath.Base(exe), name), "got %q for %q", name, exe)
}

func TestProcessResolver_ExeNameErrors(t *testing.T) {
	pr := NewProcessResolver()

	_, err := pr.ExeName(0)
	assert.Error(t, err)

	_, err = pr.ExeName(1 << 30)
	assert.Error(t, err)
}
