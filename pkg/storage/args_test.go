package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/scan2pdf/pkg/storage"
	"github.com/denysvitali/scan2pdf/pkg/storage/b2"
)

func TestSetup(t *testing.T) {
	s, err := storage.Setup("", "", b2.Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	dir := filepath.Join(t.TempDir(), "pages")
	s, err = storage.Setup("FS", dir, b2.Config{})
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.DirExists(t, dir)

	_, err = storage.Setup("b2", "", b2.Config{})
	assert.ErrorContains(t, err, "account is required")

	_, err = storage.Setup("s3", "", b2.Config{})
	assert.ErrorContains(t, err, "unknown storage type")
}
