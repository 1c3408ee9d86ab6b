package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveAssets(t *testing.T) {
	data, err := ArchiveAssets([]Asset{
		{Filename: "clip-01.mp4", MIME: "video/mp4", Data: []byte("video")},
		{Filename: "image-01.png", MIME: "image/png", Data: []byte("image")},
		{Filename: "image-01.png", MIME: "image/png", Data: []byte("again")},
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		got[f.Name] = string(body)
		assert.Equal(t, zip.Store, f.Method)
	}
	assert.Equal(t, map[string]string{
		"clip-01.mp4":    "video",
		"image-01.png":   "image",
		"1-image-01.png": "again",
	}, got)
}

func TestArchiveAssetsEmpty(t *testing.T) {
	data, err := ArchiveAssets(nil)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}
