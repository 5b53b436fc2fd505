package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "artifacts/s1/cube_copy/r1.png", ArtifactKey("s1", "cube_copy", "r1", ".PNG"))
	assert.Equal(t, "artifacts/s1/clock_drawing/r2.bin", ArtifactKey("s1", "clock_drawing", "r2", ""))
	assert.Equal(t, "artifacts/s1/", SessionPrefix("s1"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeFor("png"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("jpeg"))
	assert.Equal(t, "image/gif", ContentTypeFor("GIF"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("bmp"))
}
