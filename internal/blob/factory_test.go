package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, Config{FSRoot: filepath.Join(t.TempDir(), "artifacts")})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, Config{Driver: "s3"})
	assert.ErrorContains(t, err, "bucket")

	s, err = Open(ctx, Config{Driver: "s3", S3: S3Config{Bucket: "artifacts", Region: "eu-west-1"}})
	require.NoError(t, err)
	assert.Equal(t, DriverS3, s.Driver())

	_, err = Open(ctx, Config{Driver: "tape"})
	assert.ErrorContains(t, err, "unknown blob driver")
}

func TestMockS3ForTests(t *testing.T) {
	assert.Equal(t, DriverS3, NewMockS3ForTests().Driver())
	assert.Equal(t, "artifacts/s/naming/r.png", ArtifactKey("s", "naming", "r", "png"))
	assert.Equal(t, "image/png", ContentTypeFor("png"))
	assert.Equal(t, "artifacts/s/", SessionPrefix("s"))
}
