//go:build integration

package objectstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/config"
	"github.com/phrazzld/carouselmaker/internal/platform/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a MinIO server, e.g. MINIO_ENDPOINT=localhost:9000.
func TestStoreRoundTrip(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	s, err := objectstore.New(config.StorageConfig{
		Endpoint:       endpoint,
		AccessKey:      os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey:      os.Getenv("MINIO_SECRET_KEY"),
		Bucket:         "carouselmaker-test",
		Prefix:         "it",
		RequestTimeout: 10 * time.Second,
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.EnsureBucket(ctx))
	require.NoError(t, s.Ping(ctx))

	prefix := fmt.Sprintf("it/%s/", uuid.New())
	key, err := s.Put(ctx, prefix+"1_slide_1.png", []byte("png"), "image/png")
	require.NoError(t, err)

	objects, err := s.List(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, key, objects[0].Key)
	assert.EqualValues(t, 3, objects[0].Size)

	require.NoError(t, s.Delete(ctx, key))
	objects, err = s.List(ctx, prefix)
	require.NoError(t, err)
	assert.Empty(t, objects)
}
