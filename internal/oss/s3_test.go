package oss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectURL(t *testing.T) {
	t.Run("bucket and nested key", func(t *testing.T) {
		bucket, key, err := ParseObjectURL("s3://images/2025-01-01/a.png")
		require.NoError(t, err)
		assert.Equal(t, "images", bucket)
		assert.Equal(t, "2025-01-01/a.png", key)
	})

	t.Run("uppercase scheme", func(t *testing.T) {
		bucket, key, err := ParseObjectURL("S3://b/k.jpg")
		require.NoError(t, err)
		assert.Equal(t, "b", bucket)
		assert.Equal(t, "k.jpg", key)
	})

	for _, raw := range []string{
		"https://example.com/a.png",
		"s3://bucket-only",
		"s3:///missing-bucket",
	} {
		t.Run("rejects "+raw, func(t *testing.T) {
			_, _, err := ParseObjectURL(raw)
			assert.Error(t, err)
		})
	}
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "https://oss-cn-beijing.aliyuncs.com", endpointURL("oss-cn-beijing.aliyuncs.com"))
	assert.Equal(t, "http://localhost:9000", endpointURL("http://localhost:9000"))
}

func TestNewS3Client(t *testing.T) {
	client, err := NewS3Client(S3Config{
		Endpoint:  "localhost:9000",
		Region:    "us-east-1",
		AccessKey: "ak",
		SecretKey: "sk",
	})
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", client.endpoint)
	assert.Equal(t, "us-east-1", client.region)
}
