package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-clearance-api/pkg/config"
)

func TestObjectKey(t *testing.T) {
	cases := map[string]string{
		"signatures/teacher-1.png":                 "signatures/teacher-1.png",
		"/submissions/stu-1/report.pdf":            "submissions/stu-1/report.pdf",
		"s3://clearance-files/signatures/staff.png": "signatures/staff.png",
		"a//b.png":                                 "a/b.png",
	}
	for in, want := range cases {
		got, err := ObjectKey(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	for _, bad := range []string{"", "  ", "s3://bucket", "../etc/passwd", "a/../../b"} {
		_, err := ObjectKey(bad)
		require.True(t, errors.Is(err, ErrInvalidPath), bad)
	}
}

func TestNewObjectStoreDisabledWithoutEndpoint(t *testing.T) {
	store, err := NewObjectStore(config.ObjectStoreConfig{})
	require.NoError(t, err)
	require.Nil(t, store)

	store, err = NewObjectStore(config.ObjectStoreConfig{Endpoint: "localhost:9000", Bucket: "files"})
	require.NoError(t, err)
	require.Equal(t, "files", store.Bucket())
}

func TestTranslateErrorMapsMissingObjects(t *testing.T) {
	err := translateError(minio.ErrorResponse{Code: "NoSuchKey", Key: "signatures/x.png"})
	require.True(t, errors.Is(err, ErrObjectNotFound))

	err = translateError(minio.ErrorResponse{Code: "AccessDenied"})
	require.False(t, errors.Is(err, ErrObjectNotFound))
	require.Error(t, err)
}
