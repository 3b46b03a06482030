package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/maheshrc27/reelsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeObjectStore) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveMetadata(t *testing.T) {
	store := &fakeObjectStore{}
	svc := NewR2ServiceWithClient("archive", store)
	meta := models.NewPostMetadata("c", "Title", "Desc", []string{"x"}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, svc.ArchiveMetadata(context.Background(), "nasa", "2025-01-01_00-00-00_UTC", meta))

	require.Len(t, store.inputs, 1)
	assert.Equal(t, "archive", aws.ToString(store.inputs[0].Bucket))
	assert.Equal(t, "nasa/2025-01-01_00-00-00_UTC/meta.json", aws.ToString(store.inputs[0].Key))
	assert.Equal(t, "application/json", aws.ToString(store.inputs[0].ContentType))

	var decoded models.PostMetadata
	require.NoError(t, json.Unmarshal(store.bodies[0], &decoded))
	assert.Equal(t, "Title", decoded.Title)
}

func TestArchiveMetadata_Error(t *testing.T) {
	svc := NewR2ServiceWithClient("archive", &fakeObjectStore{err: errors.New("denied")})

	err := svc.ArchiveMetadata(context.Background(), "nasa", "p", models.NewPostMetadata("", "", "", nil, time.Now()))
	assert.ErrorContains(t, err, "denied")
}
