package store

import (
	"bytes"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseArchive uploads persisted records to a Supabase storage bucket so
// summaries survive host redeploys.
type SupabaseArchive struct {
	client *supabase.Client
	bucket string
}

// NewSupabaseArchive connects to the project's storage API.
func NewSupabaseArchive(url, serviceRoleKey, bucket string) (*SupabaseArchive, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseArchive{client: client, bucket: bucket}, nil
}

// Upload stores data under key in the configured bucket.
func (a *SupabaseArchive) Upload(key string, data []byte) error {
	_, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}
