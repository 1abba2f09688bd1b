package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentTypeForKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"reels/DQ8gR5ukegX.mp4", "video/mp4"},
		{"reels/DQ8gR5ukegX.MP4", "video/mp4"},
		{"thumbs/scene_001.jpg", "image/jpeg"},
		{"thumbs/scene_001.jpeg", "image/jpeg"},
		{"meta/DQ8gR5ukegX.json", "application/json"},
		{"misc/blob", "application/octet-stream"},
		{"misc/archive.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, contentTypeForKey(tt.key), "key %q", tt.key)
	}
}
