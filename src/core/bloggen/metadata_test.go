package bloggen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"localpiece/src/core/bloggen"
)

func TestExtractMetadataNeverFails(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty bytes", data: nil},
		{name: "not an image", data: []byte("definitely not a jpeg")},
		{name: "truncated jpeg header", data: []byte{0xFF, 0xD8, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := bloggen.ExtractMetadata(tt.data, "broken.jpg")

			assert.Equal(t, "broken.jpg", meta.Filename)
			assert.Nil(t, meta.Timestamp)
			assert.Nil(t, meta.Latitude)
			assert.Nil(t, meta.Longitude)
		})
	}
}
