package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"", "none"},
		{"po_1700000000_ab12", "po_1700000000_ab12"},
		{"0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12", "0xab12cd34...56ab12"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShortRef(tt.ref))
	}
}

func TestFormatDetail(t *testing.T) {
	assert.Equal(t, "", FormatDetail(nil))
	assert.Equal(t, "backend=mock payoutId=po_1", FormatDetail(map[string]string{"payoutId": "po_1", "backend": "mock"}))
}
