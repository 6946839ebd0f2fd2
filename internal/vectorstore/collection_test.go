package vectorstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dengue_kb", "dengue_kb"},
		{"Dengue KB (v2)", "dengue_kb_v2"},
		{"who.int/dengue--faq", "who_int_dengue_faq"},
		{"", DefaultCollection},
		{"!!!", DefaultCollection},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CollectionName(tt.in))
		})
	}
}

func TestCollectionName_Long(t *testing.T) {
	a := CollectionName(strings.Repeat("a", 80) + "x")
	b := CollectionName(strings.Repeat("a", 80) + "y")

	assert.Len(t, a, maxCollectionLen)
	assert.Len(t, b, maxCollectionLen)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[a-z0-9_]{1,64}$`, a)
}
