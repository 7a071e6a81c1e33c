package submission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/vulnscan-engine/internal/scanerr"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		rawName     string
		rawTag      string
		rawRegistry string
		want        Reference
	}{
		{
			name:    "defaults applied",
			rawName: "nginx",
			want:    Reference{Registry: "docker.io", Name: "nginx", Tag: "latest"},
		},
		{
			name:    "uppercase lowered and slashes trimmed",
			rawName: "/Nginx/",
			want:    Reference{Registry: "docker.io", Name: "nginx", Tag: "latest"},
		},
		{
			name:    "tag split from name on rightmost colon",
			rawName: "redis:7.0",
			want:    Reference{Registry: "docker.io", Name: "redis", Tag: "7.0"},
		},
		{
			name:    "explicit tag wins over embedded colon tag",
			rawName: "redis:7.0",
			rawTag:  "7.2",
			want:    Reference{Registry: "docker.io", Name: "redis", Tag: "7.2"},
		},
		{
			name:    "registry lifted from dotted first segment",
			rawName: "registry.example.com/team/app",
			want:    Reference{Registry: "registry.example.com", Name: "team/app", Tag: "latest"},
		},
		{
			name:    "registry lifted from localhost segment",
			rawName: "localhost/app",
			want:    Reference{Registry: "localhost", Name: "app", Tag: "latest"},
		},
		{
			name:    "registry with port and embedded tag",
			rawName: "localhost:5000/myimage:tag",
			want:    Reference{Registry: "localhost:5000", Name: "myimage", Tag: "tag"},
		},
		{
			name:        "explicit registry overrides inference",
			rawName:     "myimage",
			rawRegistry: "ghcr.io",
			want:        Reference{Registry: "ghcr.io", Name: "myimage", Tag: "latest"},
		},
		{
			name:    "first segment without dot or colon is not a registry",
			rawName: "library/nginx",
			want:    Reference{Registry: "docker.io", Name: "library/nginx", Tag: "latest"},
		},
		{
			name:    "single character name is valid",
			rawName: "a",
			want:    Reference{Registry: "docker.io", Name: "a", Tag: "latest"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.rawName, tt.rawTag, tt.rawRegistry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		rawName string
		rawTag  string
	}{
		{name: "empty name", rawName: ""},
		{name: "name with leading and trailing dashes", rawName: "-bad-"},
		{name: "tag starting with dash", rawName: "nginx", rawTag: "-bad"},
		{name: "tag starting with dot", rawName: "nginx", rawTag: ".bad"},
		{name: "name with invalid character", rawName: "nginx!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.rawName, tt.rawTag, "")
			require.Error(t, err)
			se, ok := scanerr.As(err)
			require.True(t, ok)
			assert.Equal(t, scanerr.CodeValidation, se.Code)
		})
	}
}
