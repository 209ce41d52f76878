package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		want    string
		wantErr bool
	}{
		{name: "plain utf8", raw: []byte("print('hi')\n"), want: "print('hi')\n"},
		{name: "utf8 bom stripped", raw: append([]byte{0xEF, 0xBB, 0xBF}, "x = 1"...), want: "x = 1"},
		{name: "utf16 little endian", raw: []byte{0xFF, 0xFE, 'a', 0, 'b', 0}, want: "ab"},
		{name: "utf16 big endian", raw: []byte{0xFE, 0xFF, 0, 'o', 0, 'k'}, want: "ok"},
		{name: "invalid sequence", raw: []byte{'a', 0xC3, 0x28}, wantErr: true},
		{name: "binary with nul", raw: []byte{'E', 'L', 'F', 0, 1}, wantErr: true},
		{name: "empty", raw: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeText(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNotText)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRepoRef(t *testing.T) {
	ref, err := ParseRepoRef("vxunderground/MalwareSourceCode/Python")
	require.NoError(t, err)
	assert.Equal(t, RepoRef{Owner: "vxunderground", Name: "MalwareSourceCode", Path: "Python"}, ref)
	assert.Equal(t, "vxunderground/MalwareSourceCode/Python", ref.String())

	ref, err = ParseRepoRef("owner/repo")
	require.NoError(t, err)
	assert.Empty(t, ref.Path)

	_, err = ParseRepoRef("justowner")
	assert.Error(t, err)
}
