package trew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInjectTag(t *testing.T) {
	tests := []struct {
		tag  string
		want tagOptions
	}{
		{"", tagOptions{}},
		{"  ", tagOptions{}},
		{"-", tagOptions{skip: true}},
		{"optional", tagOptions{optional: true}},
		{"Nullable", tagOptions{optional: true}},
		{"assist", tagOptions{assisted: true}},
		{"assisted,name=amount", tagOptions{assisted: true, name: "amount"}},
		{"name=db", tagOptions{name: "db"}},
		{"name=db, optional", tagOptions{name: "db", optional: true}},
		{"marker=primary", tagOptions{marker: "primary"}},
		{"property=server.addr,optional", tagOptions{property: "server.addr", optional: true}},
		{"singleton", tagOptions{scope: "singleton"}},
		{"scope=request,name=x", tagOptions{scope: "request", name: "x"}},
		{"optional,,", tagOptions{optional: true}},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := parseInjectTag(tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInjectTag_Errors(t *testing.T) {
	tests := []string{
		"required",
		"name",
		"Name=db",
		"name=a,property=b",
		"name=a,marker=b",
	}

	for _, tag := range tests {
		t.Run(tag, func(t *testing.T) {
			_, err := parseInjectTag(tag)
			assert.Error(t, err)
		})
	}
}
