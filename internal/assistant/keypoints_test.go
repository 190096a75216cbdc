// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKeyPoints(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"dashes", "- one\n- two", []string{"one", "two"}},
		{"mixed markers", "* a\r\n+ b\n• c", []string{"a", "b", "c"}},
		{"numbered", "1. first\n2) second\n10. tenth", []string{"first", "second", "tenth"}},
		{"intro and heading skipped", "## Points\nHere are the points:\n- x", []string{"x"}},
		{"indented", "  - nested item", []string{"nested item"}},
		{"no list falls back to lines", "Line A\n\nLine B", []string{"Line A", "Line B"}},
		{"empty marker ignored", "- \n- real", []string{"real"}},
		{"bold text kept", "- **Key**: value", []string{"**Key**: value"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeyPoints(tt.in))
		})
	}
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "French", LanguageName("fr"))
	assert.Equal(t, "German", LanguageName(" de "))
	assert.Equal(t, "Japanese", LanguageName("ja"))
	assert.Equal(t, "English", LanguageName(""))
	assert.Equal(t, "Klingon or whatever", LanguageName("Klingon or whatever"))
	assert.Equal(t, "French", LanguageName("French"), "names pass through")
}
