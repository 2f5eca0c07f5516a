package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocatorString(t *testing.T) {
	assert.Equal(t, "css=#username", CSS("#username").String())
	assert.Equal(t, "xpath=//button", XPath("//button").String())
	assert.True(t, Locator{}.IsZero())
	assert.False(t, CSS("a").IsZero())
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Send application", "'Send application'"},
		{"Don't", `"Don't"`},
		{`Say "hi" don't`, `concat('Say "hi" don', "'", 't')`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, XPathLiteral(tt.in))
	}
}

func TestNew_UnknownEngine(t *testing.T) {
	_, err := New(context.Background(), Options{Engine: "selenium"})
	assert.ErrorIs(t, err, ErrUnknownEngine)
}
