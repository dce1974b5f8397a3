package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"campuswatch/internal/errors"
)

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-4567", "15551234567"},
		{"15551234567", "15551234567"},
		{"+254-712-345678", "254712345678"},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhoneNumber(tt.in), "input %q", tt.in)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	assert.NoError(t, ValidatePhoneNumber("15551234567"))
	assert.NoError(t, ValidatePhoneNumber("+254 712 345678"))

	err := ValidatePhoneNumber("")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))

	assert.Error(t, ValidatePhoneNumber("12345"))
	assert.Error(t, ValidatePhoneNumber(strings.Repeat("9", 25)))
}

func TestValidateMessageID(t *testing.T) {
	assert.NoError(t, ValidateMessageID("wamid.HBgLMTU1NTEyMzQ1NjcVAgASGBQzQTBC"))

	assert.Error(t, ValidateMessageID(""))
	assert.Error(t, ValidateMessageID("bad\nid"))
	assert.Error(t, ValidateMessageID("bad\x00id"))
	assert.Error(t, ValidateMessageID(strings.Repeat("a", 1000)))
}

func TestValidateHTTPRequestSize(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader("small"))
	assert.NoError(t, ValidateHTTPRequestSize(req, 1024))

	req.ContentLength = 2048
	assert.Error(t, ValidateHTTPRequestSize(req, 1024))

	req.ContentLength = -1
	assert.Error(t, ValidateHTTPRequestSize(req, 1024))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10))
	assert.Equal(t, "hel", TruncateString("hello", 3))
	assert.Equal(t, "", TruncateString("hello", 0))
	// rune-aware, never splits a multibyte character
	assert.Equal(t, "héll", TruncateString("héllo", 4))
}
