package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1234567890", "+******7890"},
		{"15551234567", "*******4567"},
		{"+123", "+***"},
		{"123", "***"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskPhoneNumber(tt.in), "input %q", tt.in)
	}
}

func TestMaskMessageID(t *testing.T) {
	assert.Equal(t, "wami...3QzA", MaskMessageID("wamid.HBgLMTU1NTEyMzQ1NjcVAgASGBQ3QzA"))
	assert.Equal(t, "short", MaskMessageID("short"))
	assert.Equal(t, "", MaskMessageID(""))
}

func TestMaskSensitiveFields(t *testing.T) {
	fields := map[string]interface{}{
		"from":       "15551234567",
		"message_id": "wamid.HBgLMTU1NTEyMzQ1Njc",
		"category":   "maintenance",
		"count":      3,
	}

	masked := MaskSensitiveFields(fields)

	assert.Equal(t, "*******4567", masked["from"])
	assert.NotEqual(t, fields["message_id"], masked["message_id"])
	assert.Equal(t, "maintenance", masked["category"])
	assert.Equal(t, 3, masked["count"])

	assert.Nil(t, MaskSensitiveFields(nil))
}
