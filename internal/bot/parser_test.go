package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUserID(t *testing.T) {
	cases := map[string]string{
		"<@123>":  "123",
		"<@!456>": "456",
		"789":     "789",
	}
	for input, want := range cases {
		got, ok := parseUserID(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	for _, bad := range []string{"", "<#123>", "<@&123>", "bob", "<@abc>"} {
		_, ok := parseUserID(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseChannelAndRole(t *testing.T) {
	id, ok := parseChannelID("<#42>")
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	id, ok = parseRoleID("<@&77>")
	assert.True(t, ok)
	assert.Equal(t, "77", id)

	_, ok = parseRoleID("<@77>")
	assert.False(t, ok)
}

func TestParseToggle(t *testing.T) {
	on, ok := parseToggle("ON")
	assert.True(t, ok)
	assert.True(t, on)

	_, ok = parseToggle("maybe")
	assert.False(t, ok)
}

func TestRestAfter(t *testing.T) {
	assert.Equal(t, "being  rude again", restAfter("<@1>   being  rude again", 1))
	assert.Equal(t, "rude", restAfter("<@1> 10 rude", 2))
	assert.Equal(t, "", restAfter("<@1>", 1))
}
