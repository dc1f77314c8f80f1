package handle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "janedoe", expected: "janedoe"},
		{input: "@JohnDoe", expected: "JohnDoe"},
		{input: "  @JohnDoe \t\n", expected: "JohnDoe"},
		{input: "https://x.com/JohnDoe/status/123?x=1", expected: "JohnDoe"},
		{input: "https://twitter.com/JohnDoe", expected: "JohnDoe"},
		{input: "http://www.twitter.com/@JohnDoe/", expected: "JohnDoe"},
		{input: "HTTPS://Mobile.Twitter.com/JohnDoe?lang=en", expected: "JohnDoe"},
		{input: "x.com/JohnDoe#top", expected: "JohnDoe"},
		{input: "xavier", expected: "xavier"},
		{input: "x.company", expected: "x.company"},
		{input: "https://x.com/", expected: ""},
		{input: "", expected: ""},
	}

	for _, row := range table {
		require.Equal(t, row.expected, Normalize(row.input), "input: %q", row.input)
	}
}

func TestKey(t *testing.T) {
	require.Equal(t, "johndoe", Key("https://x.com/JohnDoe"))
	require.Equal(t, Key("@JOHNDOE"), Key("johndoe"))
}
