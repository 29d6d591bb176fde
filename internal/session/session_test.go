package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromCookieHeaderParsesPairs(t *testing.T) {
	t.Parallel()

	s, err := FromCookieHeader("c_user=1000123; xs=abc%3Adef; datr=xyz", ".facebook.com")
	require.NoError(t, err)
	require.Len(t, s.Cookies, 3)
	require.Equal(t, "c_user", s.Cookies[0].Name)
	require.Equal(t, "1000123", s.Cookies[0].Value)
	require.Equal(t, ".facebook.com", s.Cookies[0].Domain)
	require.Equal(t, "/", s.Cookies[0].Path)
}

func TestFromCookieHeaderSkipsMalformedParts(t *testing.T) {
	t.Parallel()

	s, err := FromCookieHeader("good=1; ;=bad; also-good=2", "example.com")
	require.NoError(t, err)
	require.Len(t, s.Cookies, 2)
	require.Equal(t, "also-good", s.Cookies[1].Name)
}

func TestFromCookieHeaderEmptyFails(t *testing.T) {
	t.Parallel()

	_, err := FromCookieHeader("  ", "example.com")
	require.Error(t, err)

	_, err = FromCookieHeader("; ;", "example.com")
	require.Error(t, err)
}

func TestCookieHeaderRoundTrips(t *testing.T) {
	t.Parallel()

	s, err := FromCookieHeader("a=1; b=2", "example.com")
	require.NoError(t, err)
	require.Equal(t, "a=1; b=2", s.CookieHeader())
}

func TestFromAPIKeysBuildsCredentials(t *testing.T) {
	t.Parallel()

	s, err := FromAPIKeys([]string{"k1", " ", "k2"}, 100)
	require.NoError(t, err)
	require.Len(t, s.Credentials, 2)
	require.Equal(t, "k1", s.Credentials[0].Key)
	require.Equal(t, 100, s.Credentials[0].Budget)
}

func TestFromAPIKeysEmptyFails(t *testing.T) {
	t.Parallel()

	_, err := FromAPIKeys(nil, 100)
	require.Error(t, err)
}
