package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLValidator(t *testing.T) {
	t.Run("valid https URL", func(t *testing.T) {
		v := NewURLValidator(nil, nil, false)
		u, err := v.ValidateURL("https://example.com/page")
		require.NoError(t, err)
		assert.Equal(t, "example.com", u.Hostname())
	})

	t.Run("valid http URL", func(t *testing.T) {
		v := NewURLValidator(nil, nil, false)
		_, err := v.ValidateURL("http://example.com")
		assert.NoError(t, err)
	})

	t.Run("rejects non-http scheme", func(t *testing.T) {
		v := NewURLValidator(nil, nil, false)
		_, err := v.ValidateURL("file:///etc/passwd")
		assert.Error(t, err)
	})

	t.Run("rejects missing host", func(t *testing.T) {
		v := NewURLValidator(nil, nil, false)
		_, err := v.ValidateURL("https://")
		assert.Error(t, err)
	})

	t.Run("rejects private IP by default", func(t *testing.T) {
		v := NewURLValidator(nil, nil, false)
		for _, raw := range []string{
			"http://127.0.0.1:8080/",
			"http://10.1.2.3/",
			"http://192.168.1.1/admin",
			"http://169.254.169.254/latest/meta-data",
		} {
			_, err := v.ValidateURL(raw)
			assert.Error(t, err, "expected %s to be rejected", raw)
			assert.True(t, IsBlockedURL(err))
		}
	})

	t.Run("allows private IP when configured", func(t *testing.T) {
		v := NewURLValidator(nil, nil, true)
		_, err := v.ValidateURL("http://127.0.0.1:8080/")
		assert.NoError(t, err)
	})

	t.Run("denied domain", func(t *testing.T) {
		v := NewURLValidator(nil, []string{"evil.test"}, false)
		_, err := v.ValidateURL("https://evil.test/page")
		assert.Error(t, err)
		assert.True(t, IsBlockedURL(err))
	})

	t.Run("allowed domain list excludes others", func(t *testing.T) {
		v := NewURLValidator([]string{"a.test"}, nil, false)

		_, err := v.ValidateURL("https://a.test/x")
		assert.NoError(t, err)

		_, err = v.ValidateURL("https://b.test/y")
		assert.Error(t, err)
		assert.True(t, IsBlockedURL(err))
	})

	t.Run("empty allowed list allows all", func(t *testing.T) {
		v := NewURLValidator(nil, nil, false)
		_, err := v.ValidateURL("https://anything.example.org")
		assert.NoError(t, err)
	})
}

func TestIsContentID(t *testing.T) {
	assert.True(t, IsContentID("a1b2c3d4e5f6"))
	assert.True(t, IsContentID("000000000000"))

	assert.False(t, IsContentID(""))
	assert.False(t, IsContentID("a1b2c3d4e5f"))
	assert.False(t, IsContentID("a1b2c3d4e5f67"))
	assert.False(t, IsContentID("A1B2C3D4E5F6"))
	assert.False(t, IsContentID("../etc/passwd"))
	assert.False(t, IsContentID("a1b2c3d4e5fg"))
}
