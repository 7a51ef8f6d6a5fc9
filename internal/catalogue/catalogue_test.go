package catalogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_ExactAndFallback(t *testing.T) {
	c := New()

	cases := []struct {
		manager, namespace, name string
		want                     Category
	}{
		{"apk", "", "alpine", OperatingSystem},
		{"deb", "debian", "openssl", CryptographyLibrary},
		{"deb", "", "debian", OperatingSystem},
		{"apk", "alpine", "python3", ProgrammingLanguage},
		{"golang", "golang.org/x", "crypto", CryptographyLibrary},
		{"golang", "golang.org/x", "tools", Library},
		{"generic", "", "some-binary", Application},
		{"npm", "", "left-pad", Library},
	}

	for _, tc := range cases {
		got := c.Classify(tc.manager, tc.namespace, tc.name)
		assert.Equalf(t, tc.want, got, "manager=%s namespace=%s name=%s", tc.manager, tc.namespace, tc.name)
	}
}

func TestClassify_WildcardAppliesAcrossManagers(t *testing.T) {
	c := New()

	managers := []string{"deb", "apk", "rpm", "generic", "conan"}
	for _, m := range managers {
		got := c.Classify(m, "", "openssl")
		assert.Equal(t, CryptographyLibrary, got, "manager=%s", m)
	}
}

func TestClassify_CachesResult(t *testing.T) {
	c := New()
	first := c.Classify("deb", "debian", "openssl")
	second := c.Classify("deb", "debian", "openssl")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.cache.Len())
}
