package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"fr":       "fr",
		"FR":       "fr",
		"fr-FR":    "fr",
		"en_US":    "en",
		"french":   "fr",
		"Français": "fr",
		"Anglais":  "en",
		"Espagnol": "es",
		"Arabe":    "ar",
		"Russe":    "ru",
		" german ": "de",
		"Klingon":  "klingon",
		"":         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "Spanish", Name("Espagnol"))
	assert.Equal(t, "French", Name("fr"))
	assert.Equal(t, "Klingon", Name("Klingon"))
}
