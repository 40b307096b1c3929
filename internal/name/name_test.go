package name

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "namereg/pkg/domain-errors"
)

func TestValidate(t *testing.T) {
	rules := DefaultRules()

	t.Run("accepts a-z, A-Z and 0-9", func(t *testing.T) {
		for _, raw := range []string{"qwertyuiopasdfg", "hjklzxcvbnm", "QWERTYUIOPASDFG", "HJKLZXCVBNM", "123456789", "123456789aBcd", "ab"} {
			c, err := Validate(raw, rules)
			require.NoError(t, err, raw)
			assert.Equal(t, Canonicalize(raw), c.String())
		}
	})

	t.Run("rejects disallowed bytes", func(t *testing.T) {
		for _, raw := range []string{
			"the username", // space
			"username!",
			"^\"}username",
			"user_name",
			"user-name",
			"user.name",
			"👍username",
			"€username",
			"𐍈username",
			"name\x00pad",
			"name\npad",
		} {
			_, err := Validate(raw, rules)
			require.Error(t, err, raw)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
			assert.Equal(t, "invalid character", dErrors.Reason(err))
		}
	})

	t.Run("rejects out-of-bounds lengths", func(t *testing.T) {
		for _, raw := range []string{"", "a", "abignameregistry", strings.Repeat("a", 16)} {
			_, err := Validate(raw, rules)
			require.Error(t, err, raw)
			assert.Equal(t,
				"name should be greater than or equal to 2 and less than or equal to 15",
				dErrors.Reason(err))
		}
	})

	t.Run("honors per-instance floor", func(t *testing.T) {
		strict := Rules{MinLength: 3, MaxLength: 15}
		_, err := Validate("ab", strict)
		require.Error(t, err)
		assert.Equal(t,
			"name should be greater than or equal to 3 and less than or equal to 15",
			dErrors.Reason(err))

		_, err = Validate("abc", strict)
		require.NoError(t, err)
	})

	t.Run("multi-byte length is counted in bytes", func(t *testing.T) {
		// Two three-byte characters: six bytes, within bounds, still rejected
		// on the character check.
		_, err := Validate("€€", rules)
		require.Error(t, err)
		assert.Equal(t, "invalid character", dErrors.Reason(err))
	})
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "nacho", Canonicalize("Nacho"))
	assert.Equal(t, "nacho", Canonicalize("NACHO"))
	assert.Equal(t, "123456789abcd", Canonicalize("123456789aBcd"))
	// Non-ASCII bytes pass through untouched.
	assert.Equal(t, "€name", Canonicalize("€NAME"))
}

func TestTokenID(t *testing.T) {
	t.Run("case permutations share a token id", func(t *testing.T) {
		base := TokenID("nacho")
		assert.Equal(t, base, TokenID("Nacho"))
		assert.Equal(t, base, TokenID("NACHO"))
		assert.Equal(t, base, TokenID("nAcHo"))
	})

	t.Run("distinct names get distinct ids", func(t *testing.T) {
		assert.NotEqual(t, TokenID("nacho"), TokenID("nachos"))
	})

	t.Run("round-trips through the canonical form", func(t *testing.T) {
		c, err := Validate("Nacho", DefaultRules())
		require.NoError(t, err)
		assert.Equal(t, TokenID("Nacho"), LabelHash(c))
	})
}

func TestFormatURI(t *testing.T) {
	assert.Equal(t, "", FormatURI("", "Nacho"))
	assert.Equal(t, "https://names.example.com/v1/Nacho", FormatURI("https://names.example.com/v1/", "Nacho"))
}
