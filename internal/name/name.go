// Package name canonicalizes and validates candidate names.
//
// Validation is deliberately byte-wise: a multi-byte UTF-8 character fails
// because at least one of its bytes falls outside [0-9a-zA-Z]. Consumers rely
// on this exact rejection set, so the checks must never be upgraded to
// code-point or locale-aware semantics.
package name

import (
	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
)

// Length bounds for the registrar-level default. Controller instances carry
// their own floor via Rules.
const (
	MinLength = 2
	MaxLength = 15
)

// Rules is the per-protocol-instance length policy. The character set is not
// configurable.
type Rules struct {
	MinLength int
	MaxLength int
}

// DefaultRules matches the registrar-level bounds.
func DefaultRules() Rules {
	return Rules{MinLength: MinLength, MaxLength: MaxLength}
}

// Canonical is a name in its uniqueness-key form: ASCII-lowercased, validated.
type Canonical string

func (c Canonical) String() string {
	return string(c)
}

// Validate checks raw against the rules and returns its canonical form.
func Validate(raw string, rules Rules) (Canonical, error) {
	if len(raw) < rules.MinLength || len(raw) > rules.MaxLength {
		return "", dErrors.Newf(dErrors.CodeBadRequest,
			"name should be greater than or equal to %d and less than or equal to %d", rules.MinLength, rules.MaxLength)
	}
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		valid := (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
		if !valid {
			return "", dErrors.New(dErrors.CodeBadRequest, "invalid character")
		}
	}
	return Canonical(Canonicalize(raw)), nil
}

// Canonicalize lowercases ASCII A-Z only; every other byte passes through
// unchanged. This is an explicit byte transform, not a locale-aware lowering.
func Canonicalize(raw string) string {
	buf := []byte(raw)
	changed := false
	for i, b := range buf {
		if b >= 'A' && b <= 'Z' {
			buf[i] = b + ('a' - 'A')
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return string(buf)
}

// LabelHash derives the token key for a canonical name. The keccak digest of
// the canonical bytes is both the naming-system label and the token id.
func LabelHash(c Canonical) id.Hash {
	return id.Keccak256([]byte(c))
}

// TokenID is the label hash of the canonicalized raw name.
func TokenID(raw string) id.Hash {
	return LabelHash(Canonical(Canonicalize(raw)))
}

// FormatURI renders the metadata URI for a display name. An unset base URI
// yields the empty string rather than a relative path.
func FormatURI(baseURI, displayName string) string {
	if baseURI == "" {
		return ""
	}
	return baseURI + displayName
}
