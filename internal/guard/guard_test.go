package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewToken_ProducesNonEmptyCode(t *testing.T) {
	token := NewToken()

	assert.NotEmpty(t, token.Current())
}

func TestCurrent_DoesNotRotate(t *testing.T) {
	token := NewToken()

	first := token.Current()
	second := token.Current()

	assert.Equal(t, first, second)
}

func TestCheck_SucceedsOnMatchingCodeAndSuffix(t *testing.T) {
	token := NewToken()
	code := token.Current()

	ok, newCode := token.Check(code + Suffix)

	assert.True(t, ok)
	assert.NotEqual(t, code, newCode)
}

func TestCheck_FailsOnMismatch(t *testing.T) {
	token := NewToken()

	ok, newCode := token.Check("wrong-code" + Suffix)

	assert.False(t, ok)
	assert.NotEmpty(t, newCode)
}

func TestCheck_RotatesEvenOnFailure(t *testing.T) {
	token := NewToken()
	before := token.Current()

	token.Check("nonsense")

	assert.NotEqual(t, before, token.Current())
}

func TestCheck_RotatedCodeNoLongerValidatesOldAuth(t *testing.T) {
	token := NewToken()
	code := token.Current()

	token.Check(code + Suffix) // first use rotates

	ok, _ := token.Check(code + Suffix) // replay of the old code

	assert.False(t, ok)
}

func TestCheck_RejectsEmptyAuth(t *testing.T) {
	token := NewToken()

	ok, _ := token.Check("")

	assert.False(t, ok)
}
