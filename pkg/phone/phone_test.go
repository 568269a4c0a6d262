package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
)

func TestNormalizeFormatsE164(t *testing.T) {
	got, err := Normalize("(415) 555-2671", "US")
	require.NoError(t, err)
	assert.Equal(t, "+14155552671", got)

	got, err = Normalize("+44 20 7946 0958", "US")
	require.NoError(t, err)
	assert.Equal(t, "+442079460958", got)
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	_, err := Normalize("   ", "US")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.Classify(err))
}

func TestSuffixKeepsLastNineDigits(t *testing.T) {
	assert.Equal(t, "155552671", Suffix("+1 (415) 555-2671"))
	assert.Equal(t, "155552671", Suffix("4155552671"))
	assert.Equal(t, "12345", Suffix("12-345"))
}
