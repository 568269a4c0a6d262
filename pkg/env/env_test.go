package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstSkipsBlankValues(t *testing.T) {
	t.Setenv("CODF_TEST_A", "  ")
	t.Setenv("CODF_TEST_B", " worker-2 ")

	assert.Equal(t, "worker-2", First("local", "CODF_TEST_A", "CODF_TEST_B"))
	assert.Equal(t, "local", First("local", "CODF_TEST_A"))
	assert.Equal(t, "json", Get("CODF_TEST_UNSET", "json"))
}
