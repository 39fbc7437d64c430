package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunID(t *testing.T) {
	a, b := RunID(), RunID()
	assert.NotEqual(t, a, b)
	assert.True(t, ValidRunID(a))
	assert.Len(t, a, len("run_")+36)
}

func TestValidRunID(t *testing.T) {
	assert.False(t, ValidRunID(""))
	assert.False(t, ValidRunID(New()))
	assert.False(t, ValidRunID("run_not-a-uuid"))
	assert.True(t, ValidRunID("run_1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
}
