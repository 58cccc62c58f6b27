package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"CHWY", "SPY", "XRT"}, SplitList(" CHWY, SPY,,XRT "))
	assert.Empty(t, SplitList(""))
}
