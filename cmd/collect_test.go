// -- cmd/collect_test.go --
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStockCodePattern(t *testing.T) {
	valid := []string{"005930", "000660", "123456"}
	for _, code := range valid {
		assert.True(t, stockCodePattern.MatchString(code), code)
	}

	invalid := []string{"", "5930", "0059301", "00593a", "005 930", "-05930"}
	for _, code := range invalid {
		assert.False(t, stockCodePattern.MatchString(code), code)
	}
}

func TestValidStrategy(t *testing.T) {
	strategies := []string{"buy_timing_diagnosis", "valuation_analysis"}

	assert.NoError(t, validStrategy(strategies, "valuation_analysis"))

	err := validStrategy(strategies, "moon_phase")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "moon_phase")
}
