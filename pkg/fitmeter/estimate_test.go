package fitmeter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTextUnits(t *testing.T) {
	assert.Equal(t, uint64(0), EstimateTextUnits(0))
	assert.Equal(t, uint64(1), EstimateTextUnits(1))
	assert.Equal(t, uint64(1), EstimateTextUnits(4))
	assert.Equal(t, uint64(2), EstimateTextUnits(5))
	assert.Equal(t, uint64(0), EstimateTextUnits(-3))
}

func TestEstimatePlanUnits(t *testing.T) {
	// no provider counts: ceil(400/4) + ceil(1001/4)
	assert.Equal(t, uint64(100+251), EstimatePlanUnits(400, 1001, 0, 0))
	// provider counts win
	assert.Equal(t, uint64(30+70), EstimatePlanUnits(400, 1001, 30, 70))
	// partial provider counts fall back per side
	assert.Equal(t, uint64(30+251), EstimatePlanUnits(400, 1001, 30, 0))
}

func TestEstimateImageUnits(t *testing.T) {
	// 250 KB image plus a 190 character result
	assert.Equal(t, uint64(2500+48), EstimateImageUnits(250000, 190))
	assert.Equal(t, uint64(1), EstimateImageUnits(1, 0))
	assert.Equal(t, uint64(0), EstimateImageUnits(0, 0))
}
