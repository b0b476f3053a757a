package department

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindIsValid(t *testing.T) {
	assert.True(t, KindForskola.IsValid())
	assert.True(t, KindFritidshem.IsValid())
	assert.False(t, Kind("SCHOOL").IsValid())
}

func TestAcceptsAge(t *testing.T) {
	d := Department{AgeMin: 1, AgeMax: 5}

	assert.False(t, d.AcceptsAge(0))
	assert.True(t, d.AcceptsAge(1))
	assert.True(t, d.AcceptsAge(5))
	assert.False(t, d.AcceptsAge(6))
}
