package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prilive-com/enflux/internal/validate"
)

func TestSourceID(t *testing.T) {
	assert.NoError(t, validate.SourceID("world-bank"))
	assert.NoError(t, validate.SourceID("esmap/mtf"))
	assert.NoError(t, validate.SourceID("nasa-power"))

	assert.Error(t, validate.SourceID(""))
	assert.Error(t, validate.SourceID("World-Bank"))
	assert.Error(t, validate.SourceID("world bank"))
	assert.Error(t, validate.SourceID("-leading"))
	assert.Error(t, validate.SourceID("trailing/"))
}

func TestDataType(t *testing.T) {
	assert.NoError(t, validate.DataType("solar_irradiance"))
	assert.NoError(t, validate.DataType("electricity-access"))

	assert.Error(t, validate.DataType(""))
	assert.Error(t, validate.DataType("Solar"))
	assert.Error(t, validate.DataType("solar irradiance"))
	assert.Error(t, validate.DataType("_leading"))
}

func TestURL(t *testing.T) {
	assert.NoError(t, validate.URL("https://api.worldbank.org/v2"))
	assert.NoError(t, validate.URL("http://localhost:8080"))

	assert.Error(t, validate.URL(""))
	assert.Error(t, validate.URL("ftp://example.org"))
}

func TestNumericValidators(t *testing.T) {
	assert.NoError(t, validate.Positive("n", 1))
	assert.Error(t, validate.Positive("n", 0))

	assert.NoError(t, validate.NonNegative("n", 0))
	assert.Error(t, validate.NonNegative("n", -1))

	assert.NoError(t, validate.InRange("n", 5, 1, 10))
	assert.Error(t, validate.InRange("n", 11, 1, 10))

	assert.NoError(t, validate.UnitInterval("q", 0.5))
	assert.Error(t, validate.UnitInterval("q", 1.5))
}

func TestErrorMessage(t *testing.T) {
	err := validate.New("field", "cannot be empty")
	assert.Equal(t, "validation: field - cannot be empty", err.Error())
}
