package whitelist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanEntryPropagatesScanError(t *testing.T) {
	scanErr := errors.New("sql: Scan error on column index 2")
	_, err := scanEntry(func(...interface{}) error { return scanErr })
	assert.ErrorIs(t, err, scanErr)
}

func TestScanEntryPopulatesFields(t *testing.T) {
	e, err := scanEntry(func(dest ...interface{}) error {
		*(dest[0].(*string)) = "wl_001"
		*(dest[2].(*string)) = "local cafe"
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "wl_001", e.ID)
	assert.Equal(t, "local cafe", e.Pattern)
}
