package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	t.Run("Renders milliseconds below one second", func(t *testing.T) {
		assert.Equal(t, "123.45 ms", Duration(123.45))
		assert.Equal(t, "0.00 ms", Duration(0))
		assert.Equal(t, "999.99 ms", Duration(999.99))
	})

	t.Run("Renders seconds below one minute", func(t *testing.T) {
		assert.Equal(t, "1.00 s", Duration(1000))
		assert.Equal(t, "2.34 s", Duration(2340))
		assert.Equal(t, "59.99 s", Duration(59990))
	})

	t.Run("Renders minutes and seconds above", func(t *testing.T) {
		assert.Equal(t, "1m 30.50s", Duration(90500))
		assert.Equal(t, "2m 0.00s", Duration(120000))
	})
}
