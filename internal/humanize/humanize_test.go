package humanize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	assert.Equal(t, "0 B", Bytes(0))
	assert.Equal(t, "1023 B", Bytes(1023))
	assert.Equal(t, "1.00 KiB", Bytes(1024))
	assert.Equal(t, "1.50 KiB", Bytes(1536))
	assert.Equal(t, "10.00 MiB", Bytes(10*1024*1024))
	assert.Equal(t, "5.00 GiB", Bytes(5*1024*1024*1024))
}
