package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeySkipsEmptyParts(t *testing.T) {
	assert.Equal(t, "hci:snapshot:weather", Key("snapshot", "", "weather"))
	assert.Equal(t, "hci", Key())
}
