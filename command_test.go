package aerostat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeCommand(t *testing.T) {
	enc := NewCommandEncoder(RevisionB)

	data, err := enc.Encode(OutboundCommand{Ballast: "5", Gas: "12.5"})
	assert.NoError(t, err)
	assert.Equal(t, "5,12.5\r\n", string(data))

	// free-form operator text is passed through
	data, err = enc.Encode(OutboundCommand{Ballast: "drop two", Gas: "-1"})
	assert.NoError(t, err)
	assert.Equal(t, "drop two,-1\r\n", string(data))
}

func TestEncodeCommandLegacy(t *testing.T) {
	enc := NewCommandEncoder(RevisionA)
	data, err := enc.Encode(OutboundCommand{Ballast: "5", Gas: "3"})
	assert.NoError(t, err)
	assert.Equal(t, "BXX,5,3\n", string(data))
}

func TestEncodeCommandEmpty(t *testing.T) {
	enc := NewCommandEncoder(nil)
	for _, cmd := range []OutboundCommand{
		{},
		{Ballast: "1"},
		{Gas: "1"},
	} {
		data, err := enc.Encode(cmd)
		assert.Equal(t, ErrEmptyCommandField, err)
		assert.Nil(t, data)
	}
}

func TestEncodeCommandRoundTrip(t *testing.T) {
	enc := NewCommandEncoder(RevisionB)
	for _, cmd := range []OutboundCommand{
		{Ballast: "0", Gas: "0"},
		{Ballast: " ", Gas: "x"},
		{Ballast: "100", Gas: "99.99"},
		{Ballast: "ballast", Gas: "gas volume"},
	} {
		data, err := enc.Encode(cmd)
		if !assert.NoError(t, err) {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(string(data), "\r\n"), ",")
		assert.Equal(t, []string{cmd.Ballast, cmd.Gas}, parts)
	}
}
