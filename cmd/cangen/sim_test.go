package main

import (
	"testing"

	"github.com/squadracorsepolito/acmesig/cannelloni"
	"github.com/squadracorsepolito/acmesig/profiles/model3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_simulator(t *testing.T) {
	assert := assert.New(t)

	sim, err := newSimulator()
	require.NoError(t, err)

	for step := range 1000 {
		packet, err := sim.next()
		require.NoError(t, err)

		decoded, err := cannelloni.DecodePacket(packet.Encode())
		require.NoError(t, err)

		assert.Equal(uint8(step), decoded.Sequence)
		require.Len(t, decoded.Frames, 3)
		assert.Equal(model3.IDDriveSystemStatus, decoded.Frames[0].CANID)
		assert.Equal(model3.IDSpeed, decoded.Frames[1].CANID)
		assert.Equal(model3.IDRearInverterPower, decoded.Frames[2].CANID)
	}
}
