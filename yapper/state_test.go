package yapper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionState(t *testing.T) {
	tests := []struct {
		state ConnectionState
		name  string
		idle  bool
	}{
		{StateDisconnected, "disconnected", true},
		{StateConnecting, "connecting", false},
		{StateConnected, "connected", false},
		{StateReconnecting, "reconnecting", false},
		{StateClosed, "closed", true},
		{ConnectionState(42), "unknown", false},
		{ConnectionState(-1), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.idle, tt.state.Idle())
		})
	}
}

func TestStateEventLost(t *testing.T) {
	drop := errors.New("eof")
	assert.True(t, StateEvent{OldState: StateConnected, NewState: StateReconnecting, Error: drop}.Lost())
	assert.True(t, StateEvent{OldState: StateConnected, NewState: StateDisconnected, Error: drop}.Lost())
	assert.False(t, StateEvent{OldState: StateConnected, NewState: StateClosed}.Lost())
	assert.False(t, StateEvent{OldState: StateConnecting, NewState: StateConnected}.Lost())
	assert.False(t, StateEvent{OldState: StateReconnecting, NewState: StateDisconnected, Error: drop}.Lost())
}
