package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadReceiverFSM(t *testing.T) *FiniteStateMachine {
	fsm, err := LoadFile("../receiver/receiver_fsm.json")
	require.NoError(t, err)
	return fsm
}

func TestLoad(t *testing.T) {
	fsm := loadReceiverFSM(t)
	assert.Equal(t, 3, len(fsm.States))
	assert.Equal(t, 2, len(fsm.Transitions))
	assert.Equal(t, &fsm.States[0], fsm.CurrentState())
}

func TestTransitionAndMsgAllowance(t *testing.T) {
	fsm := loadReceiverFSM(t)
	assert.Equal(t, "INIT", fsm.CurrentState().Name)
	assert.True(t, fsm.IsAllowed(1))
	assert.False(t, fsm.IsAllowed(2))
	assert.False(t, fsm.IsAllowed(3))

	fsm.OnReceived(2)
	assert.Equal(t, "INIT", fsm.CurrentState().Name)

	fsm.OnReceived(1)
	assert.Equal(t, "OPEN", fsm.CurrentState().Name)
	assert.False(t, fsm.IsAllowed(1))
	assert.True(t, fsm.IsAllowed(2))
	assert.True(t, fsm.IsAllowed(3))
	assert.False(t, fsm.IsAllowed(4))

	fsm.OnReceived(2)
	assert.Equal(t, "OPEN", fsm.CurrentState().Name)

	fsm.OnReceived(3)
	assert.Equal(t, "CLOSED", fsm.CurrentState().Name)
	for msgType := uint32(0); msgType < 5; msgType++ {
		assert.False(t, fsm.IsAllowed(msgType))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	fsm := loadReceiverFSM(t)
	a, b := fsm.Clone(), fsm.Clone()
	a.OnReceived(1)
	assert.Equal(t, "OPEN", a.CurrentState().Name)
	assert.Equal(t, "INIT", b.CurrentState().Name)
	assert.Equal(t, "INIT", fsm.CurrentState().Name)
}

func TestInitStateAndBlacklist(t *testing.T) {
	fsm, err := Load([]byte(`{
		"InitState": "B",
		"States": [
			{"Name": "A", "MsgTypeWhitelist": "1"},
			{"Name": "B", "MsgTypeWhitelist": "1-10", "MsgTypeBlacklist": "4, 6-7"}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "B", fsm.CurrentState().Name)
	assert.Equal(t, "B", fsm.Clone().CurrentState().Name)
	assert.True(t, fsm.IsAllowed(3))
	assert.False(t, fsm.IsAllowed(4))
	assert.True(t, fsm.IsAllowed(5))
	assert.False(t, fsm.IsAllowed(7))
	assert.True(t, fsm.IsAllowed(10))

	assert.Error(t, fsm.ChangeState("C"))
}

func TestLoadErrors(t *testing.T) {
	for name, def := range map[string]string{
		"syntax":      `{"States": [`,
		"no states":   `{"States": []}`,
		"bad range":   `{"States": [{"Name": "A", "MsgTypeWhitelist": "1-x"}]}`,
		"bad from":    `{"States": [{"Name": "A"}], "Transitions": [{"FromState": "X", "ToState": "A", "MsgType": 1}]}`,
		"bad to":      `{"States": [{"Name": "A"}], "Transitions": [{"FromState": "A", "ToState": "X", "MsgType": 1}]}`,
		"bad initial": `{"InitState": "X", "States": [{"Name": "A"}]}`,
	} {
		_, err := Load([]byte(def))
		assert.Error(t, err, name)
	}
}
