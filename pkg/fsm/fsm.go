// Package fsm gates the message types a connection may send depending on its
// protocol state. A machine is described in JSON: every state carries a
// whitelist (and optionally a blacklist) of message types such as "1, 2-10",
// and transitions move the machine when a message of a given type arrives.
package fsm

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

type State struct {
	Name             string
	MsgTypeWhitelist string // example: "1, 2-10, 30"
	MsgTypeBlacklist string

	allowedMsgTypes map[uint32]bool
	transitions     map[uint32]*State
}

type StateTransition struct {
	FromState string
	ToState   string
	MsgType   uint32
}

type FiniteStateMachine struct {
	InitState   *string
	States      []State
	Transitions []StateTransition

	currentState *State
	stateNameMap map[string]*State
	lock         sync.RWMutex
}

func parseMsgTypes(s string, f func(msgType uint32)) error {
	if len(s) == 0 {
		return nil
	}

	for _, seg := range strings.Split(s, ",") {
		seg = strings.TrimSpace(seg)
		fromTo := strings.Split(seg, "-")
		fromType, err := strconv.ParseUint(strings.TrimSpace(fromTo[0]), 10, 32)
		if err != nil {
			return fmt.Errorf("can't convert '%s' to uint32: %w", fromTo[0], err)
		}
		toType := fromType
		if len(fromTo) == 2 {
			toType, err = strconv.ParseUint(strings.TrimSpace(fromTo[1]), 10, 32)
			if err != nil {
				return fmt.Errorf("can't convert '%s' to uint32: %w", fromTo[1], err)
			}
		} else if len(fromTo) > 2 {
			return fmt.Errorf("invalid range '%s'", seg)
		}
		for i := fromType; i <= toType; i++ {
			f(uint32(i))
		}
	}
	return nil
}

// Load parses a machine definition. The machine starts in InitState, or in the
// first state when InitState is omitted.
func Load(bytes []byte) (*FiniteStateMachine, error) {
	fsm := &FiniteStateMachine{}
	if err := json.Unmarshal(bytes, fsm); err != nil {
		return nil, err
	}
	if len(fsm.States) == 0 {
		return nil, fmt.Errorf("no state defined")
	}
	if err := fsm.init(); err != nil {
		return nil, err
	}
	return fsm, nil
}

func LoadFile(path string) (*FiniteStateMachine, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fsm, err := Load(bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fsm, nil
}

func (fsm *FiniteStateMachine) init() error {
	fsm.stateNameMap = make(map[string]*State, len(fsm.States))
	for idx := range fsm.States {
		state := &fsm.States[idx]
		state.allowedMsgTypes = make(map[uint32]bool)
		state.transitions = make(map[uint32]*State)
		fsm.stateNameMap[state.Name] = state
		err := parseMsgTypes(state.MsgTypeWhitelist, func(msgType uint32) {
			state.allowedMsgTypes[msgType] = true
		})
		if err != nil {
			return fmt.Errorf("state %s: %w", state.Name, err)
		}
		err = parseMsgTypes(state.MsgTypeBlacklist, func(msgType uint32) {
			state.allowedMsgTypes[msgType] = false
		})
		if err != nil {
			return fmt.Errorf("state %s: %w", state.Name, err)
		}
	}

	for _, transition := range fsm.Transitions {
		fromState, exists := fsm.stateNameMap[transition.FromState]
		if !exists {
			return fmt.Errorf("invalid FromState in StateTransition: %s -> %s (%d)", transition.FromState, transition.ToState, transition.MsgType)
		}
		toState, exists := fsm.stateNameMap[transition.ToState]
		if !exists {
			return fmt.Errorf("invalid ToState in StateTransition: %s -> %s (%d)", transition.FromState, transition.ToState, transition.MsgType)
		}
		fromState.transitions[transition.MsgType] = toState
	}

	fsm.currentState = &fsm.States[0]
	if fsm.InitState != nil {
		return fsm.ChangeState(*fsm.InitState)
	}
	return nil
}

// Clone returns a machine in the initial state that shares the parsed states
// with fsm. Every connection gets its own clone.
func (fsm *FiniteStateMachine) Clone() *FiniteStateMachine {
	c := &FiniteStateMachine{
		InitState:    fsm.InitState,
		States:       fsm.States,
		Transitions:  fsm.Transitions,
		stateNameMap: fsm.stateNameMap,
		currentState: &fsm.States[0],
	}
	if fsm.InitState != nil {
		c.currentState = fsm.stateNameMap[*fsm.InitState]
	}
	return c
}

func (fsm *FiniteStateMachine) IsAllowed(msgType uint32) bool {
	fsm.lock.RLock()
	defer fsm.lock.RUnlock()
	return fsm.currentState.allowedMsgTypes[msgType]
}

// OnReceived applies the transition of msgType from the current state, if any.
func (fsm *FiniteStateMachine) OnReceived(msgType uint32) {
	fsm.lock.Lock()
	defer fsm.lock.Unlock()

	if newState := fsm.currentState.transitions[msgType]; newState != nil {
		fsm.currentState = newState
	}
}

func (fsm *FiniteStateMachine) CurrentState() *State {
	fsm.lock.RLock()
	defer fsm.lock.RUnlock()
	return fsm.currentState
}

func (fsm *FiniteStateMachine) ChangeState(name string) error {
	fsm.lock.Lock()
	defer fsm.lock.Unlock()

	state, exists := fsm.stateNameMap[name]
	if !exists {
		return fmt.Errorf("invalid state name: %s", name)
	}
	fsm.currentState = state
	return nil
}
