// Package meshsyncpb defines the sync protocol messages and their protobuf wire
// encoding. Messages are hand-encoded with protowire so the scene entities in
// package scene can be marshalled without generated code.
package meshsyncpb

import (
	"fmt"
	"strings"

	"github.com/metaworking/meshsync/pkg/scene"
)

const ProtocolVersion = 1

type MessageType uint32

const (
	MessageType_INVALID MessageType = iota
	MessageType_HELLO
	MessageType_SET
	MessageType_DISCONNECT
)

var MessageType_name = map[MessageType]string{
	MessageType_INVALID:    "INVALID",
	MessageType_HELLO:      "HELLO",
	MessageType_SET:        "SET",
	MessageType_DISCONNECT: "DISCONNECT",
}

func (t MessageType) String() string {
	if name, ok := MessageType_name[t]; ok {
		return name
	}
	return "UNKNOWN"
}

type CompressionType byte

const (
	CompressionType_NO_COMPRESSION CompressionType = 0
	CompressionType_SNAPPY         CompressionType = 1
)

var CompressionType_name = map[CompressionType]string{
	CompressionType_NO_COMPRESSION: "NO_COMPRESSION",
	CompressionType_SNAPPY:         "SNAPPY",
}

func (t CompressionType) String() string {
	if name, ok := CompressionType_name[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseCompressionType accepts "none", "snappy" or the enum names.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "no_compression":
		return CompressionType_NO_COMPRESSION, nil
	case "snappy":
		return CompressionType_SNAPPY, nil
	}
	return 0, fmt.Errorf("unknown compression type %q", s)
}

// Message is implemented by every protocol message.
type Message interface {
	MsgType() MessageType
	Marshal() ([]byte, error)
	Unmarshal(b []byte) error
}

type HelloMessage struct {
	ProtocolVersion uint32
	SessionName     string
	ClientName      string
}

func (*HelloMessage) MsgType() MessageType { return MessageType_HELLO }

type DisconnectMessage struct {
	Reason string
}

func (*DisconnectMessage) MsgType() MessageType { return MessageType_DISCONNECT }

// SetMessage wraps scene.SetMessage so it can travel through the packet codec.
type SetMessage struct {
	scene.SetMessage
}

func (*SetMessage) MsgType() MessageType { return MessageType_SET }

type MessagePack struct {
	MsgType MessageType
	MsgBody []byte
}

type Packet struct {
	Messages []*MessagePack
}

// NewMessage returns an empty message of the given type, or nil if the type
// is not defined.
func NewMessage(t MessageType) Message {
	switch t {
	case MessageType_HELLO:
		return &HelloMessage{}
	case MessageType_SET:
		return &SetMessage{}
	case MessageType_DISCONNECT:
		return &DisconnectMessage{}
	}
	return nil
}
