package meshsyncpb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

const (
	HeaderSize = 9
	// MaxPacketSize bounds the body of a single packet after compression.
	MaxPacketSize = 1 << 28
)

// 'MSYN' in ASCII
var packetTag = [4]byte{77, 83, 89, 78}

var ErrInvalidTag = errors.New("invalid packet tag")

func (p *Packet) Marshal() []byte {
	var b []byte
	for _, mp := range p.Messages {
		var mb []byte
		mb = appendVarint(mb, 1, uint64(mp.MsgType))
		mb = appendMessage(mb, 2, mp.MsgBody)
		b = appendMessage(b, 1, mb)
	}
	return b
}

func (p *Packet) Unmarshal(b []byte) error {
	p.Messages = p.Messages[:0]
	return consumeMessage(b, func(f field) (int, error) {
		if f.num != 1 {
			return 0, nil
		}
		body, n, err := f.bytes()
		if err != nil {
			return 0, err
		}
		mp := &MessagePack{}
		p.Messages = append(p.Messages, mp)
		return n, consumeMessage(body, func(f field) (int, error) {
			switch f.num {
			case 1:
				v, n, err := f.varint()
				mp.MsgType = MessageType(v)
				return n, err
			case 2:
				v, n, err := f.bytes()
				mp.MsgBody = v
				return n, err
			}
			return 0, nil
		})
	})
}

// Pack marshals msg into a MessagePack.
func Pack(msg Message) (*MessagePack, error) {
	body, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", msg.MsgType(), err)
	}
	return &MessagePack{MsgType: msg.MsgType(), MsgBody: body}, nil
}

// Unpack decodes the message carried by mp.
func Unpack(mp *MessagePack) (Message, error) {
	msg := NewMessage(mp.MsgType)
	if msg == nil {
		return nil, fmt.Errorf("undefined message type %d: %w", mp.MsgType, ErrMalformed)
	}
	if err := msg.Unmarshal(mp.MsgBody); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s message: %w", mp.MsgType, err)
	}
	return msg, nil
}

// WritePacket frames p and writes it with a single Write call, since every
// Write on a WebSocket connection sends a message. It returns the number of
// bytes written including the header.
func WritePacket(w io.Writer, p *Packet, ct CompressionType) (int, error) {
	bytes := p.Marshal()

	if ct == CompressionType_SNAPPY {
		bytes = snappy.Encode(nil, bytes)
	}
	if len(bytes) > MaxPacketSize {
		return 0, fmt.Errorf("packet of %d bytes exceeds the limit of %d", len(bytes), MaxPacketSize)
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(bytes))
	copy(buf, packetTag[:])
	buf[4] = byte(ct)
	binary.BigEndian.PutUint32(buf[5:], uint32(len(bytes)))
	buf = append(buf, bytes...)

	return w.Write(buf)
}

// ReadPacket reads one framed packet. It returns the number of bytes read
// including the header.
func ReadPacket(r io.Reader, p *Packet) (int, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, err
	}
	if [4]byte(header[:4]) != packetTag {
		return HeaderSize, fmt.Errorf("%w: %q", ErrInvalidTag, header[:4])
	}

	size := binary.BigEndian.Uint32(header[5:])
	if size > MaxPacketSize {
		return HeaderSize, fmt.Errorf("packet of %d bytes exceeds the limit of %d", size, MaxPacketSize)
	}
	bytes := make([]byte, size)
	if _, err := io.ReadFull(r, bytes); err != nil {
		return HeaderSize, fmt.Errorf("reading packet body: %w", err)
	}

	// Apply the decompression from the 5th byte in the header
	switch ct := CompressionType(header[4]); ct {
	case CompressionType_NO_COMPRESSION:
	case CompressionType_SNAPPY:
		var err error
		bytes, err = snappy.Decode(nil, bytes)
		if err != nil {
			return HeaderSize + int(size), fmt.Errorf("snappy.Decode: %w", err)
		}
	default:
		return HeaderSize + int(size), fmt.Errorf("unknown compression type %d", ct)
	}

	if err := p.Unmarshal(bytes); err != nil {
		return HeaderSize + int(size), fmt.Errorf("error unmarshalling packet: %w", err)
	}
	return HeaderSize + int(size), nil
}
