package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/metaworking/meshsync/pkg/meshsyncpb"
	"github.com/metaworking/meshsync/pkg/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type receivedPacket struct {
	header byte
	msgs   []meshsyncpb.Message
}

// listen accepts one connection and decodes every packet it receives.
func listen(t *testing.T) (string, <-chan receivedPacket) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	packets := make(chan receivedPacket, 16)
	go func() {
		defer close(packets)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var p meshsyncpb.Packet
			rec := &recordingReader{r: conn}
			if _, err := meshsyncpb.ReadPacket(rec, &p); err != nil {
				return
			}
			var msgs []meshsyncpb.Message
			for _, mp := range p.Messages {
				msg, err := meshsyncpb.Unpack(mp)
				if err != nil {
					return
				}
				msgs = append(msgs, msg)
			}
			packets <- receivedPacket{header: rec.compression, msgs: msgs}
		}
	}()
	return ln.Addr().String(), packets
}

// recordingReader remembers the compression byte of the packet header.
type recordingReader struct {
	r           net.Conn
	read        int
	compression byte
}

func (r *recordingReader) Read(b []byte) (int, error) {
	n, err := r.r.Read(b)
	for i := 0; i < n; i++ {
		if r.read+i == 4 {
			r.compression = b[i]
		}
	}
	r.read += n
	return n, err
}

func testSettings(addr, compression string) meshsync.ClientSettings {
	return meshsync.ClientSettings{
		Address:     addr,
		Network:     "tcp",
		SessionName: "test",
		Timeout:     5 * time.Second,
		Compression: compression,
	}
}

func TestSendDeliversScene(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	for _, compression := range []string{"none", "snappy"} {
		t.Run(compression, func(t *testing.T) {
			addr, packets := listen(t)
			c, err := Dial(context.Background(), testSettings(addr, compression))
			require.NoError(t, err)

			hello := <-packets
			require.Len(t, hello.msgs, 1)
			assert.Equal(t, &meshsyncpb.HelloMessage{
				ProtocolVersion: meshsyncpb.ProtocolVersion,
				SessionName:     "test",
				ClientName:      "meshsync",
			}, hello.msgs[0])

			s := scene.New()
			tr := scene.NewTransform()
			tr.Path = "/Cube"
			tr.Position = mgl32.Vec3{1, 2, 3}
			s.Objects = append(s.Objects, tr)
			s.Deleted = []string{"/Old"}
			require.NoError(t, c.Send(context.Background(), &scene.SetMessage{Seq: 3, Scene: s}))

			set := <-packets
			if compression == "snappy" {
				assert.Equal(t, byte(meshsyncpb.CompressionType_SNAPPY), set.header)
			} else {
				assert.Equal(t, byte(meshsyncpb.CompressionType_NO_COMPRESSION), set.header)
			}
			require.Len(t, set.msgs, 1)
			msg := set.msgs[0].(*meshsyncpb.SetMessage)
			assert.Equal(t, uint64(3), msg.Seq)
			require.Len(t, msg.Scene.Objects, 1)
			assert.Equal(t, tr, msg.Scene.Objects[0])
			assert.Equal(t, []string{"/Old"}, msg.Scene.Deleted)

			require.NoError(t, c.Close())
			bye := <-packets
			require.Len(t, bye.msgs, 1)
			assert.IsType(t, &meshsyncpb.DisconnectMessage{}, bye.msgs[0])

			assert.ErrorIs(t, c.Send(context.Background(), &scene.SetMessage{Scene: s}), ErrClosed)
			assert.False(t, c.IsConnected())
			assert.NoError(t, c.Close())
		})
	}
}

func TestDialErrors(t *testing.T) {
	_, err := Dial(context.Background(), testSettings("127.0.0.1:1", "lz4"))
	assert.Error(t, err)

	settings := testSettings("127.0.0.1:1", "none")
	settings.Network = "quic"
	_, err = Dial(context.Background(), settings)
	assert.Error(t, err)

	// Nothing listens on the discard port.
	settings.Network = "tcp"
	settings.Timeout = time.Second
	_, err = Dial(context.Background(), settings)
	assert.Error(t, err)
}

func TestSendHonorsCancelledContext(t *testing.T) {
	addr, packets := listen(t)
	c, err := Dial(context.Background(), testSettings(addr, "none"))
	require.NoError(t, err)
	defer c.Close()
	<-packets

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Send(ctx, &scene.SetMessage{Scene: scene.New()})
	assert.ErrorIs(t, err, context.Canceled)
}
