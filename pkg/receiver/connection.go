package receiver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/metaworking/meshsync/pkg/fsm"
	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/metaworking/meshsync/pkg/meshsyncpb"
	"github.com/metaworking/meshsync/pkg/meshutil"
	"go.uber.org/zap"
)

type ConnectionId uint32

const (
	ConnectionState_INIT    int32 = 0
	ConnectionState_OPEN    int32 = 1
	ConnectionState_CLOSING int32 = 2
)

const defaultSessionName = "default"

type Connection struct {
	id       ConnectionId
	server   *Server
	conn     net.Conn
	reader   *bufio.Reader
	fsm      *fsm.FiniteStateMachine
	logger   *meshsync.Logger
	state    int32 // Kept outside the FSM since the FSM states are user-defined.
	connTime time.Time
	// session is only touched by the receive goroutine.
	session              *Session
	fsmDisallowedCounter int
	closeOnce            sync.Once
}

func (c *Connection) Id() ConnectionId {
	return c.id
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Connection) Logger() *meshsync.Logger {
	return c.logger
}

func (c *Connection) State() int32 {
	return atomic.LoadInt32(&c.state)
}

func (c *Connection) IsClosing() bool {
	return c.State() >= ConnectionState_CLOSING
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.state, ConnectionState_CLOSING)
		c.conn.Close()
		c.server.connections.Delete(c.id)
		connectionNum.WithLabelValues(c.server.network).Dec()
		c.logger.Debug("closed connection")
	})
}

func (c *Connection) serve() {
	defer c.Close()
	for !c.IsClosing() {
		if err := c.receivePacket(); err != nil {
			return
		}
	}
}

func isDisconnect(err error) bool {
	var closeErr *websocket.CloseError
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.As(err, &closeErr)
}

func (c *Connection) receivePacket() error {
	var p meshsyncpb.Packet
	n, err := meshsyncpb.ReadPacket(c.reader, &p)
	if n > 0 {
		bytesReceived.WithLabelValues(c.server.network).Add(float64(n))
	}
	if err != nil {
		switch {
		case c.IsClosing():
		case isDisconnect(err):
			c.logger.Info("disconnected", zap.String("remoteAddr", c.conn.RemoteAddr().String()))
		case errors.Is(err, meshsyncpb.ErrInvalidTag):
			// The stream can't be resynchronized after garbage.
			c.logger.Warn("invalid tag, closing connection", zap.Error(err))
		default:
			c.logger.Error("reading packet", zap.Error(err))
		}
		return err
	}

	packetsReceived.WithLabelValues(c.server.network).Inc()
	for _, mp := range p.Messages {
		if c.IsClosing() {
			break
		}
		c.receiveMessage(mp)
	}
	return nil
}

func (c *Connection) receiveMessage(mp *meshsyncpb.MessagePack) {
	if !c.fsm.IsAllowed(uint32(mp.MsgType)) {
		msgDisallowed.WithLabelValues(mp.MsgType.String()).Inc()
		c.logger.Warn("message is not allowed for current state",
			zap.Stringer("msgType", mp.MsgType),
			zap.String("connState", c.fsm.CurrentState().Name),
		)
		c.fsmDisallowedCounter++
		if limit := c.server.settings.MaxFsmDisallowed; limit > 0 && c.fsmDisallowedCounter >= limit {
			c.logger.Warn("closing connection after too many disallowed messages", zap.Int("count", c.fsmDisallowedCounter))
			c.Close()
		}
		return
	}

	msg, err := meshsyncpb.Unpack(mp)
	if err != nil {
		c.logger.Error("unmarshalling message", zap.Stringer("msgType", mp.MsgType), zap.Error(err))
		return
	}

	switch msg := msg.(type) {
	case *meshsyncpb.HelloMessage:
		if !c.handleHello(msg) {
			return
		}
	case *meshsyncpb.SetMessage:
		c.handleSet(msg)
	case *meshsyncpb.DisconnectMessage:
		c.logger.Info("client disconnecting", zap.String("reason", msg.Reason))
		defer c.Close()
	}

	c.fsm.OnReceived(uint32(mp.MsgType))
	msgReceived.WithLabelValues(mp.MsgType.String()).Inc()
	c.logger.Trace("received message", zap.Stringer("msgType", mp.MsgType), zap.Int("size", len(mp.MsgBody)))
}

func (c *Connection) handleHello(msg *meshsyncpb.HelloMessage) bool {
	if msg.ProtocolVersion != meshsyncpb.ProtocolVersion {
		c.logger.Warn("protocol version mismatch, closing connection",
			zap.Uint32("clientVersion", msg.ProtocolVersion),
			zap.Uint32("serverVersion", meshsyncpb.ProtocolVersion),
		)
		c.Close()
		return false
	}

	name := msg.SessionName
	if name == "" {
		name = defaultSessionName
	}
	c.session = c.server.session(name)
	atomic.StoreInt32(&c.state, ConnectionState_OPEN)
	c.logger.Info("session opened",
		zap.String("session", name),
		zap.String("client", msg.ClientName),
	)
	return true
}

func (c *Connection) handleSet(msg *meshsyncpb.SetMessage) {
	set := &msg.SetMessage
	if to := c.server.settings.ConvertTo; to != nil && set.Scene != nil {
		if err := meshutil.ConvertScene(set.Scene, *to); err != nil {
			c.logger.Warn("dropped scene that cannot be converted", zap.Uint64("seq", set.Seq), zap.Error(err))
			return
		}
	}
	c.session.Apply(set)

	fields := []zap.Field{zap.String("session", c.session.Name()), zap.Uint64("seq", set.Seq)}
	if set.Scene != nil {
		fields = append(fields,
			zap.Int("objects", len(set.Scene.Objects)),
			zap.Int("deleted", len(set.Scene.Deleted)),
			zap.Int("materials", len(set.Scene.Materials)),
		)
	}
	c.logger.Debug("applied scene", fields...)

	c.server.SceneReceived.Broadcast(SceneReceivedEventData{
		Connection: c,
		Session:    c.session,
		Message:    set,
	})
}
