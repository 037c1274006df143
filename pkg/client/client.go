// Package client delivers prepared scene messages to a receiver over the
// network. A Client implements meshsync.Sender.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/metaworking/meshsync/pkg/meshsyncpb"
	"github.com/metaworking/meshsync/pkg/scene"
	"github.com/metaworking/meshsync/pkg/transport"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("client is closed")

type Client struct {
	settings        meshsync.ClientSettings
	network         string
	compressionType meshsyncpb.CompressionType
	conn            net.Conn
	logger          *meshsync.Logger
	writeMutex      sync.Mutex
	closed          atomic.Bool
}

// Dial connects to the receiver named by settings and opens the session with
// a hello message.
func Dial(ctx context.Context, settings meshsync.ClientSettings) (*Client, error) {
	ct, err := meshsyncpb.ParseCompressionType(settings.Compression)
	if err != nil {
		return nil, err
	}
	network, err := transport.NormalizeNetwork(settings.Network, settings.Address)
	if err != nil {
		return nil, err
	}

	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}
	conn, err := transport.Dial(ctx, network, settings.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", settings.Address, err)
	}

	client := newClient(conn, settings, network, ct)
	if err := client.hello(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	client.logger.Info("connected")
	return client, nil
}

func newClient(conn net.Conn, settings meshsync.ClientSettings, network string, ct meshsyncpb.CompressionType) *Client {
	return &Client{
		settings:        settings,
		network:         network,
		compressionType: ct,
		conn:            conn,
		logger: &meshsync.Logger{Logger: meshsync.RootLogger().With(
			zap.String("network", network),
			zap.String("remoteAddr", conn.RemoteAddr().String()),
			zap.String("session", settings.SessionName),
		)},
	}
}

func (client *Client) hello(ctx context.Context) error {
	return client.write(ctx, &meshsyncpb.HelloMessage{
		ProtocolVersion: meshsyncpb.ProtocolVersion,
		SessionName:     client.settings.SessionName,
		ClientName:      "meshsync",
	})
}

// Send writes msg as a single packet. A cancelled ctx interrupts the write and
// leaves the connection unusable.
func (client *Client) Send(ctx context.Context, msg *scene.SetMessage) error {
	if msg == nil {
		return fmt.Errorf("nil message")
	}
	return client.write(ctx, &meshsyncpb.SetMessage{SetMessage: *msg})
}

func (client *Client) write(ctx context.Context, msgs ...meshsyncpb.Message) error {
	if client.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p := meshsyncpb.Packet{Messages: make([]*meshsyncpb.MessagePack, 0, len(msgs))}
	for _, msg := range msgs {
		mp, err := meshsyncpb.Pack(msg)
		if err != nil {
			return err
		}
		p.Messages = append(p.Messages, mp)
	}

	client.writeMutex.Lock()
	defer client.writeMutex.Unlock()

	done := transport.WithDeadline(ctx, client.conn, client.settings.Timeout)
	defer done()

	start := time.Now()
	n, err := meshsyncpb.WritePacket(client.conn, &p, client.compressionType)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		packetsSent.WithLabelValues(client.network, "error").Inc()
		client.logger.Warn("failed to write packet", zap.Error(err))
		return err
	}

	bytesSent.WithLabelValues(client.network).Add(float64(n))
	packetsSent.WithLabelValues(client.network, "ok").Inc()
	client.logger.Trace("sent packet",
		zap.Int("size", n),
		zap.Int("messages", len(p.Messages)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (client *Client) IsConnected() bool {
	return !client.closed.Load()
}

// Close says goodbye to the receiver and closes the connection.
func (client *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.write(ctx, &meshsyncpb.DisconnectMessage{Reason: "closing"}); err != nil && !errors.Is(err, ErrClosed) {
		client.logger.Debug("failed to send disconnect", zap.Error(err))
	}
	if !client.closed.CompareAndSwap(false, true) {
		return nil
	}
	client.logger.Info("disconnected")
	return client.conn.Close()
}
