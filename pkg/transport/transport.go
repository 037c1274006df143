// Package transport opens the stream connections the sync protocol runs on:
// plain TCP, KCP over UDP, or WebSocket binary messages.
package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/xtaci/kcp-go"
	"go.uber.org/zap"
)

const (
	NetworkTCP       = "tcp"
	NetworkKCP       = "kcp"
	NetworkWebSocket = "ws"
)

// NormalizeNetwork maps aliases to one of the Network constants. A ws:// or
// wss:// address selects WebSocket regardless of network.
func NormalizeNetwork(network, address string) (string, error) {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		return NetworkWebSocket, nil
	}
	switch strings.ToLower(network) {
	case "", "tcp", "tcp4", "tcp6":
		return NetworkTCP, nil
	case "kcp", "udp":
		return NetworkKCP, nil
	case "ws", "websocket":
		return NetworkWebSocket, nil
	}
	return "", fmt.Errorf("unsupported network %q", network)
}

// Dial connects to address. ctx bounds the connection attempt only.
func Dial(ctx context.Context, network, address string) (net.Conn, error) {
	network, err := NormalizeNetwork(network, address)
	if err != nil {
		return nil, err
	}

	meshsync.RootLogger().Debug("dialing",
		zap.String("network", network),
		zap.String("address", address),
	)

	switch network {
	case NetworkWebSocket:
		return dialWebSocket(ctx, address)
	case NetworkKCP:
		type result struct {
			conn net.Conn
			err  error
		}
		// kcp.Dial does not take a context; the UDP session is set up locally so
		// it returns quickly.
		ch := make(chan result, 1)
		go func() {
			conn, err := kcp.Dial(address)
			ch <- result{conn, err}
		}()
		select {
		case r := <-ch:
			return r.conn, r.err
		case <-ctx.Done():
			go func() {
				if r := <-ch; r.conn != nil {
					r.conn.Close()
				}
			}()
			return nil, ctx.Err()
		}
	default:
		var d net.Dialer
		return d.DialContext(ctx, NetworkTCP, address)
	}
}

// Listen opens a listener. For WebSocket, address may carry a URL path that
// the upgrade handler is mounted on, e.g. "ws://:8080/sync".
func Listen(network, address string) (net.Listener, error) {
	network, err := NormalizeNetwork(network, address)
	if err != nil {
		return nil, err
	}

	meshsync.RootLogger().Info("start listening",
		zap.String("network", network),
		zap.String("address", address),
	)

	switch network {
	case NetworkWebSocket:
		return listenWebSocket(address)
	case NetworkKCP:
		return kcp.Listen(address)
	default:
		return net.Listen(NetworkTCP, address)
	}
}

// WithDeadline sets the connection deadline from ctx, or from timeout when
// ctx has none, and interrupts pending I/O when ctx is cancelled. The returned
// function must be called once the I/O completes.
func WithDeadline(ctx context.Context, conn net.Conn, timeout time.Duration) func() {
	deadline, ok := ctx.Deadline()
	if !ok && timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		conn.SetDeadline(time.Time{})
	}
}
