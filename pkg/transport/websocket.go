package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/metaworking/meshsync/pkg/meshsync"
	"go.uber.org/zap"
)

// wsConn adapts a WebSocket connection to net.Conn. Every Write sends one
// binary message, and Read drains a message across as many calls as needed.
type wsConn struct {
	conn    *websocket.Conn
	readBuf []byte
	readIdx int
}

func (c *wsConn) Read(b []byte) (n int, err error) {
	for c.readIdx >= len(c.readBuf) {
		var msgType int
		msgType, c.readBuf, err = c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return 0, io.EOF
			}
			return 0, err
		}
		c.readIdx = 0
		if msgType != websocket.BinaryMessage {
			c.readBuf = nil
		}
	}
	n = copy(b, c.readBuf[c.readIdx:])
	c.readIdx += n
	return n, nil
}

func (c *wsConn) Write(b []byte) (n int, err error) {
	return len(b), c.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	return c.conn.UnderlyingConn().SetDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func dialWebSocket(ctx context.Context, address string) (net.Conn, error) {
	if !strings.Contains(address, "://") {
		address = "ws://" + address
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

var trustedOrigins []string

// SetWebSocketTrustedOrigins restricts upgrades to the given remote
// addresses. nil accepts every origin.
func SetWebSocketTrustedOrigins(addrs []string) {
	trustedOrigins = addrs
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		if trustedOrigins == nil {
			return true
		}
		for _, addr := range trustedOrigins {
			if addr == r.RemoteAddr || addr == r.Header.Get("Origin") {
				return true
			}
		}
		return false
	},
}

// wsListener accepts upgraded connections through a queue filled by the HTTP
// handler goroutines.
type wsListener struct {
	ln        net.Listener
	server    *http.Server
	conns     chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func splitWebSocketAddress(address string) (hostport, pattern string) {
	if protocolIndex := strings.Index(address, "://"); protocolIndex >= 0 {
		address = address[protocolIndex+3:]
	}
	pattern = "/"
	if pathIndex := strings.Index(address, "/"); pathIndex >= 0 {
		pattern = address[pathIndex:]
		address = address[:pathIndex]
	}
	return address, pattern
}

func listenWebSocket(address string) (net.Listener, error) {
	hostport, pattern := splitWebSocketAddress(address)
	ln, err := net.Listen(NetworkTCP, hostport)
	if err != nil {
		return nil, err
	}

	l := &wsListener{
		ln:     ln,
		conns:  make(chan net.Conn, 128),
		closed: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			meshsync.RootLogger().Warn("upgrade to websocket connection", zap.Error(err))
			return
		}
		select {
		case l.conns <- &wsConn{conn: conn}:
		case <-l.closed:
			conn.Close()
		}
	})
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		err := l.server.Serve(ln)
		if !errors.Is(err, http.ErrServerClosed) {
			meshsync.RootLogger().Error("stopped listening", zap.Error(err))
		}
		l.Close()
	}()
	return l, nil
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.server.Close()
	})
	return err
}

func (l *wsListener) Addr() net.Addr {
	return l.ln.Addr()
}
