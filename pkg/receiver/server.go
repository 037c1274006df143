// Package receiver accepts sync connections and mirrors the scenes they
// stream, one mirror per session name.
package receiver

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metaworking/meshsync/pkg/fsm"
	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/metaworking/meshsync/pkg/scene"
	"github.com/metaworking/meshsync/pkg/transport"
	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/zap"
)

//go:embed receiver_fsm.json
var defaultFsm []byte

type SceneReceivedEventData struct {
	Connection *Connection
	Session    *Session
	Message    *scene.SetMessage
}

type Server struct {
	settings    Settings
	network     string
	fsm         *fsm.FiniteStateMachine
	listener    net.Listener
	connections *xsync.MapOf[ConnectionId, *Connection]
	sessions    *xsync.MapOf[string, *Session]
	nextConnId  atomic.Uint32
	logger      *meshsync.Logger

	lock     sync.Mutex
	isClosed bool
	closed   chan struct{}
	wg       sync.WaitGroup

	// SceneReceived fires on the connection goroutine after a scene has been
	// applied to its session.
	SceneReceived meshsync.Event[SceneReceivedEventData]
}

// Listen loads the connection state machine and opens the listener
// described by settings.
func Listen(settings Settings) (*Server, error) {
	var machine *fsm.FiniteStateMachine
	var err error
	if settings.FsmPath != "" {
		machine, err = fsm.LoadFile(settings.FsmPath)
	} else {
		machine, err = fsm.Load(defaultFsm)
	}
	if err != nil {
		return nil, err
	}

	network, err := transport.NormalizeNetwork(settings.Network, settings.Address)
	if err != nil {
		return nil, err
	}
	transport.SetWebSocketTrustedOrigins(settings.TrustedOrigins)
	ln, err := transport.Listen(network, settings.Address)
	if err != nil {
		return nil, err
	}
	return NewServer(ln, network, machine, settings), nil
}

// NewServer serves connections accepted from ln. Every connection runs its
// own clone of machine.
func NewServer(ln net.Listener, network string, machine *fsm.FiniteStateMachine, settings Settings) *Server {
	return &Server{
		settings:    settings,
		network:     network,
		fsm:         machine,
		listener:    ln,
		connections: xsync.NewIntegerMapOf[ConnectionId, *Connection](),
		sessions:    xsync.NewMapOf[*Session](),
		logger: &meshsync.Logger{Logger: meshsync.RootLogger().With(
			zap.String("network", network),
			zap.String("address", ln.Addr().String()),
		)},
		closed: make(chan struct{}),
	}
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
	}()

	if s.settings.HelloTimeout > 0 && s.track() {
		go func() {
			defer s.wg.Done()
			s.checkHelloTimeouts()
		}()
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.IsClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("failed to accept connection", zap.Error(err))
			continue
		}
		if !s.track() {
			conn.Close()
			return nil
		}
		connection := s.addConnection(conn)
		connection.Logger().Debug("accepted connection")
		go func() {
			defer s.wg.Done()
			connection.serve()
		}()
	}
}

// track registers a goroutine with the server unless it is closed.
func (s *Server) track() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.isClosed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) addConnection(conn net.Conn) *Connection {
	id := ConnectionId(s.nextConnId.Add(1))
	connection := &Connection{
		id:     id,
		server: s,
		conn:   conn,
		reader: bufio.NewReader(conn),
		fsm:    s.fsm.Clone(),
		logger: &meshsync.Logger{Logger: s.logger.With(
			zap.Uint32("connId", uint32(id)),
			zap.String("remoteAddr", conn.RemoteAddr().String()),
		)},
		state:    ConnectionState_INIT,
		connTime: time.Now(),
	}
	s.connections.Store(id, connection)
	connectionNum.WithLabelValues(s.network).Inc()
	return connection
}

// checkHelloTimeouts closes connections that stay in the initial state longer
// than the hello timeout.
func (s *Server) checkHelloTimeouts() {
	interval := s.settings.HelloTimeout / 4
	if interval > 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
		}
		s.connections.Range(func(_ ConnectionId, conn *Connection) bool {
			if conn.State() == ConnectionState_INIT && time.Since(conn.connTime) >= s.settings.HelloTimeout {
				conn.Logger().Info("closing connection that did not say hello in time")
				conn.Close()
			}
			return true
		})
	}
}

func (s *Server) session(name string) *Session {
	session, loaded := s.sessions.LoadOrCompute(name, func() *Session {
		return newSession(name)
	})
	if !loaded {
		s.logger.Info("created session", zap.String("session", name))
	}
	return session
}

// Session returns the mirror of the named session, or nil.
func (s *Server) Session(name string) *Session {
	session, _ := s.sessions.Load(name)
	return session
}

func (s *Server) SessionNames() []string {
	var names []string
	s.sessions.Range(func(name string, _ *Session) bool {
		names = append(names, name)
		return true
	})
	return names
}

func (s *Server) ConnectionCount() int {
	return s.connections.Size()
}

func (s *Server) IsClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.isClosed
}

// Close stops accepting, closes every connection and waits for their
// goroutines to exit.
func (s *Server) Close() error {
	s.lock.Lock()
	if s.isClosed {
		s.lock.Unlock()
		return nil
	}
	s.isClosed = true
	close(s.closed)
	s.lock.Unlock()

	err := s.listener.Close()
	s.connections.Range(func(_ ConnectionId, conn *Connection) bool {
		conn.Close()
		return true
	})
	s.wg.Wait()
	s.logger.Info("stopped listening")
	return err
}
