package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"tickscope/internal/ibkr/memorystore"
	"tickscope/internal/ibkr/session"
	"tickscope/internal/ibkr/stream"
	"tickscope/pkg/ibkr"

	"go.uber.org/zap"
)

// ErrSuperseded is returned by Connect when a Disconnect or another Connect
// ran while the transport was being opened.
var ErrSuperseded = errors.New("connect superseded")

const unsubscribeTimeout = 8 * time.Second

// Dialer opens a market-data connection. *ibkr.WSClient satisfies it.
type Dialer interface {
	Dial(ctx context.Context) (ibkr.Conn, error)
}

// Unsubscriber cancels every stream of the gateway session. *ibkr.RESTClient
// satisfies it.
type Unsubscriber interface {
	UnsubscribeAll(ctx context.Context) error
}

type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
)

// StatusInfo is the connection status shown to readers.
type StatusInfo struct {
	Status  ConnStatus
	State   session.State
	LastErr error
}

// Manager owns one market-data connection, its handshake state and the series
// store fed by it. All mutation happens under mu: caller operations and the
// listener goroutine take turns, so frames are applied strictly in order.
// The subscription command is written with mu held, so a stalled gateway can
// block other callers for at most the transport's write deadline. Closing the
// transport happens off the lock.
type Manager struct {
	dialer Dialer
	unsub  Unsubscriber
	store  *memorystore.SeriesStore
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	machine *session.Machine
	conn    ibkr.Conn
	gen     uint64 // bumped on every connect and disconnect; stale listeners compare it
	lastErr error
	handle  func(raw []byte, receivedAt time.Time)
	cleanup <-chan struct{} // closed once the last disconnect's unsubscribe has finished

	workers sync.WaitGroup // listeners and advisory unsubscribe calls
}

func NewManager(dialer Dialer, unsub Unsubscriber, store *memorystore.SeriesStore, logger *zap.Logger) *Manager {
	m := &Manager{
		dialer:  dialer,
		unsub:   unsub,
		store:   store,
		logger:  logger,
		now:     time.Now,
		machine: session.NewMachine(),
	}
	// the handler only runs from listen, with mu held
	m.handle = stream.MakeFrameHandler(logger, m.onToken, m.onBatch)
	return m
}

// Connect clears the series, opens a new connection and queues ids until the
// gateway issues a session token. A live connection is torn down first.
func (m *Manager) Connect(ctx context.Context, ids []ibkr.ConID) error {
	m.mu.Lock()
	if m.machine.State() != session.Idle {
		m.disconnectLocked()
	}
	cleanup := m.cleanup
	m.store.ClearAll()
	m.lastErr = nil
	m.gen++
	gen := m.gen
	m.machine.Begin(ids)
	m.mu.Unlock()

	// a previous session's unsubscribe must not land after the new subscription,
	// whether that session ended here, in Disconnect or on a transport failure
	if cleanup != nil {
		select {
		case <-cleanup:
		case <-ctx.Done():
		}
	}

	m.logger.Info("connecting market-data stream", zap.Stringers("conids", ids))
	conn, err := m.dialer.Dial(ctx)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrSuperseded
	}
	defer m.mu.Unlock()

	if err != nil {
		m.failLocked(&session.TransportError{Op: "dial", Err: err})
		return m.lastErr
	}

	m.conn = conn
	if err := m.machine.Opened(conn); err != nil {
		m.failLocked(err)
		return err
	}

	m.workers.Add(1)
	go m.listen(gen, conn)
	return nil
}

// Disconnect cancels the gateway subscriptions (best effort), closes the
// connection and resets the handshake. Series data is kept. Calling it again
// only repeats the advisory unsubscribe.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = nil
	m.disconnectLocked()
	m.logger.Info("market-data stream disconnected")
}

// Wait blocks until every listener and cleanup goroutine has exited.
func (m *Manager) Wait() {
	m.workers.Wait()
}

func (m *Manager) Snapshot() memorystore.Snapshot {
	return m.store.Snapshot()
}

func (m *Manager) Store() *memorystore.SeriesStore {
	return m.store
}

func (m *Manager) Status() StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := StatusInfo{State: m.machine.State(), LastErr: m.lastErr}
	switch info.State {
	case session.Idle:
		info.Status = StatusDisconnected
	case session.Connecting:
		info.Status = StatusConnecting
	default:
		info.Status = StatusConnected
	}
	return info
}

// listen reads frames until the connection fails or the generation moves on.
func (m *Manager) listen(gen uint64, conn ibkr.Conn) {
	defer m.workers.Done()

	for {
		raw, err := conn.ReadFrame()

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		if err != nil {
			m.failLocked(&session.TransportError{Op: "read", Err: err})
			m.mu.Unlock()
			return
		}
		m.handle(raw, m.now())
		m.mu.Unlock()
	}
}

func (m *Manager) onToken(token string) {
	sent, err := m.machine.HandleToken(token)
	if err != nil {
		m.failLocked(err)
		return
	}
	if sent {
		m.logger.Info("session token received, subscriptions sent")
	}
}

func (m *Manager) onBatch(batch memorystore.Batch) {
	if evicted := m.store.Ingest(batch, m.now()); evicted > 0 {
		m.logger.Debug("evicted records outside retention window", zap.Int("count", evicted))
	}
}

// failLocked records err and runs the disconnect path. No reconnect is attempted.
func (m *Manager) failLocked(err error) {
	m.logger.Error("market-data connection failed", zap.Error(err))
	m.disconnectLocked()
	m.lastErr = err
}

// disconnectLocked detaches the transport and resets the machine. Closing the
// transport and the advisory unsubscribe run in a worker; m.cleanup closes
// when both have finished.
func (m *Manager) disconnectLocked() {
	m.gen++
	conn := m.conn
	m.conn = nil
	m.machine.Reset()

	done := make(chan struct{})
	m.cleanup = done
	m.workers.Add(1)
	go func() {
		defer m.workers.Done()
		defer close(done)
		if conn != nil {
			_ = conn.Close()
		}
		if m.unsub == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		defer cancel()
		if err := m.unsub.UnsubscribeAll(ctx); err != nil {
			m.logger.Debug("unsubscribe all failed", zap.Error(err))
		}
	}()
}
