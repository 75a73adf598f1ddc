package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/humantune/pkg/tunedto"
)

// Publisher streams step records to a monitoring collector over WebSocket.
// It degrades instead of interfering with the tuning loop: when the
// connection is down, records are dropped and reconnection proceeds in the
// background.
type Publisher struct {
	wsURL  string
	logger *zap.Logger

	conn   *websocket.Conn
	connM  sync.Mutex
	state  State
	stateM sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

func NewPublisher(wsURL string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		wsURL:                wsURL,
		logger:               logger,
		state:                StateDisconnected,
		maxReconnectAttempts: 5,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

func (p *Publisher) Connect(ctx context.Context) error {
	p.stateM.Lock()
	if p.state == StateConnected || p.state == StateConnecting {
		p.stateM.Unlock()
		return nil
	}
	p.state = StateConnecting
	p.stateM.Unlock()

	p.rootCtx, p.rootCancel = context.WithCancel(context.Background())

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, p.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		p.setState(StateFailed)
		p.scheduleReconnect()
		return err
	}

	p.setConn(conn)
	p.setState(StateConnected)

	p.wg.Add(1)
	go p.pingLoop()
	return nil
}

// Publish sends one record. A write failure drops the record, marks the
// connection down, and kicks off background reconnection.
func (p *Publisher) Publish(ctx context.Context, rec tunedto.StepRecord) error {
	conn := p.currentConn()
	if conn == nil {
		return errors.New("progress collector not connected")
	}

	writeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, rec); err != nil {
		if p.isStopping() {
			return err
		}
		p.setState(StateDisconnected)
		p.closeConn(websocket.StatusGoingAway, "reconnect")
		p.scheduleReconnect()
		return err
	}
	return nil
}

func (p *Publisher) pingLoop() {
	defer p.wg.Done()
	t := time.NewTicker(p.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-p.stopCh:
			return
		case <-t.C:
			conn := p.currentConn()
			if conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(p.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					if p.isStopping() {
						return
					}
					p.setState(StateDisconnected)
					p.closeConn(websocket.StatusGoingAway, "ping failure")
					p.scheduleReconnect()
					failures = 0
				}
				continue
			}
			failures = 0
		}
	}
}

func (p *Publisher) scheduleReconnect() {
	if p.maxReconnectAttempts <= 0 {
		return
	}
	p.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= p.maxReconnectAttempts; attempt++ {
			select {
			case <-p.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(p.rootCtx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, p.wsURL, &websocket.DialOptions{
				CompressionMode: websocket.CompressionNoContextTakeover,
			})
			cancel()
			if err != nil {
				p.logger.Warn("progress reconnect failed",
					zap.Int("attempt", attempt), zap.Error(err))
				continue
			}

			p.setConn(conn)
			p.setState(StateConnected)
			return
		}
		p.setState(StateFailed)
		p.logger.Warn("progress collector unreachable, records will be dropped")
	}()
}

func (p *Publisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if p.rootCancel != nil {
			p.rootCancel()
		}
		return nil
	}
}

func (p *Publisher) setConn(conn *websocket.Conn) {
	p.connM.Lock()
	p.conn = conn
	p.connM.Unlock()
}

func (p *Publisher) currentConn() *websocket.Conn {
	p.connM.Lock()
	defer p.connM.Unlock()
	return p.conn
}

func (p *Publisher) closeConn(code websocket.StatusCode, reason string) {
	p.connM.Lock()
	defer p.connM.Unlock()
	if p.conn == nil {
		return
	}
	_ = p.conn.Close(code, reason)
	p.conn = nil
}

func (p *Publisher) setState(state State) {
	p.stateM.Lock()
	p.state = state
	p.stateM.Unlock()
}

// CurrentState is exposed for diagnostics.
func (p *Publisher) CurrentState() State {
	p.stateM.RLock()
	defer p.stateM.RUnlock()
	return p.state
}

func (p *Publisher) isStopping() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base
}
