package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Gateway frame ops.
const (
	opEvents  = "events"
	opTrigger = "trigger"
	opGet     = "get"
	opValue   = "value"
	opError   = "error"
)

const gatewayWriteWait = 5 * time.Second

// DefaultKeepalive is the longest silence tolerated on the connection before
// it is treated as dead.
const DefaultKeepalive = 15 * time.Second

// ErrGatewayClosed is returned for requests on a closed or failed connection.
var ErrGatewayClosed = errors.New("simulator gateway connection closed")

// frame is one JSON message exchanged with the gateway.
//
//	-> {"op":"events","id":1}            <- {"op":"events","id":1,"events":[...]}
//	-> {"op":"trigger","event":"X","value":5}
//	-> {"op":"get","id":2,"var":"X"}     <- {"op":"value","id":2,"value":1.5}
//	                                     <- {"op":"error","id":2,"error":"..."}
type frame struct {
	Op     string   `json:"op"`
	ID     uint64   `json:"id,omitempty"`
	Event  string   `json:"event,omitempty"`
	Var    string   `json:"var,omitempty"`
	Value  *float64 `json:"value,omitempty"`
	Events []string `json:"events,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Gateway is a Simulator reached over a websocket connection to a SimConnect
// gateway process.
//
// The event catalogue is fetched once at connect and backs Lookup. Triggers
// are fire-and-forget; queries are matched to responses by id by a single
// reader goroutine. Safe for concurrent use.
type Gateway struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan frame
	err     error

	events map[string]Event // immutable after DialGateway returns
	done   chan struct{}

	keepalive time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithKeepalive sets how long the connection may stay silent before it is
// dropped. Pings go out every d/2, so a live gateway answers each one well
// before the deadline. Zero disables pings and read deadlines.
func WithKeepalive(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.keepalive = d
	}
}

// DialGateway connects to url and loads the event catalogue.
func DialGateway(ctx context.Context, url string, opts ...GatewayOption) (*Gateway, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial simulator gateway: %w", err)
	}

	g := &Gateway{
		conn:      conn,
		pending:   make(map[uint64]chan frame),
		done:      make(chan struct{}),
		keepalive: DefaultKeepalive,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.keepalive > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(g.keepalive))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(g.keepalive))
		})
		go g.pingLoop()
	}
	go g.readLoop()

	resp, err := g.request(ctx, frame{Op: opEvents})
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("load event catalogue: %w", err)
	}

	g.events = make(map[string]Event, len(resp.Events))
	for i, name := range resp.Events {
		g.events[name] = Event{Name: name, ID: i + 1}
	}

	slog.Info("simulator gateway connected", "url", url, "events", len(g.events))
	return g, nil
}

// Lookup implements Simulator.
func (g *Gateway) Lookup(name string) (Event, bool) {
	ev, ok := g.events[name]
	return ev, ok
}

// Invoke implements Simulator.
func (g *Gateway) Invoke(ctx context.Context, ev Event, value *int32) error {
	f := frame{Op: opTrigger, Event: ev.Name}
	if value != nil {
		v := float64(*value)
		f.Value = &v
	}
	return g.write(ctx, f)
}

// Query implements Simulator.
func (g *Gateway) Query(ctx context.Context, name string) (float64, error) {
	resp, err := g.request(ctx, frame{Op: opGet, Var: name})
	if err != nil {
		return 0, err
	}
	if resp.Value == nil {
		return 0, fmt.Errorf("gateway returned no value for %s", name)
	}
	return *resp.Value, nil
}

// Close shuts the connection down. Pending requests fail with ErrGatewayClosed.
func (g *Gateway) Close() error {
	g.writeMu.Lock()
	_ = g.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	g.writeMu.Unlock()

	err := g.conn.Close()
	<-g.done
	return err
}

// Done is closed when the connection ends.
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// request sends f with a fresh id and waits for the matching response.
func (g *Gateway) request(ctx context.Context, f frame) (frame, error) {
	ch := make(chan frame, 1)

	g.mu.Lock()
	if g.err != nil {
		err := g.err
		g.mu.Unlock()
		return frame{}, err
	}
	g.nextID++
	f.ID = g.nextID
	g.pending[f.ID] = ch
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, f.ID)
		g.mu.Unlock()
	}()

	if err := g.write(ctx, f); err != nil {
		return frame{}, err
	}

	select {
	case resp := <-ch:
		if resp.Op == opError {
			return frame{}, fmt.Errorf("gateway %s: %s", f.Op, resp.Error)
		}
		return resp, nil
	case <-g.done:
		return frame{}, g.closeErr()
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}
}

func (g *Gateway) write(ctx context.Context, f frame) error {
	select {
	case <-g.done:
		return g.closeErr()
	default:
	}

	deadline := time.Now().Add(gatewayWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if err := g.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := g.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("gateway write %s: %w", f.Op, err)
	}
	return nil
}

// readLoop delivers responses to waiting requests until the connection fails.
func (g *Gateway) readLoop() {
	defer close(g.done)

	for {
		var f frame
		if err := g.conn.ReadJSON(&f); err != nil {
			g.mu.Lock()
			g.err = fmt.Errorf("%w: %v", ErrGatewayClosed, err)
			g.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				slog.Debug("simulator gateway read ended", "error", err)
			}
			return
		}

		if g.keepalive > 0 {
			_ = g.conn.SetReadDeadline(time.Now().Add(g.keepalive))
		}

		if f.ID == 0 {
			slog.Debug("ignoring unsolicited gateway frame", "op", f.Op)
			continue
		}

		g.mu.Lock()
		ch, ok := g.pending[f.ID]
		g.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

// pingLoop keeps the read deadline alive on a healthy connection. A gateway
// that stops answering lets the deadline expire and readLoop ends.
func (g *Gateway) pingLoop() {
	ticker := time.NewTicker(g.keepalive / 2)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.writeMu.Lock()
			err := g.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(gatewayWriteWait))
			g.writeMu.Unlock()
			if err != nil {
				slog.Debug("simulator gateway ping failed", "error", err)
				return
			}
		}
	}
}

func (g *Gateway) closeErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	return ErrGatewayClosed
}
