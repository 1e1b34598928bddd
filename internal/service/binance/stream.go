package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"FinAgent/internal/domain/models"
	domrepo "FinAgent/internal/domain/repository"
	applogger "FinAgent/pkg/logger"

	"github.com/gorilla/websocket"
)

const DefaultStreamURL = "wss://stream.binance.com:9443/ws"

// Stream is a MarketStream over the Binance kline websocket. Only closed
// klines are delivered.
type Stream struct {
	url            string
	symbols        []string
	interval       string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

type StreamOption func(*Stream)

func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) { s.reconnectDelay = d }
}

func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) { s.pingInterval = d }
}

func WithStreamLogger(l *applogger.Logger) StreamOption {
	return func(s *Stream) { s.l = l }
}

func NewStream(url string, symbols []string, interval string, opts ...StreamOption) *Stream {
	if url == "" {
		url = DefaultStreamURL
	}
	s := &Stream{
		url:            url,
		symbols:        symbols,
		interval:       interval,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		l:              applogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	s.conn = conn
	s.connected.Store(true)
	s.l.Info("binance stream connected", applogger.String("url", s.url))
	return nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// StreamNames returns the kline stream name of every symbol, e.g. "btcusdt@kline_1m".
func StreamNames(symbols []string, interval string) []string {
	names := make([]string, len(symbols))
	for i, sym := range symbols {
		names[i] = strings.ToLower(sym) + "@kline_" + interval
	}
	return names
}

// Subscribe asks for the kline stream of every configured symbol.
func (s *Stream) Subscribe(_ context.Context) error {
	if s.conn == nil || !s.connected.Load() {
		return fmt.Errorf("binance stream not connected")
	}
	req := subscribeRequest{Method: "SUBSCRIBE", Params: StreamNames(s.symbols, s.interval), ID: time.Now().UnixNano()}
	if err := s.writeJSON(req); err != nil {
		return fmt.Errorf("binance subscribe: %w", err)
	}
	s.l.Info("binance subscribed", applogger.Strings("streams", req.Params))
	return nil
}

func (s *Stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime int64  `json:"t"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// combinedFrame wraps events on /stream endpoints.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// decodeKline returns the bar of a closed kline frame. ok is false for
// subscription acks, open klines and anything else.
func decodeKline(frame []byte) (*models.Bar, bool, error) {
	var wrapped combinedFrame
	if err := json.Unmarshal(frame, &wrapped); err == nil && len(wrapped.Data) > 0 {
		frame = wrapped.Data
	}
	var ev klineEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, false, nil
	}
	if ev.EventType != "kline" || !ev.Kline.Closed {
		return nil, false, nil
	}

	var vals [5]float64
	for i, raw := range []string{ev.Kline.Open, ev.Kline.High, ev.Kline.Low, ev.Kline.Close, ev.Kline.Volume} {
		v, err := parseDecimal(raw)
		if err != nil {
			return nil, false, fmt.Errorf("kline %s: %w", ev.Symbol, err)
		}
		vals[i] = v
	}
	return &models.Bar{
		Symbol:    ev.Symbol,
		Timestamp: time.UnixMilli(ev.Kline.OpenTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, true, nil
}

// Read streams closed bars until ctx ends or the connection fails. The error
// channel carries at most one error and both channels close on return.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	bars := make(chan *models.Bar, 256)
	errs := make(chan error, 1)
	conn := s.conn

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// Unblocks ReadMessage below.
				if conn != nil {
					_ = conn.SetReadDeadline(time.Now())
				}
				return
			case <-done:
				return
			case <-ticker.C:
				s.writeMu.Lock()
				if conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
				s.writeMu.Unlock()
			}
		}
	}()

	go func() {
		defer close(done)
		defer close(bars)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("binance stream not connected")
			return
		}
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.connected.Store(false)
				errs <- fmt.Errorf("binance read: %w", err)
				return
			}
			bar, ok, err := decodeKline(frame)
			if err != nil {
				s.l.Warn("binance bad kline", applogger.Error(err))
				continue
			}
			if !ok {
				continue
			}
			select {
			case bars <- bar:
			case <-ctx.Done():
				return
			}
		}
	}()

	return bars, errs
}

// Reconnect closes, waits reconnectDelay, then connects and subscribes again.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *Stream) Close() error {
	s.connected.Store(false)
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Stream) IsConnected() bool { return s.connected.Load() }

var _ domrepo.MarketStream = (*Stream)(nil)
