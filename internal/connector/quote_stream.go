package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Publisher is the slice of nats.JetStreamContext the stream needs.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// QuoteStream reads quotes from a broker websocket and republishes them on
// market.tick.<SYMBOL>.
type QuoteStream struct {
	logger *zap.Logger
	url    string
	js     Publisher
}

func NewQuoteStream(logger *zap.Logger, url string, js Publisher) *QuoteStream {
	return &QuoteStream{
		logger: logger,
		url:    url,
		js:     js,
	}
}

// QuoteEvent is the raw quote frame. Prices arrive as strings.
type QuoteEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Bid       string `json:"b"`
	Ask       string `json:"a"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    int64  `json:"v"`
	QuoteTime int64  `json:"T"`
}

func (s *QuoteStream) Run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.logger.Info("connecting to quote stream", zap.String("url", s.url))
		dialer := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}
		conn, _, err := dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.logger.Error("failed to connect to quote stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = s.increaseBackoff(backoff)
			continue
		}

		backoff = time.Second // Reset backoff on successful connection
		s.logger.Info("connected to quote stream")

		if err := s.handleConnection(ctx, conn); err != nil {
			s.logger.Error("connection closed with error", zap.Error(err))
		}
		conn.Close()
	}
}

func (s *QuoteStream) handleConnection(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			var event QuoteEvent
			if err := json.Unmarshal(message, &event); err != nil {
				s.logger.Error("failed to unmarshal quote event", zap.Error(err))
				continue
			}

			quote, err := s.convertToModel(event)
			if err != nil {
				s.logger.Warn("dropping malformed quote", zap.String("symbol", event.Symbol), zap.Error(err))
				continue
			}
			s.publish(quote)
		}
	}
}

func (s *QuoteStream) publish(q model.Quote) {
	infrastructure.QuoteIngestRate.WithLabelValues(q.Symbol).Inc()
	if s.js == nil {
		return
	}
	data, err := json.Marshal(q)
	if err != nil {
		s.logger.Error("failed to marshal quote", zap.Error(err))
		return
	}
	subject := infrastructure.SubjectTick + q.Symbol
	if _, err := s.js.Publish(subject, data); err != nil {
		s.logger.Error("failed to publish quote", zap.String("subject", subject), zap.Error(err))
	}
}

func (s *QuoteStream) convertToModel(event QuoteEvent) (model.Quote, error) {
	bid, err := decimal.NewFromString(event.Bid)
	if err != nil {
		return model.Quote{}, fmt.Errorf("invalid bid %q: %w", event.Bid, err)
	}
	ask, err := decimal.NewFromString(event.Ask)
	if err != nil {
		return model.Quote{}, fmt.Errorf("invalid ask %q: %w", event.Ask, err)
	}
	if !bid.IsPositive() || ask.LessThan(bid) {
		return model.Quote{}, fmt.Errorf("crossed or empty book bid=%s ask=%s", bid, ask)
	}
	high, _ := decimal.NewFromString(event.High)
	low, _ := decimal.NewFromString(event.Low)

	ts := event.QuoteTime
	if ts == 0 {
		ts = event.EventTime
	}
	return model.Quote{
		Symbol:     model.NormalizeSymbol(event.Symbol),
		Bid:        bid.InexactFloat64(),
		Ask:        ask.InexactFloat64(),
		High:       high.InexactFloat64(),
		Low:        low.InexactFloat64(),
		TickVolume: event.Volume,
		TickTime:   time.UnixMilli(ts),
	}, nil
}

func (s *QuoteStream) increaseBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > time.Minute {
		return time.Minute
	}
	return next
}
