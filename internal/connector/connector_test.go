package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fx-autotrader/internal/model"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (f *fakePublisher) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgs == nil {
		f.msgs = make(map[string][][]byte)
	}
	f.msgs[subj] = append(f.msgs[subj], data)
	return &nats.PubAck{}, nil
}

func (f *fakePublisher) count(subj string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs[subj])
}

func TestQuoteStream_ConvertToModel(t *testing.T) {
	s := NewQuoteStream(zap.NewNop(), "", nil)

	event := QuoteEvent{
		Symbol:    "EUR/USD",
		Bid:       "1.08512",
		Ask:       "1.08527",
		High:      "1.0900",
		Low:       "1.0800",
		Volume:    42,
		QuoteTime: 1640123456789,
	}

	q, err := s.convertToModel(event)
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", q.Symbol)
	assert.Equal(t, 1.08512, q.Bid)
	assert.Equal(t, 1.08527, q.Ask)
	assert.Equal(t, 1.09, q.High)
	assert.Equal(t, int64(42), q.TickVolume)
	assert.Equal(t, time.UnixMilli(1640123456789), q.TickTime)
}

func TestQuoteStream_ConvertRejectsBadBook(t *testing.T) {
	s := NewQuoteStream(zap.NewNop(), "", nil)

	cases := map[string]QuoteEvent{
		"garbage bid": {Symbol: "EURUSD", Bid: "x", Ask: "1.1"},
		"crossed":     {Symbol: "EURUSD", Bid: "1.1002", Ask: "1.1001"},
		"zero bid":    {Symbol: "EURUSD", Bid: "0", Ask: "1.1001"},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.convertToModel(ev)
			assert.Error(t, err)
		})
	}
}

func TestQuoteStream_FallsBackToEventTime(t *testing.T) {
	s := NewQuoteStream(zap.NewNop(), "", nil)

	q, err := s.convertToModel(QuoteEvent{Symbol: "USDJPY", Bid: "150.10", Ask: "150.12", EventTime: 1000})
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1000), q.TickTime)
}

func TestQuoteStream_HandleConnectionPublishes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frames := []any{
			QuoteEvent{Symbol: "EURUSD", Bid: "1.1000", Ask: "1.1001", QuoteTime: 1},
			"not a quote",
			QuoteEvent{Symbol: "GBPUSD", Bid: "1.2500", Ask: "1.2502", QuoteTime: 2},
			QuoteEvent{Symbol: "EURUSD", Bid: "1.1001", Ask: "1.1002", QuoteTime: 3},
		}
		for _, f := range frames {
			data, _ := json.Marshal(f)
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}))
	defer srv.Close()

	pub := &fakePublisher{}
	s := NewQuoteStream(zap.NewNop(), "", pub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	err = s.handleConnection(context.Background(), conn)
	assert.Error(t, err, "server close ends the read loop")

	assert.Equal(t, 2, pub.count("market.tick.EURUSD"))
	assert.Equal(t, 1, pub.count("market.tick.GBPUSD"))

	var q model.Quote
	require.NoError(t, json.Unmarshal(pub.msgs["market.tick.GBPUSD"][0], &q))
	assert.Equal(t, 1.25, q.Bid)
}

func TestQuoteStream_IncreaseBackoff(t *testing.T) {
	s := NewQuoteStream(zap.NewNop(), "", nil)

	assert.Equal(t, 2*time.Second, s.increaseBackoff(time.Second))
	assert.Equal(t, time.Minute, s.increaseBackoff(40*time.Second))
}

func TestQuoteStream_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewQuoteStream(zap.NewNop(), "ws://127.0.0.1:1/none", nil)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
