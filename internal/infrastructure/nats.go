package infrastructure

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const StreamName = "FX"

// Subject prefixes. Concrete subjects append the symbol or action.
const (
	SubjectTick   = "market.tick."
	SubjectCandle = "market.candle."
	SubjectEvent  = "autotrade.event."
)

var streamSubjects = []string{SubjectTick + "*", SubjectCandle + "*", SubjectEvent + "*"}

func InitNATS(url string, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url, nats.Name("fx-autotrader"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	// Create stream if it doesn't exist
	cfg := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  streamSubjects,
		Retention: nats.LimitsPolicy,
		MaxMsgs:   1_000_000,
	}
	_, err = js.AddStream(cfg)
	if err != nil {
		_, err = js.UpdateStream(cfg)
		if err != nil {
			logger.Warn("failed to create or update stream", zap.Error(err))
		}
	}

	return nc, js, nil
}
