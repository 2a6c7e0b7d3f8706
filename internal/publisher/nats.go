package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"plan-simulator/internal/playback"
	"plan-simulator/internal/simulate"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// NATSPublisher fans simulation and playback notifications out to NATS
// subjects of the form <prefix>.<plan>.<kind>.
type NATSPublisher struct {
	nc          *nats.Conn
	publish     func(subject string, data []byte) error
	marshal     func(v any) ([]byte, error)
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	log         zerolog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type Options struct {
	URL           string
	SubjectPrefix string
	Encoding      string
	LogSubjects   bool
}

func NewNATSPublisher(opts Options, m PublisherMetrics, logger zerolog.Logger) (*NATSPublisher, error) {
	marshal, err := marshaler(opts.Encoding)
	if err != nil {
		return nil, err
	}
	log := logger.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(opts.URL,
		nats.Name("plan-simulator"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc.Publish, marshal, opts, m, log)
	p.nc = nc
	return p, nil
}

func newPublisher(publish func(string, []byte) error, marshal func(any) ([]byte, error), opts Options, m PublisherMetrics, log zerolog.Logger) *NATSPublisher {
	prefix := strings.Trim(opts.SubjectPrefix, ". ")
	if prefix == "" {
		prefix = "plans"
	}
	return &NATSPublisher{
		publish:     publish,
		marshal:     marshal,
		prefix:      prefix,
		logSubjects: opts.LogSubjects,
		metrics:     m,
		log:         log,
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

func marshaler(encoding string) (func(any) ([]byte, error), error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingJSON:
		return json.Marshal, nil
	case EncodingMsgpack:
		return msgpack.Marshal, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

type DurationMessage struct {
	PlanID       string    `json:"planId" msgpack:"planId"`
	TotalSeconds float64   `json:"totalSeconds" msgpack:"totalSeconds"`
	Timestamp    time.Time `json:"timestamp" msgpack:"timestamp"`
}

type SimInfoMessage struct {
	PlanID   string           `json:"planId" msgpack:"planId"`
	EntityID string           `json:"entityId" msgpack:"entityId"`
	Info     simulate.SimInfo `json:"info" msgpack:"info"`
}

type ScrubMessage struct {
	PlanID        string  `json:"planId" msgpack:"planId"`
	OffsetSeconds float64 `json:"offsetSeconds" msgpack:"offsetSeconds"`
}

type PositionMessage struct {
	PlanID    string             `json:"planId" msgpack:"planId"`
	Timestamp time.Time          `json:"timestamp" msgpack:"timestamp"`
	Transform playback.Transform `json:"transform" msgpack:"transform"`
}

func (p *NATSPublisher) Subject(planID, kind string) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, subjectToken(planID), kind)
}

func (p *NATSPublisher) SimInfoChanged(planID, entityID string, info simulate.SimInfo) {
	p.send(p.Subject(planID, "siminfo"), SimInfoMessage{PlanID: planID, EntityID: entityID, Info: info})
}

func (p *NATSPublisher) PlanDurationUpdated(planID string, totalSeconds float64) {
	p.send(p.Subject(planID, "duration"), DurationMessage{PlanID: planID, TotalSeconds: totalSeconds, Timestamp: time.Now().UTC()})
}

func (p *NATSPublisher) ScrubRequested(planID string, offsetSeconds float64) {
	p.send(p.Subject(planID, "scrub"), ScrubMessage{PlanID: planID, OffsetSeconds: offsetSeconds})
}

func (p *NATSPublisher) PositionChanged(planID string, at time.Time, tr playback.Transform) {
	p.send(p.Subject(planID, "position"), PositionMessage{PlanID: planID, Timestamp: at, Transform: tr})
}

// send never returns an error: listener callbacks are fire-and-forget, so
// failures are logged and counted.
func (p *NATSPublisher) send(subject string, msg any) {
	if err := p.Publish(subject, msg); err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("nats publish failed")
	}
}

func (p *NATSPublisher) Publish(subject string, msg any) error {
	b, err := p.marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.Debug().Str("subject", subject).Int("bytes", len(b)).Msg("nats publish")
	}
	start := time.Now()
	err = p.publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
