package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/catwatch/internal/alert"
	"github.com/ayusman/catwatch/internal/detector"
)

// DefaultSubject is the NATS subject alerts are published on.
const DefaultSubject = "catwatch.alerts"

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// AlertMessage is the JSON body published for each alert.
type AlertMessage struct {
	ID             string               `json:"id"`
	Host           string               `json:"host"`
	Time           time.Time            `json:"time"`
	Seq            int                  `json:"seq"`
	Detector       string               `json:"detector"`
	BestConfidence float64              `json:"best_confidence"`
	Candidates     []detector.Candidate `json:"candidates"`
	SnapshotPath   string               `json:"snapshot_path,omitempty"`
}

// NATSPublisher forwards alerts to a NATS subject.
type NATSPublisher struct {
	pub     Publisher
	subject string
	host    string
}

// NewNATSPublisher wraps pub. An empty subject uses DefaultSubject.
func NewNATSPublisher(pub Publisher, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	host, _ := os.Hostname()
	return &NATSPublisher{pub: pub, subject: subject, host: host}
}

// ConnectNATS dials the server with reconnects enabled so a broker restart
// does not end the run.
func ConnectNATS(url string, timeout time.Duration) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("catwatch"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Message builds the published payload for e.
func (p *NATSPublisher) Message(e alert.Event) AlertMessage {
	return AlertMessage{
		ID:             e.ID,
		Host:           p.host,
		Time:           e.Time,
		Seq:            e.Seq,
		Detector:       e.Detector,
		BestConfidence: e.BestConfidence(),
		Candidates:     e.Candidates,
		SnapshotPath:   e.SnapshotPath,
	}
}

// Notify implements alert.Notifier. nats.Conn buffers publishes, so this
// does not wait on the network.
func (p *NATSPublisher) Notify(e alert.Event) {
	data, err := json.Marshal(p.Message(e))
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode alert for NATS")
		return
	}
	if err := p.pub.Publish(p.subject, data); err != nil {
		log.Warn().Err(err).Str("subject", p.subject).Msg("Failed to publish alert")
	}
}
