package bus

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cordum/mediaflow/core/infra/logging"
	"github.com/nats-io/nats.go"
)

// NatsBus is a thin wrapper over a NATS connection that speaks encoded events.
type NatsBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	jsEnabled bool
	ackWait   time.Duration
}

const (
	envUseJetStream      = "NATS_USE_JETSTREAM"
	envJSAckWait         = "NATS_JS_ACK_WAIT"
	envJSMaxAge          = "NATS_JS_MAX_AGE"
	envNATSTLSCA         = "NATS_TLS_CA"
	envNATSTLSInsecure   = "NATS_TLS_INSECURE"
	envNATSTLSServerName = "NATS_TLS_SERVER_NAME"

	defaultAckWait = 10 * time.Minute
	defaultMaxAge  = 7 * 24 * time.Hour

	streamTriggers       = "MEDIAFLOW_TRIGGERS"
	streamWorkflowEvents = "MEDIAFLOW_WORKFLOW_EVENTS"
)

var (
	errNilBus     = errors.New("nats bus not initialized")
	errEmptyTopic = errors.New("empty subject")
	errNilHandler = errors.New("nil handler")
)

// NewNatsBus dials NATS at the provided URL.
func NewNatsBus(url string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("mediaflow-bus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("bus", "disconnected from nats", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("bus", "reconnected to nats", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("bus", "connection closed")
		}),
	}
	tlsCfg, err := natsTLSConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		opts = append(opts, nats.Secure(tlsCfg))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	b := &NatsBus{nc: nc, ackWait: defaultAckWait}
	b.initJetStreamFromEnv()
	return b, nil
}

// Close shuts down the underlying NATS connection.
func (b *NatsBus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}

// Publish sends an encoded event on the given subject.
func (b *NatsBus) Publish(subject string, evt Event) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	data, err := EncodeEvent(evt)
	if err != nil {
		return err
	}
	if b.jsEnabled && isDurableSubject(subject) {
		if msgID := computeMsgID(subject, evt); msgID != "" {
			_, err = b.js.Publish(subject, data, nats.MsgId(msgID))
		} else {
			_, err = b.js.Publish(subject, data)
		}
		return err
	}
	return b.nc.Publish(subject, data)
}

// Subscribe attaches a subscription that decodes events and invokes the handler.
// When JetStream is enabled, trigger subjects are consumed with explicit
// ack/nak semantics and handlers may ask for redelivery with RetryAfter.
func (b *NatsBus) Subscribe(subject, queue string, handler func(Event) error) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if handler == nil {
		return errNilHandler
	}
	if b.jsEnabled && isDurableSubject(subject) {
		cb := func(msg *nats.Msg) {
			evt, err := decodeMsg(msg)
			if err != nil {
				logging.Warn("bus", "drop undecodable event", "subject", msg.Subject, "error", err)
				_ = msg.Ack()
				return
			}
			if err := handler(evt); err != nil {
				if delay, ok := RetryDelay(err); ok {
					if delay > 0 {
						_ = msg.NakWithDelay(delay)
					} else {
						_ = msg.Nak()
					}
					return
				}
				logging.Warn("bus", "handler error (ack)", "subject", msg.Subject, "error", err)
			}
			_ = msg.Ack()
		}

		opts := []nats.SubOpt{
			nats.ManualAck(),
			nats.AckExplicit(),
			nats.AckWait(b.ackWait),
			nats.MaxAckPending(1024),
		}
		if durable := durableName(subject, queue); durable != "" {
			opts = append(opts, nats.Durable(durable))
		}
		var err error
		if queue == "" {
			_, err = b.js.Subscribe(subject, cb, opts...)
		} else {
			_, err = b.js.QueueSubscribe(subject, queue, cb, opts...)
		}
		return err
	}

	cb := func(msg *nats.Msg) {
		evt, err := decodeMsg(msg)
		if err != nil {
			logging.Warn("bus", "drop undecodable event", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(evt); err != nil {
			logging.Warn("bus", "handler error", "subject", msg.Subject, "error", err)
		}
	}
	var err error
	if queue == "" {
		_, err = b.nc.Subscribe(subject, cb)
	} else {
		_, err = b.nc.QueueSubscribe(subject, queue, cb)
	}
	return err
}

func (b *NatsBus) IsConnected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

func (b *NatsBus) Status() string {
	if b == nil || b.nc == nil {
		return "UNKNOWN"
	}
	return b.nc.Status().String()
}

func (b *NatsBus) ConnectedURL() string {
	if b == nil || b.nc == nil {
		return ""
	}
	return b.nc.ConnectedUrl()
}

func decodeMsg(msg *nats.Msg) (Event, error) {
	evt, err := DecodeEvent(msg.Data)
	if err != nil {
		return Event{}, err
	}
	if evt.Type == "" {
		evt.Type = typeFromSubject(msg.Subject)
	}
	return evt, nil
}

func initJetStreamEnabled() bool {
	return parseBool(os.Getenv(envUseJetStream))
}

func (b *NatsBus) initJetStreamFromEnv() {
	if b == nil || b.nc == nil || !initJetStreamEnabled() {
		return
	}
	ackWait := durationFromEnv(envJSAckWait, defaultAckWait)
	maxAge := durationFromEnv(envJSMaxAge, defaultMaxAge)

	js, err := b.nc.JetStream()
	if err != nil {
		logging.Warn("bus", "jetstream init failed", "error", err)
		return
	}
	if _, err := js.AccountInfo(); err != nil {
		logging.Warn("bus", "jetstream not available", "error", err)
		return
	}

	ensureStream := func(name string, subjects []string) {
		_, err := js.AddStream(&nats.StreamConfig{
			Name:       name,
			Subjects:   subjects,
			Retention:  nats.LimitsPolicy,
			Storage:    nats.FileStorage,
			MaxAge:     maxAge,
			Duplicates: 2 * time.Minute,
		})
		if err == nil {
			logging.Info("bus", "jetstream stream ensured", "name", name, "subjects", strings.Join(subjects, ","), "max_age", maxAge)
			return
		}
		// Stream may already exist.
		if _, infoErr := js.StreamInfo(name); infoErr == nil {
			return
		}
		logging.Warn("bus", "jetstream ensure stream failed", "name", name, "error", err)
	}
	ensureStream(streamTriggers, []string{SubjectTriggerPrefix + ">"})
	ensureStream(streamWorkflowEvents, []string{SubjectWorkflowPrefix + ">"})

	b.js = js
	b.jsEnabled = true
	b.ackWait = ackWait
	logging.Info("bus", "jetstream enabled", "ack_wait", ackWait)
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func isDurableSubject(subject string) bool {
	return strings.HasPrefix(subject, SubjectTriggerPrefix) || strings.HasPrefix(subject, SubjectWorkflowPrefix)
}

func durableName(subject, queue string) string {
	name := sanitizeDurable(subject)
	if name == "" {
		return ""
	}
	if q := sanitizeDurable(queue); q != "" {
		return "dur_" + q + "__" + name
	}
	return "dur_" + name
}

func sanitizeDurable(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "*", "STAR")
	s = strings.ReplaceAll(s, ">", "GT")
	return strings.TrimSpace(s)
}

// computeMsgID dedupes redeliveries of the same event within the stream window.
func computeMsgID(subject string, evt Event) string {
	if id := strings.TrimSpace(evt.ID); id != "" {
		return subject + ":" + id
	}
	if id := strings.TrimSpace(evt.ExecutionID); id != "" {
		return subject + ":exec:" + id
	}
	return ""
}

func natsTLSConfigFromEnv() (*tls.Config, error) {
	caPath := strings.TrimSpace(os.Getenv(envNATSTLSCA))
	serverName := strings.TrimSpace(os.Getenv(envNATSTLSServerName))
	insecure := parseBool(os.Getenv(envNATSTLSInsecure))
	if caPath == "" && serverName == "" && !insecure {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: serverName}
	if insecure {
		// #nosec G402 -- opt-in for local development only.
		cfg.InsecureSkipVerify = true
	}
	if caPath != "" {
		// #nosec G304 -- CA path is operator-provided.
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read nats tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("nats tls ca: no certificates in %s", caPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// Publisher is the publishing half of the bus; Nop satisfies it when NATS is
// not configured.
type Publisher interface {
	Publish(subject string, evt Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(string, Event) error { return nil }

var _ Publisher = (*NatsBus)(nil)
