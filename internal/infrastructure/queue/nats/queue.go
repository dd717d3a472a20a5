package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
)

const (
	defaultAckWait     = 10 * time.Minute
	defaultMaxDeliver  = 3
	defaultBackoffBase = 5 * time.Second
	dedupWindow        = 2 * time.Minute
	fetchWait          = 5 * time.Second
)

// Queue is the ingestion job transport on NATS JetStream. Redelivery policy
// lives here: up to MaxDeliver attempts with exponential backoff, an ack
// wait long enough to tolerate multi-minute embedding calls, and Nats-Msg-Id
// deduplication keyed by (document, version) so a double-submit is coalesced.
type Queue struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	stream   string
	subject  string
	durable  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	AckWait        time.Duration
	MaxDeliver     int
	Executor       *resilience.Executor
}

func New(url, stream, subject, durable string, logger *slog.Logger, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docvault"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:       stream,
		Subjects:   []string{subject},
		Retention:  nats.WorkQueuePolicy,
		Duplicates: dedupWindow,
	}); err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		conn.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &Queue{
		conn:     conn,
		js:       js,
		stream:   stream,
		subject:  subject,
		durable:  durable,
		executor: options.Executor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIngest(ctx context.Context, payload domain.IngestPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ingest payload: %w", err)
	}

	call := func(_ context.Context) error {
		if _, err := q.js.Publish(q.subject, data, nats.MsgId(payload.DedupKey())); err != nil {
			return fmt.Errorf("jetstream publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "queue.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeIngest consumes document jobs sequentially: one in-flight job per
// worker process. Horizontal scaling means more worker processes bound to
// the same durable consumer.
func (q *Queue) SubscribeIngest(ctx context.Context, handler func(context.Context, domain.IngestPayload) error) error {
	ackWait := defaultAckWait
	maxDeliver := defaultMaxDeliver

	sub, err := q.js.PullSubscribe(
		q.subject,
		q.durable,
		nats.ManualAck(),
		nats.AckWait(ackWait),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return fmt.Errorf("jetstream pull subscribe: %w", err)
	}

	for {
		if ctx.Err() != nil {
			if err := sub.Drain(); err != nil {
				q.logger.Warn("drain subscription", "error", err)
			}
			return nil
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			q.logger.Warn("fetch job", "error", err)
			continue
		}

		for _, msg := range msgs {
			q.handleMessage(ctx, msg, handler)
		}
	}
}

func (q *Queue) handleMessage(ctx context.Context, msg *nats.Msg, handler func(context.Context, domain.IngestPayload) error) {
	var payload domain.IngestPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		q.logger.Error("unmarshal ingest payload", "error", err)
		// Poison message: never decodable, never retried.
		if termErr := msg.Term(); termErr != nil {
			q.logger.Warn("terminate poison message", "error", termErr)
		}
		return
	}

	if err := handler(ctx, payload); err != nil {
		delay := redeliveryDelay(msg)
		q.logger.Warn("job handler failed, scheduling redelivery",
			"document_id", payload.DocumentID, "delay", delay, "error", err)
		if nakErr := msg.NakWithDelay(delay); nakErr != nil {
			q.logger.Warn("nak message", "error", nakErr)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		q.logger.Warn("ack message", "document_id", payload.DocumentID, "error", err)
	}
}

// redeliveryDelay grows exponentially with the delivery count: 5s, 10s, 20s…
func redeliveryDelay(msg *nats.Msg) time.Duration {
	delay := defaultBackoffBase
	meta, err := msg.Metadata()
	if err != nil {
		return delay
	}
	for i := uint64(1); i < meta.NumDelivered; i++ {
		delay *= 2
	}
	return delay
}

func classifyNATSError(err error) resilience.Outcome {
	if err == nil {
		return resilience.Outcome{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Outcome{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.Outcome{Retryable: true, RecordFailure: true}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.Outcome{Retryable: true, RecordFailure: true}
	}
	return resilience.Outcome{RecordFailure: true}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "queue publish", err)
	}
	return err
}
