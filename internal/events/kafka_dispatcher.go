package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	ErrClosed    = errors.New("dispatcher closed")
	ErrQueueFull = errors.New("dispatcher queue full")
)

// KafkaDispatcher queues events locally and sends them from a worker pool
// with bounded retries. Publish only enqueues, so a slow broker is absorbed by
// the queue instead of blocking request handlers.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	logger   logrus.FieldLogger

	queue    chan Event
	inflight *semaphore.Weighted

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped func(Event, error)
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxInflight int64
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultKafkaDispatcherOptions() KafkaDispatcherOptions {
	return KafkaDispatcherOptions{
		QueueSize:   1024,
		Workers:     4,
		MaxInflight: 16,
		MaxRetry:    3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
}

// NewSyncProducer connects a producer configured the way the dispatcher
// expects: successes returned and a local-leader ack.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return producer, nil
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, logger logrus.FieldLogger, opt KafkaDispatcherOptions) *KafkaDispatcher {
	defaults := DefaultKafkaDispatcherOptions()
	if opt.QueueSize <= 0 {
		opt.QueueSize = defaults.QueueSize
	}
	if opt.Workers <= 0 {
		opt.Workers = defaults.Workers
	}
	if opt.MaxInflight <= 0 {
		opt.MaxInflight = defaults.MaxInflight
	}
	if opt.MaxRetry < 0 {
		opt.MaxRetry = 0
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = defaults.MaxBackoff
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		logger:      logger,
		queue:       make(chan Event, opt.QueueSize),
		inflight:    semaphore.NewWeighted(opt.MaxInflight),
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	d.start()
	return d
}

// Publish enqueues evt without waiting. When the queue is full the event is
// dropped, logged and ErrQueueFull is returned.
func (d *KafkaDispatcher) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- evt:
		return nil
	default:
	}

	d.logger.WithFields(logrus.Fields{
		"event":       evt.Type,
		"document_id": evt.DocumentID,
		"comment_id":  evt.CommentID,
		"queue_size":  cap(d.queue),
	}).Warn("event queue full, dropping event")
	if d.dropped != nil {
		d.dropped(evt, ErrQueueFull)
	}
	return ErrQueueFull
}

// Close stops accepting events, drains the queue and closes the producer.
func (d *KafkaDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	if d.producer == nil {
		return nil
	}
	return d.producer.Close()
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt Event) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		_ = d.inflight.Acquire(context.Background(), 1)
		err := d.sendOnce(evt)
		d.inflight.Release(1)

		if err == nil {
			return
		}

		if attempt == d.maxRetry {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"event":       evt.Type,
				"document_id": evt.DocumentID,
				"comment_id":  evt.CommentID,
				"worker":      workerID,
			}).Warn("kafka send failed, dropping event")
			if d.dropped != nil {
				d.dropped(evt, err)
			}
			return
		}

		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *KafkaDispatcher) sendOnce(evt Event) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.DocumentID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
