package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldserve/sms-engine/internal/carrier"
	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/repository"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
	"github.com/fieldserve/sms-engine/pkg/logger"
	"github.com/fieldserve/sms-engine/pkg/messaging"
	"github.com/fieldserve/sms-engine/pkg/metrics"
)

type Config struct {
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// Service is the dispatcher and delivery tracker: it drains the
// dispatch queue into the carrier and advances message status as
// receipts arrive. Carrier submission never runs on the
// event-evaluation path.
type Service struct {
	messages  repository.MessageRepository
	customers repository.CustomerRepository
	gateway   carrier.Gateway
	queue     messaging.Queue
	config    Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	messages repository.MessageRepository,
	customers repository.CustomerRepository,
	gateway carrier.Gateway,
	queue messaging.Queue,
	config Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	config.applyDefaults()
	return &Service{
		messages:  messages,
		customers: customers,
		gateway:   gateway,
		queue:     queue,
		config:    config,
		logger:    log.WithComponent("dispatch"),
		metrics:   m,
	}
}

type dispatchJob struct {
	MessageID uuid.UUID `json:"message_id"`
}

// Enqueue hands a queued message to the dispatch workers.
func (s *Service) Enqueue(ctx context.Context, messageID uuid.UUID) error {
	if err := s.queue.Publish(ctx, messaging.TopicDispatch, dispatchJob{MessageID: messageID}); err != nil {
		return fmt.Errorf("failed to enqueue message %s: %w", messageID, err)
	}
	s.metrics.MessagesQueued.Inc()
	return nil
}

// EnqueueReceipt posts a carrier delivery callback for asynchronous
// processing by the tracker loop.
func (s *Service) EnqueueReceipt(ctx context.Context, receipt model.DeliveryReceipt) error {
	if err := s.queue.Publish(ctx, messaging.TopicReceipts, receipt); err != nil {
		return fmt.Errorf("failed to enqueue receipt: %w", err)
	}
	return nil
}

// Start runs the dispatch worker pool and the receipt consumer until
// ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	jobs, err := s.queue.Consume(ctx, messaging.TopicDispatch)
	if err != nil {
		return fmt.Errorf("failed to consume dispatch queue: %w", err)
	}
	receipts, err := s.queue.Consume(ctx, messaging.TopicReceipts)
	if err != nil {
		return fmt.Errorf("failed to consume receipt queue: %w", err)
	}

	s.logger.Info("starting dispatch workers", "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for payload := range jobs {
				var job dispatchJob
				if err := json.Unmarshal(payload, &job); err != nil {
					s.logger.Error(err, "invalid dispatch job payload")
					continue
				}
				s.process(ctx, job.MessageID)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if depth, err := s.queue.Depth(ctx, messaging.TopicDispatch); err == nil {
					s.metrics.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for payload := range receipts {
			var receipt model.DeliveryReceipt
			if err := json.Unmarshal(payload, &receipt); err != nil {
				s.logger.Error(err, "invalid receipt payload")
				continue
			}
			if err := s.ApplyReceipt(ctx, receipt); err != nil {
				s.logger.Error(err, "failed to apply receipt", "provider_ref", receipt.ProviderRef)
			}
		}
	}()

	wg.Wait()
	return nil
}

func (s *Service) process(ctx context.Context, messageID uuid.UUID) {
	timer := prometheus.NewTimer(s.metrics.DispatchLatency)
	defer timer.ObserveDuration()

	dbTimer := prometheus.NewTimer(s.metrics.DatabaseLatency.WithLabelValues("load_message"))
	msg, err := s.messages.Get(ctx, messageID)
	dbTimer.ObserveDuration()
	if err != nil {
		s.metrics.DatabaseOperations.WithLabelValues("load_message", "error").Inc()
		s.logger.Error(err, "failed to load message for dispatch", "message_id", messageID.String())
		return
	}
	s.metrics.DatabaseOperations.WithLabelValues("load_message", "success").Inc()
	if msg.Status != model.MessageStatusQueued {
		// Redelivered job; the first delivery already settled it.
		return
	}

	customer, err := s.customers.Get(ctx, msg.CustomerID)
	if err != nil {
		s.fail(ctx, msg, fmt.Sprintf("customer lookup failed: %v", err))
		return
	}

	providerRef, err := s.submit(ctx, msg, customer.Phone)
	if err != nil {
		s.fail(ctx, msg, err.Error())
		return
	}

	applied, err := s.messages.MarkSent(ctx, msg.ID, providerRef, time.Now())
	if err != nil {
		s.logger.Error(err, "failed to mark message sent", "message_id", msg.ID.String())
		return
	}
	if applied {
		s.metrics.MessagesSent.Inc()
	}
}

// submit tries the carrier with a bounded retry budget. Permanent
// errors short-circuit; transient ones back off with jitter.
func (s *Service) submit(ctx context.Context, msg *model.Message, phone string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < s.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			s.metrics.DispatchRetries.WithLabelValues(string(carrier.ErrorClassTransient)).Inc()
			if err := s.messages.IncrementRetry(ctx, msg.ID); err != nil {
				s.logger.Error(err, "failed to record retry", "message_id", msg.ID.String())
			}
			select {
			case <-time.After(s.backoff(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		providerRef, err := s.gateway.Send(ctx, phone, msg.Body)
		if err == nil {
			return providerRef, nil
		}
		lastErr = err

		if carrier.IsPermanent(err) {
			s.metrics.DispatchRetries.WithLabelValues(string(carrier.ErrorClassPermanent)).Inc()
			return "", apperrors.PermanentDispatch(err)
		}

		s.logger.Warn("transient carrier failure",
			"message_id", msg.ID.String(),
			"attempt", attempt+1,
			"error", err.Error())
	}
	return "", apperrors.TransientDispatch(lastErr)
}

func (s *Service) backoff(attempt int) time.Duration {
	delay := s.config.BaseBackoff << uint(attempt-1)
	if delay > s.config.MaxBackoff {
		delay = s.config.MaxBackoff
	}
	// Full jitter up to half the computed delay.
	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}

func (s *Service) fail(ctx context.Context, msg *model.Message, reason string) {
	applied, err := s.messages.MarkFailed(ctx, msg.ID, reason)
	if err != nil {
		s.logger.Error(err, "failed to mark message failed", "message_id", msg.ID.String())
		return
	}
	if applied {
		s.metrics.MessagesFailed.Inc()
		s.logger.Warn("message permanently failed",
			"message_id", msg.ID.String(),
			"tenant_id", msg.TenantID.String(),
			"reason", reason)
	}
}

// ApplyReceipt advances sent -> delivered|failed. Receipts for unknown
// provider refs or for messages already terminal are logged and
// discarded; status never reverts.
func (s *Service) ApplyReceipt(ctx context.Context, receipt model.DeliveryReceipt) error {
	if receipt.Timestamp.IsZero() {
		receipt.Timestamp = time.Now()
	}

	var (
		applied bool
		err     error
	)
	switch receipt.Status {
	case model.MessageStatusDelivered:
		applied, err = s.messages.MarkDelivered(ctx, receipt.ProviderRef, receipt.Timestamp)
	case model.MessageStatusFailed:
		applied, err = s.messages.MarkFailedByRef(ctx, receipt.ProviderRef, "carrier reported delivery failure")
	default:
		s.discardReceipt(receipt, "unsupported receipt status")
		return nil
	}
	if err != nil {
		return err
	}

	if !applied {
		if _, lookupErr := s.messages.GetByProviderRef(ctx, receipt.ProviderRef); lookupErr != nil {
			s.discardReceipt(receipt, apperrors.UnknownReceipt(receipt.ProviderRef).Message)
		} else {
			s.discardReceipt(receipt, "message already in terminal status")
		}
		return nil
	}

	s.metrics.ReceiptsApplied.WithLabelValues(string(receipt.Status)).Inc()
	if receipt.Status == model.MessageStatusFailed {
		s.metrics.MessagesFailed.Inc()
	}
	return nil
}

func (s *Service) discardReceipt(receipt model.DeliveryReceipt, reason string) {
	s.metrics.ReceiptsDiscarded.Inc()
	s.logger.Debug("discarding delivery receipt",
		"provider_ref", receipt.ProviderRef,
		"status", string(receipt.Status),
		"reason", reason)
}
