package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve/sms-engine/internal/carrier"
	"github.com/fieldserve/sms-engine/internal/model"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
	"github.com/fieldserve/sms-engine/pkg/logger"
	"github.com/fieldserve/sms-engine/pkg/messaging/memory"
	"github.com/fieldserve/sms-engine/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "dispatch")

// messageStore enforces the same monotonic transitions the SQL
// conditional updates do.
type messageStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Message
}

func newMessageStore() *messageStore {
	return &messageStore{byID: make(map[uuid.UUID]*model.Message)}
}

func (s *messageStore) add(msg *model.Message) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	s.byID[msg.ID] = msg
	return msg
}

func (s *messageStore) get(id uuid.UUID) model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.byID[id]
}

func (s *messageStore) Reserve(_ context.Context, msg *model.Message) error {
	s.add(msg)
	return nil
}

func (s *messageStore) Insert(_ context.Context, msg *model.Message) error {
	s.add(msg)
	return nil
}

func (s *messageStore) Get(_ context.Context, id uuid.UUID) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.byID[id]; ok {
		copied := *msg
		return &copied, nil
	}
	return nil, apperrors.NewNotFound("message", nil)
}

func (s *messageStore) GetByProviderRef(_ context.Context, ref string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.byID {
		if msg.ProviderRef != nil && *msg.ProviderRef == ref {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, apperrors.NewNotFound("message", nil)
}

func (s *messageStore) MarkSent(_ context.Context, id uuid.UUID, ref string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[id]
	if !ok || !msg.Status.CanTransition(model.MessageStatusSent) {
		return false, nil
	}
	msg.Status = model.MessageStatusSent
	msg.ProviderRef = &ref
	msg.SentAt = &at
	return true, nil
}

func (s *messageStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[id]
	if !ok || !msg.Status.CanTransition(model.MessageStatusFailed) {
		return false, nil
	}
	msg.Status = model.MessageStatusFailed
	msg.Error = &reason
	return true, nil
}

func (s *messageStore) MarkDelivered(_ context.Context, ref string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.byID {
		if msg.ProviderRef != nil && *msg.ProviderRef == ref {
			if !msg.Status.CanTransition(model.MessageStatusDelivered) {
				return false, nil
			}
			msg.Status = model.MessageStatusDelivered
			msg.DeliveredAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (s *messageStore) MarkFailedByRef(_ context.Context, ref, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.byID {
		if msg.ProviderRef != nil && *msg.ProviderRef == ref {
			if !msg.Status.CanTransition(model.MessageStatusFailed) {
				return false, nil
			}
			msg.Status = model.MessageStatusFailed
			msg.Error = &reason
			return true, nil
		}
	}
	return false, nil
}

func (s *messageStore) IncrementRetry(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.byID[id]; ok {
		msg.RetryCount++
	}
	return nil
}

func (s *messageStore) ListByCustomer(context.Context, uuid.UUID, uuid.UUID, int, int) ([]*model.Message, error) {
	return nil, nil
}

type customerStore struct {
	byID map[uuid.UUID]*model.Customer
}

func (s *customerStore) Get(_ context.Context, id uuid.UUID) (*model.Customer, error) {
	if c, ok := s.byID[id]; ok {
		return c, nil
	}
	return nil, apperrors.NewNotFound("customer", nil)
}

func (s *customerStore) SetOptedOut(context.Context, uuid.UUID, bool) error { return nil }

// countingGateway wraps another gateway and counts submissions.
type countingGateway struct {
	mu    sync.Mutex
	calls int
	inner carrier.Gateway
}

func (g *countingGateway) Send(ctx context.Context, to, body string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.inner.Send(ctx, to, body)
}

func (g *countingGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type dispatchFixture struct {
	svc      *Service
	store    *messageStore
	gateway  *carrier.MockGateway
	counting *countingGateway
	queue    *memory.MemoryQueue

	customerID uuid.UUID
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()

	f := &dispatchFixture{
		store:      newMessageStore(),
		gateway:    carrier.NewMockGateway(),
		queue:      memory.NewMemoryQueue(),
		customerID: uuid.New(),
	}
	f.counting = &countingGateway{inner: f.gateway}

	customers := &customerStore{byID: map[uuid.UUID]*model.Customer{
		f.customerID: {ID: f.customerID, Phone: "+15550123"},
	}}

	f.svc = NewService(f.store, customers, f.counting, f.queue, Config{
		Workers:     2,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, logger.NewLogger(nil), testMetrics)
	return f
}

func (f *dispatchFixture) queuedMessage() *model.Message {
	return f.store.add(&model.Message{
		TenantID:    uuid.New(),
		CustomerID:  f.customerID,
		TriggerType: model.TriggerArrived,
		Direction:   model.DirectionOutbound,
		Body:        "Jordan has arrived",
		Status:      model.MessageStatusQueued,
	})
}

func (f *dispatchFixture) run(t *testing.T) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = f.svc.Start(ctx)
	}()
	t.Cleanup(cancel)
	return cancel
}

func TestDispatchMarksMessageSent(t *testing.T) {
	f := newDispatchFixture(t)
	msg := f.queuedMessage()
	f.run(t)

	require.NoError(t, f.svc.Enqueue(context.Background(), msg.ID))

	require.Eventually(t, func() bool {
		return f.store.get(msg.ID).Status == model.MessageStatusSent
	}, time.Second, 5*time.Millisecond)

	got := f.store.get(msg.ID)
	require.NotNil(t, got.ProviderRef)
	assert.NotEmpty(t, *got.ProviderRef)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, 1, f.gateway.SentCount())
}

func TestDispatchRetriesTransientFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.gateway.FailFirst = 1
	msg := f.queuedMessage()
	f.run(t)

	require.NoError(t, f.svc.Enqueue(context.Background(), msg.ID))

	require.Eventually(t, func() bool {
		return f.store.get(msg.ID).Status == model.MessageStatusSent
	}, time.Second, 5*time.Millisecond)

	got := f.store.get(msg.ID)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, 2, f.counting.callCount())
}

func TestDispatchFailsAfterRetryBudgetExhausted(t *testing.T) {
	f := newDispatchFixture(t)
	f.gateway.FailWith = carrier.NewTransientError("network", "carrier unreachable")
	msg := f.queuedMessage()
	f.run(t)

	require.NoError(t, f.svc.Enqueue(context.Background(), msg.ID))

	require.Eventually(t, func() bool {
		return f.store.get(msg.ID).Status == model.MessageStatusFailed
	}, time.Second, 5*time.Millisecond)

	got := f.store.get(msg.ID)
	assert.Equal(t, 3, f.counting.callCount())
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "transient dispatch failure")
}

func TestDispatchPermanentErrorShortCircuits(t *testing.T) {
	f := newDispatchFixture(t)
	f.gateway.FailWith = carrier.NewPermanentError("21211", "invalid destination number")
	msg := f.queuedMessage()
	f.run(t)

	require.NoError(t, f.svc.Enqueue(context.Background(), msg.ID))

	require.Eventually(t, func() bool {
		return f.store.get(msg.ID).Status == model.MessageStatusFailed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.counting.callCount(), "permanent errors are not retried")
}

func TestDispatchSkipsSettledMessage(t *testing.T) {
	f := newDispatchFixture(t)
	msg := f.queuedMessage()
	ref := "mock-old"
	now := time.Now()
	_, err := f.store.MarkSent(context.Background(), msg.ID, ref, now)
	require.NoError(t, err)
	f.run(t)

	require.NoError(t, f.svc.Enqueue(context.Background(), msg.ID))

	// Give the worker a chance to (incorrectly) resend.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.counting.callCount())
	assert.Equal(t, model.MessageStatusSent, f.store.get(msg.ID).Status)
}

func TestDispatchRecordsMessageLoadMetrics(t *testing.T) {
	f := newDispatchFixture(t)
	msg := f.queuedMessage()
	success := testMetrics.DatabaseOperations.WithLabelValues("load_message", "success")
	failure := testMetrics.DatabaseOperations.WithLabelValues("load_message", "error")
	successBefore := testutil.ToFloat64(success)
	failureBefore := testutil.ToFloat64(failure)
	f.run(t)

	require.NoError(t, f.svc.Enqueue(context.Background(), msg.ID))
	require.Eventually(t, func() bool {
		return f.store.get(msg.ID).Status == model.MessageStatusSent
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, successBefore+1, testutil.ToFloat64(success))

	// A job for an unknown message records an error load.
	require.NoError(t, f.svc.Enqueue(context.Background(), uuid.New()))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(failure) == failureBefore+1
	}, time.Second, 5*time.Millisecond)
}

func TestApplyReceiptDelivered(t *testing.T) {
	f := newDispatchFixture(t)
	msg := f.queuedMessage()
	_, err := f.store.MarkSent(context.Background(), msg.ID, "ref-1", time.Now())
	require.NoError(t, err)

	err = f.svc.ApplyReceipt(context.Background(), model.DeliveryReceipt{
		ProviderRef: "ref-1",
		Status:      model.MessageStatusDelivered,
		Timestamp:   time.Now(),
	})
	require.NoError(t, err)

	got := f.store.get(msg.ID)
	assert.Equal(t, model.MessageStatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
}

func TestApplyReceiptFailed(t *testing.T) {
	f := newDispatchFixture(t)
	msg := f.queuedMessage()
	_, err := f.store.MarkSent(context.Background(), msg.ID, "ref-1", time.Now())
	require.NoError(t, err)

	err = f.svc.ApplyReceipt(context.Background(), model.DeliveryReceipt{
		ProviderRef: "ref-1",
		Status:      model.MessageStatusFailed,
	})
	require.NoError(t, err)

	got := f.store.get(msg.ID)
	assert.Equal(t, model.MessageStatusFailed, got.Status)
	require.NotNil(t, got.Error)
}

func TestApplyReceiptNeverRevertsTerminalStatus(t *testing.T) {
	f := newDispatchFixture(t)
	msg := f.queuedMessage()
	_, err := f.store.MarkSent(context.Background(), msg.ID, "ref-1", time.Now())
	require.NoError(t, err)

	require.NoError(t, f.svc.ApplyReceipt(context.Background(), model.DeliveryReceipt{
		ProviderRef: "ref-1",
		Status:      model.MessageStatusDelivered,
	}))

	// A late failure receipt for the same ref is discarded.
	require.NoError(t, f.svc.ApplyReceipt(context.Background(), model.DeliveryReceipt{
		ProviderRef: "ref-1",
		Status:      model.MessageStatusFailed,
	}))

	assert.Equal(t, model.MessageStatusDelivered, f.store.get(msg.ID).Status)
}

func TestApplyReceiptUnknownRefDiscarded(t *testing.T) {
	f := newDispatchFixture(t)

	err := f.svc.ApplyReceipt(context.Background(), model.DeliveryReceipt{
		ProviderRef: "never-seen",
		Status:      model.MessageStatusDelivered,
	})
	assert.NoError(t, err, "unknown receipts are logged and dropped, not errors")
}

func TestApplyReceiptUnsupportedStatusDiscarded(t *testing.T) {
	f := newDispatchFixture(t)
	msg := f.queuedMessage()
	_, err := f.store.MarkSent(context.Background(), msg.ID, "ref-1", time.Now())
	require.NoError(t, err)

	require.NoError(t, f.svc.ApplyReceipt(context.Background(), model.DeliveryReceipt{
		ProviderRef: "ref-1",
		Status:      model.MessageStatusQueued,
	}))
	assert.Equal(t, model.MessageStatusSent, f.store.get(msg.ID).Status)
}

func TestReceiptConsumerAppliesEnqueuedReceipts(t *testing.T) {
	f := newDispatchFixture(t)
	msg := f.queuedMessage()
	_, err := f.store.MarkSent(context.Background(), msg.ID, "ref-9", time.Now())
	require.NoError(t, err)
	f.run(t)

	require.NoError(t, f.svc.EnqueueReceipt(context.Background(), model.DeliveryReceipt{
		ProviderRef: "ref-9",
		Status:      model.MessageStatusDelivered,
		Timestamp:   time.Now(),
	}))

	require.Eventually(t, func() bool {
		return f.store.get(msg.ID).Status == model.MessageStatusDelivered
	}, time.Second, 5*time.Millisecond)
}
