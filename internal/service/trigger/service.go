package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldserve/sms-engine/internal/model"
	"github.com/fieldserve/sms-engine/internal/repository"
	"github.com/fieldserve/sms-engine/internal/service/render"
	"github.com/fieldserve/sms-engine/internal/service/settings"
	"github.com/fieldserve/sms-engine/internal/service/template"
	apperrors "github.com/fieldserve/sms-engine/pkg/errors"
	"github.com/fieldserve/sms-engine/pkg/logger"
	"github.com/fieldserve/sms-engine/pkg/metrics"
)

// Dispatcher is the handoff point to the carrier side. The engine
// never talks to the carrier directly.
type Dispatcher interface {
	Enqueue(ctx context.Context, messageID uuid.UUID) error
}

type Service struct {
	settings   settings.Service
	templates  template.Service
	messages   repository.MessageRepository
	customers  repository.CustomerRepository
	tenants    repository.TenantRepository
	jobs       repository.JobRepository
	dispatcher Dispatcher
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(
	settingsSvc settings.Service,
	templates template.Service,
	messages repository.MessageRepository,
	customers repository.CustomerRepository,
	tenants repository.TenantRepository,
	jobs repository.JobRepository,
	dispatcher Dispatcher,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		settings:   settingsSvc,
		templates:  templates,
		messages:   messages,
		customers:  customers,
		tenants:    tenants,
		jobs:       jobs,
		dispatcher: dispatcher,
		logger:     log.WithComponent("trigger"),
		metrics:    m,
	}
}

// HandleEvent evaluates one lifecycle event. At-least-once event
// delivery is expected: redelivery of the same fingerprint returns
// skipped, and two concurrent deliveries race safely through the
// storage-level dedup constraint so exactly one message is created.
//
// Only the outcome crosses this boundary; the error carries detail for
// logging but callers never need to branch on it.
func (s *Service) HandleEvent(ctx context.Context, event *model.TriggerEvent) (model.Outcome, error) {
	timer := prometheus.NewTimer(s.metrics.HandleLatency)
	defer timer.ObserveDuration()

	outcome, err := s.handle(ctx, event)
	s.metrics.TriggerOutcomes.WithLabelValues(string(event.TriggerType), string(outcome)).Inc()
	return outcome, err
}

func (s *Service) handle(ctx context.Context, event *model.TriggerEvent) (model.Outcome, error) {
	if !event.TriggerType.Valid() || !event.TriggerType.Deduplicated() {
		return model.OutcomeFailed, apperrors.NewBadRequest(
			fmt.Sprintf("trigger type %q cannot be registered as an event", event.TriggerType), nil)
	}
	if event.EventFingerprint == "" {
		return model.OutcomeFailed, apperrors.NewBadRequest("event_fingerprint is required", nil)
	}

	snapshot, err := s.settings.Snapshot(ctx, event.TenantID)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if !snapshot.EnabledFor(event.TriggerType) {
		return model.OutcomeSuppressed, nil
	}

	// A cancelled or deleted job suppresses its in-flight events.
	if event.JobID != nil {
		exists, err := s.jobs.Exists(ctx, *event.JobID)
		if err != nil {
			return model.OutcomeFailed, err
		}
		if !exists {
			return model.OutcomeSuppressed, nil
		}
	}

	customer, err := s.customers.Get(ctx, event.CustomerID)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if customer.OptedOut {
		return model.OutcomeSuppressed, nil
	}

	tmpl, tmplErr := s.templates.GetActive(ctx, event.TenantID, event.TriggerType)
	if tmplErr != nil && !apperrors.HasCode(tmplErr, apperrors.ErrNoActiveTemplate) {
		return model.OutcomeFailed, tmplErr
	}

	msg := &model.Message{
		TenantID:         event.TenantID,
		CustomerID:       event.CustomerID,
		JobID:            event.JobID,
		TechnicianID:     event.TechnicianID,
		TriggerType:      event.TriggerType,
		Direction:        model.DirectionOutbound,
		EventFingerprint: event.EventFingerprint,
	}

	// Fail closed when no template is active: the dedup key is still
	// reserved so redeliveries do not re-fail, and the misconfiguration
	// is visible to the tenant as a failed message.
	if tmplErr != nil {
		msg.Status = model.MessageStatusFailed
		errStr := "no_active_template"
		msg.Error = &errStr

		if err := s.messages.Reserve(ctx, msg); err != nil {
			if apperrors.HasCode(err, apperrors.ErrDuplicateEvent) {
				return model.OutcomeSkipped, nil
			}
			return model.OutcomeFailed, err
		}
		return model.OutcomeFailed, tmplErr
	}

	renderCtx, err := s.assembleContext(ctx, event, customer)
	if err != nil {
		return model.OutcomeFailed, err
	}

	body, _ := render.Render(tmpl.Body, renderCtx)
	body, truncated := render.Truncate(body, model.MaxBodyLength)

	if warning := renderWarning(body, truncated); warning != "" {
		msg.RenderWarning = &warning
		s.metrics.RenderWarnings.Inc()
	}

	msg.Body = body
	msg.Status = model.MessageStatusQueued

	if err := s.messages.Reserve(ctx, msg); err != nil {
		if apperrors.HasCode(err, apperrors.ErrDuplicateEvent) {
			return model.OutcomeSkipped, nil
		}
		return model.OutcomeFailed, err
	}

	if err := s.dispatcher.Enqueue(ctx, msg.ID); err != nil {
		// The reservation holds so redeliveries stay deduplicated; the
		// row is settled as failed so it is visible in the tenant's
		// history instead of sitting queued with no worker to drain it.
		s.logger.Error(err, "failed to enqueue reserved message", "message_id", msg.ID.String())
		s.failStranded(ctx, msg.ID, err)
		return model.OutcomeFailed, err
	}

	return model.OutcomeSent, nil
}

// failStranded settles a stored message that never reached the
// dispatch queue.
func (s *Service) failStranded(ctx context.Context, id uuid.UUID, cause error) {
	if _, err := s.messages.MarkFailed(ctx, id, fmt.Sprintf("enqueue failed: %v", cause)); err != nil {
		s.logger.Error(err, "failed to settle stranded message", "message_id", id.String())
	}
}

// assembleContext merges tenant and customer fields under the event's
// own context fields; the event emitter knows job-specific values
// (schedule, ETA, totals) better than we do.
func (s *Service) assembleContext(ctx context.Context, event *model.TriggerEvent, customer *model.Customer) (render.Context, error) {
	tenant, err := s.tenants.Get(ctx, event.TenantID)
	if err != nil {
		return nil, err
	}

	renderCtx := render.Context{
		"customer_first_name": customer.FirstName,
		"customer_last_name":  customer.LastName,
		"company_name":        tenant.CompanyName,
		"company_phone":       tenant.CompanyPhone,
	}
	for name, value := range event.Context {
		renderCtx[name] = value
	}
	return renderCtx, nil
}

func renderWarning(body string, truncated bool) string {
	var parts []string
	if unresolved := render.UnresolvedPlaceholders(body); len(unresolved) > 0 {
		parts = append(parts, "unresolved placeholders: "+strings.Join(unresolved, ", "))
	}
	if truncated {
		parts = append(parts, fmt.Sprintf("body truncated to %d chars", model.MaxBodyLength))
	}
	return strings.Join(parts, "; ")
}

// ReminderFireTime computes when the external scheduler should fire
// the reminder trigger for a job: scheduled start minus the tenant's
// configured lead time.
func ReminderFireTime(scheduledAt time.Time, leadHours int) time.Time {
	return scheduledAt.Add(-time.Duration(leadHours) * time.Hour)
}

// SendManual creates an outbound message outside the dedup constraint.
// Manual sends are intentionally repeatable.
func (s *Service) SendManual(ctx context.Context, tenantID, customerID uuid.UUID, body string) (*model.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewBadRequest("message body must not be empty", nil)
	}

	customer, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer.TenantID != tenantID {
		return nil, apperrors.NewNotFound("customer", nil)
	}

	body, truncated := render.Truncate(body, model.MaxBodyLength)

	msg := &model.Message{
		TenantID:    tenantID,
		CustomerID:  customerID,
		TriggerType: model.TriggerManual,
		Direction:   model.DirectionOutbound,
		Body:        body,
		Status:      model.MessageStatusQueued,
	}
	if truncated {
		warning := fmt.Sprintf("body truncated to %d chars", model.MaxBodyLength)
		msg.RenderWarning = &warning
		s.metrics.RenderWarnings.Inc()
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.dispatcher.Enqueue(ctx, msg.ID); err != nil {
		s.logger.Error(err, "failed to enqueue manual message", "message_id", msg.ID.String())
		s.failStranded(ctx, msg.ID, err)
		return nil, err
	}

	s.metrics.TriggerOutcomes.WithLabelValues(string(model.TriggerManual), string(model.OutcomeSent)).Inc()
	return msg, nil
}

// HandleInbound records a reply relayed by the carrier webhook.
// Inbound messages never produce automated replies except the opt-out
// confirmation for STOP.
func (s *Service) HandleInbound(ctx context.Context, inbound *model.InboundMessage) error {
	body, _ := render.Truncate(inbound.Body, model.MaxBodyLength)

	msg := &model.Message{
		TenantID:    inbound.TenantID,
		CustomerID:  inbound.CustomerID,
		TriggerType: model.TriggerReply,
		Direction:   model.DirectionInbound,
		Body:        body,
		Status:      model.MessageStatusReceived,
	}
	if inbound.ProviderRef != "" {
		msg.ProviderRef = &inbound.ProviderRef
	}
	if !inbound.ReceivedAt.IsZero() {
		msg.CreatedAt = inbound.ReceivedAt
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		return err
	}

	if isOptOut(inbound.Body) {
		return s.processOptOut(ctx, inbound.TenantID, inbound.CustomerID)
	}
	return nil
}

func (s *Service) processOptOut(ctx context.Context, tenantID, customerID uuid.UUID) error {
	if err := s.customers.SetOptedOut(ctx, customerID, true); err != nil {
		return err
	}

	snapshot, err := s.settings.Snapshot(ctx, tenantID)
	if err != nil {
		return err
	}
	optOutBody := snapshot.OptOutBody
	if optOutBody == "" {
		optOutBody = model.DefaultOptOutBody
	}

	// The confirmation goes out as a manual send: compliance requires
	// it even though the customer just opted out.
	if _, err := s.SendManual(ctx, tenantID, customerID, optOutBody); err != nil {
		return fmt.Errorf("failed to send opt-out confirmation: %w", err)
	}
	return nil
}

func isOptOut(body string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(body))
	return normalized == "STOP" || normalized == "UNSUBSCRIBE" || normalized == "STOPALL"
}
