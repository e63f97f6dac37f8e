// Package service contains the call fan-out and fan-in logic: the
// Dispatcher starts one outbound call per shop, the Aggregator folds
// webhook lifecycle events back into call records and decides when the
// session is ready for report synthesis.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"garagecall_backend/internal/calls/repository"
	"garagecall_backend/internal/calls/safety"
	"garagecall_backend/internal/events"
	sessiondomain "garagecall_backend/internal/sessions/domain"
	"garagecall_backend/internal/voice"
	"garagecall_backend/platform/logger"
)

// maxConcurrentDials bounds how many calls are started at once per session.
const maxConcurrentDials = 4

// Dialer starts a single outbound call and returns the external call id.
type Dialer interface {
	StartCall(ctx context.Context, req voice.CallRequest) (string, error)
}

// DispatchOutcome is the per-shop result of a dispatch round.
type DispatchOutcome struct {
	ShopID  string
	Dialed  string
	Started bool
	Err     error
}

// Dispatcher fans a session out into one outbound call per shop.
type Dispatcher struct {
	gate     *safety.Gate
	callRepo repository.CallRepository
	dialer   Dialer
	bus      events.Bus
	log      *logger.Logger
	disabled bool
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(gate *safety.Gate, callRepo repository.CallRepository, dialer Dialer, bus events.Bus, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		gate:     gate,
		callRepo: callRepo,
		dialer:   dialer,
		bus:      bus,
		log:      log,
	}
}

// SetOutboundDisabled is the global kill switch. A disabled dispatcher
// places no calls and records nothing; the session still reaches a
// terminal state through completion evaluation with zero calls.
func (d *Dispatcher) SetOutboundDisabled(disabled bool) {
	d.disabled = disabled
}

// Dispatch starts one call per shop in the session. Each shop is handled
// independently: a failure for one shop records a FAILED call for that shop
// and never blocks the others. The returned slice has one outcome per shop
// in session order.
func (d *Dispatcher) Dispatch(ctx context.Context, session *sessiondomain.Session) []DispatchOutcome {
	if d.disabled {
		d.log.Warn("outbound calling disabled, skipping dispatch",
			"session_id", session.ID.String(), "shops", len(session.Shops))
		return nil
	}

	outcomes := make([]DispatchOutcome, len(session.Shops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDials)
	for i, shop := range session.Shops {
		g.Go(func() error {
			outcomes[i] = d.dispatchOne(gctx, session, shop)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; faults are per-shop outcomes

	for _, o := range outcomes {
		d.publishDispatched(ctx, session.ID, o)
	}
	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, session *sessiondomain.Session, shop sessiondomain.Shop) DispatchOutcome {
	out := DispatchOutcome{ShopID: shop.ID}

	dialed, err := d.gate.Resolve(shop.Phone)
	if err != nil || dialed == "" {
		if err == nil {
			err = fmt.Errorf("no dialable destination for shop %s", shop.ID)
		}
		out.Err = err
		d.recordFailure(ctx, session.ID, shop, "destination rejected by safety gate: "+err.Error())
		return out
	}
	out.Dialed = dialed

	created, err := d.callRepo.Create(ctx, repository.CreateCallParams{
		SessionID:    session.ID,
		ShopID:       shop.ID,
		ShopName:     shop.Name,
		DialedNumber: dialed,
	})
	if err != nil {
		out.Err = err
		d.log.DatabaseError("calls.create", err)
		return out
	}
	if !created {
		// Re-dispatch for this shop: a record already exists, leave it be.
		d.log.CallEvent("dispatch.skipped", session.ID.String(), shop.ID, "existing")
		out.Started = true
		return out
	}

	var vehicle sessiondomain.VehicleInfo
	if session.Vehicle != nil {
		vehicle = *session.Vehicle
	}
	var damage sessiondomain.DamageSummary
	if session.DamageSummary != nil {
		damage = *session.DamageSummary
	}

	externalID, err := d.dialer.StartCall(ctx, voice.CallRequest{
		Number:    dialed,
		Assistant: voice.BuildAssistant(shop, vehicle, damage),
		Metadata: map[string]string{
			"sessionId": session.ID.String(),
			"shopId":    shop.ID,
		},
	})
	if err != nil {
		out.Err = err
		d.recordFailure(ctx, session.ID, shop, "call start failed: "+err.Error())
		return out
	}

	if err := d.callRepo.MarkInProgress(ctx, session.ID, shop.ID, externalID); err != nil {
		// The platform accepted the call; the webhook path can still
		// correlate by metadata, so log and keep going.
		d.log.DatabaseError("calls.mark_in_progress", err)
	}

	d.log.CallEvent("dispatch.started", session.ID.String(), shop.ID, externalID)
	out.Started = true
	return out
}

func (d *Dispatcher) recordFailure(ctx context.Context, sessionID uuid.UUID, shop sessiondomain.Shop, reason string) {
	if _, err := d.callRepo.Create(ctx, repository.CreateCallParams{
		SessionID: sessionID,
		ShopID:    shop.ID,
		ShopName:  shop.Name,
	}); err != nil {
		d.log.DatabaseError("calls.create", err)
		return
	}
	if _, err := d.callRepo.MarkFailed(ctx, sessionID, shop.ID, reason); err != nil {
		d.log.DatabaseError("calls.mark_failed", err)
	}
}

func (d *Dispatcher) publishDispatched(ctx context.Context, sessionID uuid.UUID, o DispatchOutcome) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, events.CallDispatched{
		BaseEvent: events.NewBaseEvent(),
		SessionID: sessionID,
		ShopID:    o.ShopID,
		Dialed:    o.Dialed,
		Succeeded: o.Started,
	})
}
