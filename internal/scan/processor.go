package scan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"passage/internal/audit"
	"passage/internal/notify"
	scanmetrics "passage/internal/scan/metrics"
	"passage/internal/visit/models"
	"passage/internal/visit/store"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	"passage/pkg/requestcontext"
)

// DefaultRetries bounds transition retries after a storage-level write
// conflict before the officer is told to scan again.
const DefaultRetries = 3

var tracer = otel.Tracer("passage/internal/scan")

// BanChecker is the defensive re-check at scan time. Bans created after the
// visit was issued must still block admission.
type BanChecker interface {
	CheckPhones(ctx context.Context, buildingID id.BuildingID, hostID id.HostID, phones []string) (string, bool, error)
}

// AuditEmitter records scans, including denials.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}

// NotifyQueue hands host notifications to the delivery worker.
type NotifyQueue interface {
	Enqueue(ctx context.Context, n notify.Notification)
}

// Processor validates a presented code and commits the matching transition.
// It owns no state; every scan is one read-validate-write against the visit
// store under its per-visit lock.
type Processor struct {
	visits   store.Store
	bans     BanChecker
	logger   *slog.Logger
	auditor  AuditEmitter
	notifier NotifyQueue
	metrics  *scanmetrics.Metrics
	retries  int
}

type Option func(p *Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

func WithAuditEmitter(auditor AuditEmitter) Option {
	return func(p *Processor) { p.auditor = auditor }
}

func WithNotifyQueue(notifier NotifyQueue) Option {
	return func(p *Processor) { p.notifier = notifier }
}

func WithMetrics(m *scanmetrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func WithRetries(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.retries = n
		}
	}
}

// New constructs a Processor.
func New(visits store.Store, bans BanChecker, opts ...Option) *Processor {
	p := &Processor{
		visits:  visits,
		bans:    bans,
		logger:  slog.Default(),
		retries: DefaultRetries,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// denial aborts a transition inside the store lock and carries the outcome
// out of Execute without writing anything.
type denial struct {
	outcome Outcome
}

func (d *denial) Error() string { return string(d.outcome) }

// ProcessScan runs the scan algorithm. Rejections come back as Results;
// the returned error is reserved for infrastructure failures, which are
// fatal to this request only.
func (p *Processor) ProcessScan(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)
	if req.Gate != "" {
		ctx = requestcontext.WithGate(ctx, req.Gate)
	}

	ctx, span := tracer.Start(ctx, "ProcessScan",
		trace.WithAttributes(
			attribute.String("scan.kind", string(req.Kind)),
			attribute.String("scan.gate", req.Gate),
		))
	defer span.End()

	if req.Kind == "" {
		req.Kind = KindAuto
	}

	result, err := p.process(ctx, req, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("scan.outcome", string(result.Outcome)))
	if p.metrics != nil {
		p.metrics.ObserveScan(start, string(result.Outcome), string(req.Kind))
	}
	return result, nil
}

func (p *Processor) process(ctx context.Context, req Request, now time.Time) (*Result, error) {
	visit, err := p.visits.FindByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return p.deny(ctx, req, nil, OutcomeCodeNotFound, now), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve scanned code")
	}

	if visit.CodeExpired(now) {
		return p.deny(ctx, req, visit, OutcomeCodeExpired, now), nil
	}
	if visit.Status.Terminal() {
		return p.deny(ctx, req, visit, OutcomeNotActionable, now), nil
	}
	if _, rejected := direction(visit, req.Kind); rejected != "" {
		// Idempotent duplicates are informational, not denials.
		if rejected.Idempotent() {
			return p.result(rejected, visit, now), nil
		}
		return p.deny(ctx, req, visit, rejected, now), nil
	}

	// Defensive re-check: bans created since the invitation still block
	// physical entry.
	attachments, err := p.visits.Attachments(ctx, visit.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load visit attachments")
	}
	phones := make([]string, 0, len(attachments))
	for _, a := range attachments {
		phones = append(phones, a.Phone)
	}
	if _, banned, err := p.bans.CheckPhones(ctx, visit.BuildingID, visit.HostID, phones); err != nil {
		return nil, err
	} else if banned {
		return p.deny(ctx, req, visit, OutcomeVisitorBanned, now), nil
	}

	return p.transition(ctx, req, visit.ID, now)
}

// transition applies the state change under the store's per-visit lock,
// re-deriving the direction from the locked state so a concurrent scan that
// already committed turns this one into its idempotent response.
func (p *Processor) transition(ctx context.Context, req Request, visitID id.VisitID, now time.Time) (*Result, error) {
	var committed Kind

	validate := func(v *models.Visit, _ []*models.VisitorAttachment) error {
		if v.CodeExpired(now) {
			return &denial{outcome: OutcomeCodeExpired}
		}
		if v.Status.Terminal() {
			return &denial{outcome: OutcomeNotActionable}
		}
		dir, rejected := direction(v, req.Kind)
		if rejected != "" {
			return &denial{outcome: rejected}
		}
		committed = dir
		return nil
	}
	mutate := func(v *models.Visit, attachments []*models.VisitorAttachment) {
		switch committed {
		case KindEntry:
			v.ApplyEntry(now)
			for _, a := range attachments {
				a.MarkEntered(now)
			}
		case KindExit:
			v.ApplyExit(now)
			for _, a := range attachments {
				a.MarkExited(now)
			}
		}
	}

	var (
		visit *models.Visit
		err   error
	)
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 && p.metrics != nil {
			p.metrics.ScanRetries.Inc()
		}
		visit, err = p.visits.Execute(ctx, visitID, validate, mutate)
		if !errors.Is(err, store.ErrConcurrentModification) {
			break
		}
	}

	var d *denial
	switch {
	case err == nil:
	case errors.As(err, &d):
		if d.outcome.Idempotent() {
			snapshot, ferr := p.visits.FindByID(ctx, visitID)
			if ferr != nil {
				return nil, dErrors.Wrap(ferr, dErrors.CodeInternal, "failed to reload visit")
			}
			return p.result(d.outcome, snapshot, now), nil
		}
		return p.deny(ctx, req, nil, d.outcome, now), nil
	case errors.Is(err, store.ErrConcurrentModification):
		p.logger.WarnContext(ctx, "scan transition retries exhausted",
			"visit_id", visitID,
			"gate", req.Gate,
		)
		return p.result(OutcomeTryAgain, nil, now), nil
	case errors.Is(err, store.ErrNotFound):
		return p.deny(ctx, req, nil, OutcomeCodeNotFound, now), nil
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit scan transition")
	}

	outcome := OutcomeAdmitted
	action := audit.ActionEntryRecorded
	kind := notify.KindEntryRecorded
	msg := "visitor entered: " + visit.Title
	if committed == KindExit {
		outcome = OutcomeReleased
		action = audit.ActionExitRecorded
		kind = notify.KindExitRecorded
		msg = "visitor exited: " + visit.Title
	}

	// Post-commit side effects are fire-and-forget; their failure never
	// unwinds the transition.
	p.emit(ctx, audit.Event{
		Category:   audit.CategoryScan,
		Action:     action,
		ActorID:    req.actorID(),
		VisitID:    &visit.ID,
		BuildingID: &visit.BuildingID,
		Gate:       req.Gate,
		Detail:     statusDetail(visit, req),
	})
	p.enqueue(ctx, notify.Notification{
		Kind:       kind,
		VisitID:    visit.ID,
		HostID:     visit.HostID,
		BuildingID: visit.BuildingID,
		Gate:       req.Gate,
		Message:    msg,
		OccurredAt: now,
	})

	return p.result(outcome, visit, now), nil
}

// direction resolves the transition for the requested kind against the
// visit's current flags. A non-empty second return is the rejection.
func direction(v *models.Visit, kind Kind) (Kind, Outcome) {
	switch kind {
	case KindAuto:
		switch {
		case !v.Entry:
			return KindEntry, ""
		case !v.Exit:
			return KindExit, ""
		default:
			return "", OutcomeAlreadyCompleted
		}
	case KindEntry:
		if v.Entry {
			return "", OutcomeAlreadyEntered
		}
		return KindEntry, ""
	case KindExit:
		switch {
		case !v.Entry:
			return "", OutcomeExitWithoutEntry
		case v.Exit:
			return "", OutcomeAlreadyCompleted
		default:
			return KindExit, ""
		}
	}
	return "", OutcomeNotActionable
}

// deny builds a rejection result and logs it. Denied attempts are security
// events; an officer overriding one leaves a trail either way.
func (p *Processor) deny(ctx context.Context, req Request, visit *models.Visit, outcome Outcome, now time.Time) *Result {
	event := audit.Event{
		Category: audit.CategorySecurity,
		Action:   audit.ActionScanDenied,
		ActorID:  req.actorID(),
		Gate:     req.Gate,
		Detail: map[string]string{
			"outcome":   string(outcome),
			"scan_kind": string(req.Kind),
		},
	}
	if visit != nil {
		event.VisitID = &visit.ID
		event.BuildingID = &visit.BuildingID
	}
	p.emit(ctx, event)

	if outcome == OutcomeVisitorBanned && visit != nil {
		p.enqueue(ctx, notify.Notification{
			Kind:       notify.KindScanDenied,
			VisitID:    visit.ID,
			HostID:     visit.HostID,
			BuildingID: visit.BuildingID,
			Gate:       req.Gate,
			Message:    "a banned visitor attempted entry: " + visit.Title,
			OccurredAt: now,
		})
	}
	return p.result(outcome, visit, now)
}

func (p *Processor) result(outcome Outcome, visit *models.Visit, now time.Time) *Result {
	return &Result{
		Success:   outcome.Transitioned() || outcome.Idempotent(),
		Outcome:   outcome,
		Action:    resultingAction(outcome),
		Message:   message(outcome),
		Visit:     visit,
		ScannedAt: now,
	}
}

func statusDetail(v *models.Visit, req Request) map[string]string {
	detail := map[string]string{
		"status":    string(v.Status),
		"scan_kind": string(req.Kind),
	}
	if req.LocationHint != "" {
		detail["location"] = req.LocationHint
	}
	return detail
}

func (p *Processor) emit(ctx context.Context, event audit.Event) {
	if p.auditor != nil {
		p.auditor.Emit(ctx, event)
	}
}

func (p *Processor) enqueue(ctx context.Context, n notify.Notification) {
	if p.notifier != nil {
		p.notifier.Enqueue(ctx, n)
	}
}
