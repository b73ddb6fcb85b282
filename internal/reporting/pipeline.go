package reporting

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
)

// Stage names the step a submission is in. Used in logs.
type Stage string

const (
	StageValidating          Stage = "validating"
	StageResolvingCorridor   Stage = "resolving_corridor"
	StageCheckingIdempotency Stage = "checking_idempotency"
	StagePersisting          Stage = "persisting"
	StageResolvingAudience   Stage = "resolving_audience"
	StageDispatching         Stage = "dispatching"
	StageDone                Stage = "done"
)

// Result is what a successful submission returns.
type Result struct {
	Report    models.Report           `json:"report"`
	Duplicate bool                    `json:"duplicate"`
	Outcome   *models.DeliveryOutcome `json:"delivery,omitempty"`
}

// Deps are the collaborators of a Pipeline. Audience, Dispatcher, Regulators
// and Broadcast are optional; a nil value skips that notification path.
type Deps struct {
	Registry   *Registry
	Store      ReportStore
	Corridors  CorridorLookup
	Audience   AudienceResolver
	Dispatcher Dispatcher
	Regulators Announcer
	Broadcast  Announcer
	Logger     *logging.Logger
}

// Pipeline turns raw submissions into persisted reports and notifies
// the people who need to know.
type Pipeline struct {
	registry   *Registry
	store      ReportStore
	corridors  CorridorLookup
	audience   AudienceResolver
	dispatcher Dispatcher
	regulators Announcer
	broadcast  Announcer
	logger     *logging.Logger
}

func NewPipeline(d Deps) *Pipeline {
	if d.Registry == nil {
		d.Registry = NewRegistry()
	}
	return &Pipeline{
		registry:   d.Registry,
		store:      d.Store,
		corridors:  d.Corridors,
		audience:   d.Audience,
		dispatcher: d.Dispatcher,
		regulators: d.Regulators,
		broadcast:  d.Broadcast,
		logger:     d.Logger,
	}
}

// Submit validates, deduplicates and persists a report, then notifies on a
// best-effort basis. userID, when positive, is the authenticated emitter and
// overrides whatever emitter the payload names.
func (p *Pipeline) Submit(ctx context.Context, kind string, payload Payload, userID int64) (Result, error) {
	log := p.logger.WithField("kind", kind)

	// Validating
	report, err := p.registry.Create(kind, withEmitter(payload, kind, userID))
	if err != nil {
		log.WithField("stage", StageValidating).Infof("Report rejected: %v", err)
		return Result{}, err
	}
	log = log.WithField("emitter", report.EmitterUserID)
	if report.ExternalID != nil {
		log = log.WithField("external_id", *report.ExternalID)
	}

	// ResolvingCorridor
	if report.Kind.NeedsCorridor() && report.AffectedCorridorID == nil {
		corridor, ok, err := p.corridors.GetAssignedCorridor(ctx, report.EmitterUserID)
		if err != nil {
			log.WithField("stage", StageResolvingCorridor).Errorf("Corridor lookup failed: %v", err)
			return Result{}, &StorageError{Op: "get assigned corridor", Err: err}
		}
		if !ok {
			log.WithField("stage", StageResolvingCorridor).Info("Emitter has no assigned corridor")
			return Result{}, fmt.Errorf("user %d: %w", report.EmitterUserID, ErrNoCorridorAssigned)
		}
		report.AffectedCorridorID = &corridor
	}

	// CheckingIdempotency
	if report.ExternalID != nil {
		existing, err := p.store.FindByExternalID(ctx, *report.ExternalID)
		if err != nil {
			log.WithField("stage", StageCheckingIdempotency).Errorf("Idempotency lookup failed: %v", err)
			return Result{}, &StorageError{Op: "find by external id", Err: err}
		}
		if existing != nil {
			log.WithFields(logrus.Fields{"report_id": existing.ID, "stage": StageDone}).Info("Duplicate submission, returning original report")
			return Result{Report: *existing, Duplicate: true}, nil
		}
	}

	// Persisting
	reference := report.Reference
	saved, err := p.store.Insert(ctx, report)
	if err != nil {
		if errors.Is(err, ErrDuplicateExternalID) && report.ExternalID != nil {
			return p.concurrentDuplicate(ctx, log, *report.ExternalID)
		}
		log.WithField("stage", StagePersisting).Errorf("Insert failed: %v", err)
		return Result{}, &StorageError{Op: "insert report", Err: err}
	}
	saved.Reference = reference
	log = log.WithField("report_id", saved.ID)
	log.Info("Report persisted")

	// The report is stored; a caller going away must not cut the fan-out short.
	outcome := p.notify(context.WithoutCancel(ctx), log, saved)
	log.WithField("stage", StageDone).Info("Submission complete")
	return Result{Report: saved, Outcome: outcome}, nil
}

// concurrentDuplicate handles a lost insert race on the same external id.
func (p *Pipeline) concurrentDuplicate(ctx context.Context, log *logrus.Entry, externalID string) (Result, error) {
	existing, err := p.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return Result{}, &StorageError{Op: "refetch duplicate", Err: err}
	}
	if existing == nil {
		return Result{}, &StorageError{Op: "refetch duplicate", Err: ErrReportNotFound}
	}
	log.WithFields(logrus.Fields{"report_id": existing.ID, "stage": StageDone}).Info("Concurrent duplicate submission, returning original report")
	return Result{Report: *existing, Duplicate: true}, nil
}

// notify never fails the submission. Errors are logged and dropped.
func (p *Pipeline) notify(ctx context.Context, log *logrus.Entry, report models.Report) *models.DeliveryOutcome {
	switch report.Kind {
	case models.KindFailure:
		return p.fanOut(ctx, log, report)
	case models.KindDeviation, models.KindDelay:
		p.announce(ctx, log, p.regulators, "regulators", report)
	case models.KindOther:
		p.announce(ctx, log, p.broadcast, "broadcast", report)
	}
	return nil
}

func (p *Pipeline) fanOut(ctx context.Context, log *logrus.Entry, report models.Report) *models.DeliveryOutcome {
	if p.audience == nil || p.dispatcher == nil {
		log.Debug("No audience resolver configured, skipping fan-out")
		return nil
	}

	set, err := p.audience.Resolve(ctx, report, report.Reference)
	if err != nil {
		log.WithField("stage", StageResolvingAudience).Errorf("%v: %v", ErrAudienceResolution, err)
		return nil
	}

	outcome := p.dispatcher.Dispatch(ctx, set, MessageFor(report))
	entry := log.WithFields(logrus.Fields{
		"stage":     StageDispatching,
		"attempted": outcome.Attempted,
		"succeeded": outcome.Succeeded,
		"failed":    outcome.Failed,
	})
	switch {
	case outcome.Attempted == 0:
		entry.Warn("Failure notification has no recipients")
	case outcome.Failed > 0:
		entry.Warnf("%v for %d of %d recipients", ErrDelivery, outcome.Failed, outcome.Attempted)
	default:
		entry.Info("Failure notification dispatched")
	}
	return &outcome
}

func (p *Pipeline) announce(ctx context.Context, log *logrus.Entry, a Announcer, channel string, report models.Report) {
	if a == nil {
		return
	}
	if err := a.Announce(ctx, report, MessageFor(report)); err != nil {
		log.WithField("channel", channel).Warnf("%v: %v", ErrDelivery, err)
		return
	}
	log.WithField("channel", channel).Debug("Report announced")
}

// Report fetches one report by id.
func (p *Pipeline) Report(ctx context.Context, id int64) (models.Report, error) {
	r, err := p.store.GetByID(ctx, id)
	if err != nil && !errors.Is(err, ErrReportNotFound) {
		return models.Report{}, &StorageError{Op: "get report", Err: err}
	}
	return r, err
}

// Latest returns the newest report of kind on corridorID, or ErrReportNotFound.
func (p *Pipeline) Latest(ctx context.Context, corridorID int64, kind models.ReportKind) (models.Report, error) {
	r, err := p.store.LatestByCorridorAndKind(ctx, corridorID, kind)
	if err != nil {
		return models.Report{}, &StorageError{Op: "latest by corridor", Err: err}
	}
	if r == nil {
		return models.Report{}, ErrReportNotFound
	}
	return *r, nil
}

// List returns the newest reports of kind.
func (p *Pipeline) List(ctx context.Context, kind models.ReportKind, limit int) ([]models.Report, error) {
	switch {
	case limit <= 0:
		limit = 50
	case limit > 200:
		limit = 200
	}
	reports, err := p.store.ListByKind(ctx, kind, limit)
	if err != nil {
		return nil, &StorageError{Op: "list reports", Err: err}
	}
	return reports, nil
}

// MessageFor renders the push notification for a report.
func MessageFor(r models.Report) models.Message {
	data := map[string]string{
		"kind":      string(r.Kind),
		"report_id": strconv.FormatInt(r.ID, 10),
	}
	switch r.Kind {
	case models.KindFailure:
		title := "⚠️ Failure Reported"
		if r.RequiresIntervention {
			title = "🚨 Failure Reported"
		}
		data["requires_intervention"] = strconv.FormatBool(r.RequiresIntervention)
		return models.Message{Title: title, Body: r.Description, Data: data}
	case models.KindDeviation:
		return models.Message{Title: "Deviation Reported", Body: r.Message, Data: data}
	case models.KindDelay:
		return models.Message{Title: "Delay Reported", Body: r.Message, Data: data}
	}
	title := "Mass Alert"
	if r.IsCritical {
		title = "🚨 Mass Alert"
	}
	return models.Message{Title: title, Body: r.Message, Data: data}
}

// withEmitter returns a copy of payload with the emitter field set to userID.
func withEmitter(payload Payload, kind string, userID int64) Payload {
	out := make(Payload, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	if userID <= 0 {
		return out
	}
	field := "emitter_id"
	if k, ok := models.ParseReportKind(kind); ok && (k == models.KindDeviation || k == models.KindDelay) {
		field = "conductor_id"
	}
	out[field] = userID
	return out
}
