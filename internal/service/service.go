package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"bonus-tracker-api/internal/cache"
	"bonus-tracker-api/internal/database"
	"bonus-tracker-api/internal/events"
	"bonus-tracker-api/internal/lifecycle"
	"bonus-tracker-api/internal/models"
	"bonus-tracker-api/internal/validation"
)

// Service provides business logic for the bonus tracker API. All
// time-dependent operations take an explicit now so callers (and tests) stay
// in control of the clock.
type Service struct {
	db       *database.DB
	cache    cache.Cache
	cacheTTL time.Duration
	events   *events.Manager
}

// Options holds optional service collaborators.
type Options struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	Events   *events.Manager
}

// NewService creates a new service instance without cache or event hooks.
func NewService(db *database.DB) *Service {
	return NewServiceWithOptions(db, Options{})
}

// NewServiceWithOptions creates a new service instance with custom options.
func NewServiceWithOptions(db *database.DB, opts Options) *Service {
	if opts.Events == nil {
		opts.Events = events.NewManager(false)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Service{
		db:       db,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		events:   opts.Events,
	}
}

// CreateBonus validates and persists a new bonus. Records always start
// pending with requirements not yet met.
func (s *Service) CreateBonus(ctx context.Context, req models.CreateBonusRequest, now time.Time) (models.BonusRecord, error) {
	if err := validation.ValidateCreateBonus(req); err != nil {
		return models.BonusRecord{}, err
	}

	isTaxable := true
	if req.IsTaxable != nil {
		isTaxable = *req.IsTaxable
	}

	rec := models.BonusRecord{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		Category:         req.Category,
		InstitutionName:  req.InstitutionName,
		CardName:         req.CardName,
		BonusAmount:      req.BonusAmount,
		BonusValueAmount: req.BonusValueAmount,
		Status:           models.StatusPending,
		RequirementsMet:  false,
		Deadline:         req.Deadline,
		SpendRequirement: req.SpendRequirement,
		CurrentSpend:     req.CurrentSpend,
		IsTaxable:        isTaxable,
		TaxableAmount:    req.TaxableAmount,
		CreatedAt:        now.UTC(),
	}

	if err := s.db.InsertBonus(rec); err != nil {
		return models.BonusRecord{}, err
	}

	s.events.PublishBonus(ctx, events.EventBonusCreated, rec)
	s.invalidateDashboard(ctx, rec.UserID, now)
	return rec, nil
}

// GetBonus returns one bonus with its time-dependent projections.
func (s *Service) GetBonus(ctx context.Context, id string, now time.Time) (models.BonusView, error) {
	rec, err := s.db.GetBonus(id)
	if err != nil {
		return models.BonusView{}, err
	}
	return buildView(rec, now), nil
}

// ListBonuses runs the deadline sweep for the user, then returns the
// refreshed records with projections.
func (s *Service) ListBonuses(ctx context.Context, userID string, now time.Time) (models.ListBonusesResponse, error) {
	if err := validation.ValidateUUID(userID, "user_id"); err != nil {
		return models.ListBonusesResponse{}, err
	}

	expired, err := s.SweepUser(ctx, userID, now)
	if err != nil {
		return models.ListBonusesResponse{}, err
	}

	records, err := s.db.ListBonuses(userID)
	if err != nil {
		return models.ListBonusesResponse{}, err
	}

	views := make([]models.BonusView, 0, len(records))
	for _, rec := range records {
		views = append(views, buildView(rec, now))
	}

	return models.ListBonusesResponse{
		UserID:  userID,
		Bonuses: views,
		Expired: expired,
	}, nil
}

// UpdateBonus applies field edits to an existing bonus. A status field in the
// request is the manual override path: it bypasses the transition table,
// normalizes the record's invariants, and is audited.
func (s *Service) UpdateBonus(ctx context.Context, id string, req models.UpdateBonusRequest, now time.Time) (models.BonusRecord, error) {
	if err := validation.ValidateUpdateBonus(req); err != nil {
		return models.BonusRecord{}, err
	}

	rec, err := s.db.GetBonus(id)
	if err != nil {
		return models.BonusRecord{}, err
	}

	if req.InstitutionName != nil {
		rec.InstitutionName = *req.InstitutionName
	}
	if req.CardName != nil {
		rec.CardName = *req.CardName
	}
	if req.BonusAmount != nil {
		rec.BonusAmount = *req.BonusAmount
	}
	if req.BonusValueAmount != nil {
		rec.BonusValueAmount = req.BonusValueAmount
	}
	if req.Deadline != nil {
		rec.Deadline = req.Deadline
	}
	if req.SpendRequirement != nil {
		rec.SpendRequirement = req.SpendRequirement
	}
	if req.CurrentSpend != nil {
		rec.CurrentSpend = req.CurrentSpend
	}
	if req.IsTaxable != nil {
		rec.IsTaxable = *req.IsTaxable
	}
	if req.TaxableAmount != nil {
		rec.TaxableAmount = req.TaxableAmount
	}
	if req.Form1099Received != nil {
		rec.Form1099Received = *req.Form1099Received
	}

	if req.Status != nil && *req.Status != rec.Status {
		from := rec.Status
		rec = lifecycle.Override(rec, *req.Status, now)
		log.Printf("[AUDIT] manual status override bonus=%s user=%s %s -> %s", rec.ID, rec.UserID, from, rec.Status)
		s.events.PublishTransition(ctx, events.EventBonusOverridden, rec, from, rec.Status)
	}

	if err := s.db.UpdateBonus(rec); err != nil {
		return models.BonusRecord{}, err
	}

	s.events.PublishBonus(ctx, events.EventBonusUpdated, rec)
	s.invalidateDashboard(ctx, rec.UserID, now)
	return rec, nil
}

// DeleteBonus removes a bonus at any status.
func (s *Service) DeleteBonus(ctx context.Context, id string) error {
	rec, err := s.db.GetBonus(id)
	if err != nil {
		return err
	}

	if err := s.db.DeleteBonus(id); err != nil {
		return err
	}

	s.events.PublishBonus(ctx, events.EventBonusDeleted, rec)
	s.invalidateDashboard(ctx, rec.UserID, time.Now().UTC())
	return nil
}

// Transition applies one FSM transition and persists it conditionally. A
// write that loses a race against a concurrent sweep or another tab reloads
// the record and retries once; a second conflict is surfaced to the caller.
func (s *Service) Transition(ctx context.Context, id string, target models.Status, now time.Time) (models.BonusRecord, error) {
	if err := validation.ValidateTransitionTarget(target); err != nil {
		return models.BonusRecord{}, err
	}

	rec, err := s.db.GetBonus(id)
	if err != nil {
		return models.BonusRecord{}, err
	}

	for attempt := 0; ; attempt++ {
		next, err := lifecycle.ApplyTransition(rec, target, now)
		if err != nil {
			return models.BonusRecord{}, err
		}
		if next.Status == rec.Status {
			// Already in the target status; nothing to persist.
			return rec, nil
		}

		err = s.db.UpdateBonusStatus(id, rec.Status, next.Status, next.RequirementsMet, next.ReceivedDate)
		if err == nil {
			s.events.PublishTransition(ctx, events.EventBonusTransitioned, next, rec.Status, next.Status)
			s.invalidateDashboard(ctx, next.UserID, now)
			return next, nil
		}
		if err != database.ErrConflict || attempt >= 1 {
			return models.BonusRecord{}, err
		}

		rec, err = s.db.GetBonus(id)
		if err != nil {
			return models.BonusRecord{}, err
		}
	}
}

// SweepUser expires every overdue pending bonus for one user and returns how
// many records were expired. Conditional writes keep the sweep safe under
// concurrency: a record that was concurrently earned simply loses its
// pending precondition and is skipped until the next load.
func (s *Service) SweepUser(ctx context.Context, userID string, now time.Time) (int, error) {
	records, err := s.db.ListBonuses(userID)
	if err != nil {
		return 0, err
	}

	swept := lifecycle.Sweep(records, now)
	expired := 0
	for _, rec := range swept {
		err := s.db.UpdateBonusStatus(rec.ID, models.StatusPending, models.StatusExpired, rec.RequirementsMet, rec.ReceivedDate)
		switch err {
		case nil:
			expired++
			s.events.PublishTransition(ctx, events.EventBonusTransitioned, rec, models.StatusPending, models.StatusExpired)
		case database.ErrConflict, database.ErrNotFound:
			// Lost the race; the next load re-evaluates this record.
			log.Printf("[INFO] sweep skipped bonus=%s: %v", rec.ID, err)
		default:
			return expired, err
		}
	}

	if expired > 0 {
		s.events.PublishSweepCompleted(ctx, userID, expired)
		s.invalidateDashboard(ctx, userID, now)
	}
	return expired, nil
}

// SweepAll runs the deadline sweep for every user with bonuses. Used by the
// background sweeper.
func (s *Service) SweepAll(ctx context.Context, now time.Time) (int, error) {
	userIDs, err := s.db.ListUserIDs()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, userID := range userIDs {
		expired, err := s.SweepUser(ctx, userID, now)
		if err != nil {
			return total, fmt.Errorf("sweep for user %s: %w", userID, err)
		}
		total += expired
	}
	return total, nil
}

// Dashboard returns the aggregated statistics for one user, swept and cached.
// Every figure is a pure function of the record snapshot and the calendar
// date, so the cache key carries the date.
func (s *Service) Dashboard(ctx context.Context, userID string, now time.Time) (models.DashboardResponse, error) {
	if err := validation.ValidateUUID(userID, "user_id"); err != nil {
		return models.DashboardResponse{}, err
	}

	key := dashboardKey(userID, now)
	if s.cache != nil {
		var cached models.DashboardResponse
		if err := cache.GetJSON(ctx, s.cache, key, &cached); err == nil {
			return cached, nil
		}
	}

	if _, err := s.SweepUser(ctx, userID, now); err != nil {
		return models.DashboardResponse{}, err
	}

	records, err := s.db.ListBonuses(userID)
	if err != nil {
		return models.DashboardResponse{}, err
	}

	alerts := lifecycle.UrgentAlerts(records, now)
	alertViews := make([]models.BonusView, 0, len(alerts))
	for _, rec := range alerts {
		alertViews = append(alertViews, buildView(rec, now))
	}

	resp := models.DashboardResponse{
		UserID:             userID,
		CountsByStatus:     lifecycle.CountsByStatus(records),
		TotalReceivedValue: lifecycle.TotalReceivedValue(records),
		UrgentAlerts:       alertViews,
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, resp, s.cacheTTL); err != nil {
			log.Printf("[ERROR] cache dashboard for user %s: %v", userID, err)
		}
	}

	return resp, nil
}

// TaxSummary returns the tax split over bonuses received in the given year.
func (s *Service) TaxSummary(ctx context.Context, userID string, taxYear int) (models.TaxSummaryResponse, error) {
	if err := validation.ValidateUUID(userID, "user_id"); err != nil {
		return models.TaxSummaryResponse{}, err
	}
	if err := validation.ValidateTaxYear(taxYear); err != nil {
		return models.TaxSummaryResponse{}, err
	}

	records, err := s.db.ListBonuses(userID)
	if err != nil {
		return models.TaxSummaryResponse{}, err
	}

	report := lifecycle.TaxSummary(records, taxYear)
	return models.TaxSummaryResponse{
		UserID:           userID,
		TaxYear:          taxYear,
		TaxableTotal:     report.TaxableTotal,
		NonTaxableTotal:  report.NonTaxableTotal,
		Form1099Pending:  report.Form1099Pending,
		Form1099Received: report.Form1099Received,
	}, nil
}

func (s *Service) invalidateDashboard(ctx context.Context, userID string, now time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, dashboardKey(userID, now)); err != nil {
		log.Printf("[ERROR] invalidate dashboard cache for user %s: %v", userID, err)
	}
}

func dashboardKey(userID string, now time.Time) string {
	return "dashboard:" + userID + ":" + now.UTC().Format("2006-01-02")
}

func buildView(rec models.BonusRecord, now time.Time) models.BonusView {
	view := models.BonusView{
		BonusRecord: rec,
		Urgency:     string(lifecycle.DeadlineUrgency(rec, now)),
	}
	if days, ok := lifecycle.DaysUntilDeadline(rec, now); ok {
		d := days
		view.DaysUntilDeadline = &d
	}
	if p := lifecycle.SpendProgress(rec); p != nil {
		view.SpendProgress = &models.SpendProgressView{
			Current:    p.Current,
			Required:   p.Required,
			Percentage: p.Percentage,
		}
	}
	return view
}
