package lifecycle

import (
	"fmt"
	"time"

	"bonus-tracker-api/internal/models"
)

// IllegalTransitionError names a status change not permitted by the
// transition table.
type IllegalTransitionError struct {
	From models.Status
	To   models.Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %q to %q", e.From, e.To)
}

// allowed is the transition table: pending -> earned -> received, with
// pending -> expired as the only other exit. received and expired are
// terminal.
var allowed = map[models.Status]map[models.Status]bool{
	models.StatusPending: {
		models.StatusEarned:  true,
		models.StatusExpired: true,
	},
	models.StatusEarned: {
		models.StatusReceived: true,
	},
}

// ApplyTransition returns a copy of the record moved to the target status, or
// an IllegalTransitionError when the transition table forbids the change.
// Applying a transition to a record already in the target status is a no-op,
// which keeps the expiration sweep idempotent under concurrent runs.
func ApplyTransition(rec models.BonusRecord, target models.Status, now time.Time) (models.BonusRecord, error) {
	if rec.Status == target {
		return rec, nil
	}
	if !allowed[rec.Status][target] {
		return rec, &IllegalTransitionError{From: rec.Status, To: target}
	}

	switch target {
	case models.StatusEarned:
		rec.RequirementsMet = true
	case models.StatusReceived:
		rec.RequirementsMet = true
		received := now
		rec.ReceivedDate = &received
	case models.StatusExpired:
		rec.RequirementsMet = false
	}
	rec.Status = target
	return rec, nil
}

// Override applies a manual status edit outside the transition table. It is
// an intentional escape hatch for corrections; callers are expected to audit
// its use. Invariants are normalized on the way through: received implies a
// received date and requirements met, expired and pending clear requirements.
func Override(rec models.BonusRecord, target models.Status, now time.Time) models.BonusRecord {
	switch target {
	case models.StatusEarned:
		rec.RequirementsMet = true
	case models.StatusReceived:
		rec.RequirementsMet = true
		if rec.ReceivedDate == nil {
			received := now
			rec.ReceivedDate = &received
		}
	case models.StatusExpired:
		rec.RequirementsMet = false
	case models.StatusPending:
		rec.RequirementsMet = false
		rec.ReceivedDate = nil
	}
	rec.Status = target
	return rec
}

// Sweep returns the pending records whose deadline has passed, each moved to
// expired. The input is not mutated; records already earned, received or
// expired are never revisited. Running the sweep again over its own output
// expires nothing further.
func Sweep(records []models.BonusRecord, now time.Time) []models.BonusRecord {
	var expired []models.BonusRecord
	for _, rec := range records {
		if rec.Status != models.StatusPending {
			continue
		}
		days, ok := DaysUntilDeadline(rec, now)
		if !ok || days >= 0 {
			continue
		}
		out, err := ApplyTransition(rec, models.StatusExpired, now)
		if err != nil {
			// pending -> expired is always in the table
			continue
		}
		expired = append(expired, out)
	}
	return expired
}
