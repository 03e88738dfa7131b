package cartrecovery

import (
	"time"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

// Decision is the outcome of evaluating one cart.
type Decision struct {
	Stage           models.RecoveryStage
	IncludeDiscount bool
}

// Due reports whether a message should be sent.
func (d Decision) Due() bool {
	return d.Stage != models.StageNone
}

// DecideStage picks the next stage from the attempt count. attempts must be in
// creation order. A converted attempt or three prior attempts end the sequence.
func DecideStage(settings models.AutomationSettings, abandonedAt time.Time, attempts []models.RecoveryAttempt, now time.Time) Decision {
	for _, a := range attempts {
		if a.Status == models.AttemptStatusConverted {
			return Decision{}
		}
	}
	elapsed := func(since time.Time, hours int) bool {
		return now.Sub(since) >= time.Duration(hours)*time.Hour
	}
	switch len(attempts) {
	case 0:
		if elapsed(abandonedAt, settings.InitialDelayHours) {
			return Decision{Stage: models.StageInitial}
		}
	case 1:
		if elapsed(attempts[0].SentAt, settings.FollowUpDelayHours) {
			return Decision{Stage: models.StageFollowUp}
		}
	case 2:
		if elapsed(attempts[1].SentAt, settings.FinalDelayHours) {
			return Decision{Stage: models.StageFinal, IncludeDiscount: settings.IncludeDiscountInFinal}
		}
	}
	return Decision{}
}
