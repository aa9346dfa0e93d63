package progression

import (
	"context"
	"time"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// Evaluator runs one achievement pass against a stats snapshot.
type Evaluator struct {
	store   domain.AchievementStore
	catalog *Catalog
}

// NewEvaluator creates an evaluator over an injected catalog.
func NewEvaluator(store domain.AchievementStore, catalog *Catalog) *Evaluator {
	return &Evaluator{store: store, catalog: catalog}
}

// Catalog returns the evaluator's catalog.
func (e *Evaluator) Catalog() *Catalog { return e.catalog }

// Evaluate checks every locked achievement against snap, in catalog order,
// and unlocks those whose predicate holds. Only inserts that created a row
// are returned. Rewards are not applied here and the pass never recurses.
//
// On a store failure the unlocks made so far are returned with the error;
// they are durable and counted by the next pass.
func (e *Evaluator) Evaluate(ctx context.Context, user domain.UserID, snap domain.StatsSnapshot, at time.Time) ([]domain.AchievementDef, error) {
	existing, err := e.store.ListUnlocked(ctx, user)
	if err != nil {
		return nil, err
	}
	unlocked := make(map[string]bool, len(existing))
	for _, u := range existing {
		unlocked[u.AchievementID] = true
	}

	var newly []domain.AchievementDef
	for _, def := range e.catalog.defs {
		if unlocked[def.ID] || !def.Predicate.Eval(snap) {
			continue
		}
		isNew, err := e.store.Unlock(ctx, domain.UnlockedAchievement{
			UserID:        user,
			AchievementID: def.ID,
			XPReward:      def.XPReward,
			UnlockedAt:    at,
		})
		if err != nil {
			return newly, err
		}
		if isNew {
			newly = append(newly, def)
		}
	}
	return newly, nil
}

// AchievementStatus is a catalog entry joined with a user's unlock state.
type AchievementStatus struct {
	domain.AchievementDef
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Statuses joins the catalog with the user's unlocks. Unlocks for IDs no
// longer in the catalog are appended after the catalog entries.
func (e *Evaluator) Statuses(ctx context.Context, user domain.UserID) ([]AchievementStatus, error) {
	existing, err := e.store.ListUnlocked(ctx, user)
	if err != nil {
		return nil, err
	}
	at := make(map[string]time.Time, len(existing))
	for _, u := range existing {
		at[u.AchievementID] = u.UnlockedAt
	}

	out := make([]AchievementStatus, 0, len(e.catalog.defs))
	for _, def := range e.catalog.defs {
		s := AchievementStatus{AchievementDef: def}
		if t, ok := at[def.ID]; ok {
			s.Unlocked = true
			s.UnlockedAt = &t
			delete(at, def.ID)
		}
		out = append(out, s)
	}
	for _, u := range existing {
		if _, retired := at[u.AchievementID]; !retired {
			continue
		}
		t := u.UnlockedAt
		out = append(out, AchievementStatus{
			AchievementDef: domain.AchievementDef{ID: u.AchievementID, Title: u.AchievementID, XPReward: u.XPReward},
			Unlocked:       true,
			UnlockedAt:     &t,
		})
	}
	return out, nil
}
