package chat

import (
	"github.com/glesp/smart-auto-trader/internal/domain"
)

// CriteriaMerger folds extracted signals into the dialogue state. Merge is
// pure (the input state is never mutated) and idempotent: applying the same
// extraction twice produces the same state as applying it once.
type CriteriaMerger struct{}

// Merge returns a new state with the extraction applied, plus whether the
// turn added at least one new confirmed or rejected value. The off-topic
// flag, retriever suggestion and intent are not merged into criteria; they
// pass through for the policy stage.
func (CriteriaMerger) Merge(state *domain.DialogueState, e *ExtractionResult) (*domain.DialogueState, bool) {
	next := state.Clone()
	changed := false

	confirm := func(attr domain.Attribute, values []string) {
		for _, v := range values {
			if next.Confirm(attr, v) {
				changed = true
			}
		}
	}
	reject := func(attr domain.Attribute, values []string) {
		for _, v := range values {
			if next.Reject(attr, v) {
				changed = true
			}
		}
	}

	confirm(domain.AttrMake, e.PreferredMakes)
	confirm(domain.AttrModel, e.PreferredModels)
	confirm(domain.AttrFuelType, e.PreferredFuelTypes)
	confirm(domain.AttrVehicleType, e.PreferredVehicleTypes)
	confirm(domain.AttrTransmission, e.PreferredTransmission)
	confirm(domain.AttrFeature, e.DesiredFeatures)

	reject(domain.AttrMake, e.RejectedMakes)
	reject(domain.AttrModel, e.RejectedModels)
	reject(domain.AttrFuelType, e.RejectedFuelTypes)
	reject(domain.AttrVehicleType, e.RejectedVehicleTypes)
	reject(domain.AttrFeature, e.RejectedFeatures)

	widen := e.Intent == IntentWiden

	if mergeMinFloat(&next.MinPrice, e.MinPrice, widen) {
		changed = true
	}
	if mergeMaxFloat(&next.MaxPrice, e.MaxPrice, widen) {
		changed = true
	}
	if mergeMinInt(&next.MinYear, e.MinYear, widen) {
		changed = true
	}
	if mergeMaxInt(&next.MaxYear, e.MaxYear, widen) {
		changed = true
	}
	if mergeMaxInt(&next.MaxMileage, e.MaxMileage, widen) {
		changed = true
	}

	// A detected conflict stays on the state until the orchestrator surfaces
	// it; clearing it here would make reapplying the same extraction yield a
	// different state.
	resolveFloatConflict(next, e)
	resolveYearConflict(next, e)

	if e.Intent != "" {
		next.Topic.LastIntent = e.Intent
	}
	next.Topic.WantsMore = e.Intent == IntentShowMore

	return next, changed
}

// mergeMinFloat narrows a lower bound: the new minimum wins only when the
// old one is unset or the new one is stricter (higher). An explicit widen
// replaces outright.
func mergeMinFloat(current **float64, incoming *float64, widen bool) bool {
	if incoming == nil {
		return false
	}
	if *current != nil && !widen && *incoming <= **current {
		return false
	}
	if *current != nil && **current == *incoming {
		return false
	}
	v := *incoming
	*current = &v
	return true
}

func mergeMaxFloat(current **float64, incoming *float64, widen bool) bool {
	if incoming == nil {
		return false
	}
	if *current != nil && !widen && *incoming >= **current {
		return false
	}
	if *current != nil && **current == *incoming {
		return false
	}
	v := *incoming
	*current = &v
	return true
}

func mergeMinInt(current **int, incoming *int, widen bool) bool {
	if incoming == nil {
		return false
	}
	if *current != nil && !widen && *incoming <= **current {
		return false
	}
	if *current != nil && **current == *incoming {
		return false
	}
	v := *incoming
	*current = &v
	return true
}

func mergeMaxInt(current **int, incoming *int, widen bool) bool {
	if incoming == nil {
		return false
	}
	if *current != nil && !widen && *incoming >= **current {
		return false
	}
	if *current != nil && **current == *incoming {
		return false
	}
	v := *incoming
	*current = &v
	return true
}

// resolveFloatConflict repairs an impossible price range. The bound stated
// this turn is the newest and wins; the contradicted older bound is dropped
// and the conflict recorded so the composer can surface it. When a single
// utterance supplies both sides of an impossible range, the ceiling is kept:
// a budget limit is the more actionable half.
func resolveFloatConflict(state *domain.DialogueState, e *ExtractionResult) {
	if state.MinPrice == nil || state.MaxPrice == nil || *state.MinPrice <= *state.MaxPrice {
		return
	}
	dropMin := e.MaxPrice != nil
	if e.MinPrice != nil && e.MaxPrice == nil {
		dropMin = false
	}
	if dropMin {
		state.Topic.RangeConflict = &domain.RangeConflict{
			Field:        "price",
			DroppedBound: "min",
			DroppedValue: *state.MinPrice,
		}
		state.MinPrice = nil
		return
	}
	state.Topic.RangeConflict = &domain.RangeConflict{
		Field:        "price",
		DroppedBound: "max",
		DroppedValue: *state.MaxPrice,
	}
	state.MaxPrice = nil
}

func resolveYearConflict(state *domain.DialogueState, e *ExtractionResult) {
	if state.MinYear == nil || state.MaxYear == nil || *state.MinYear <= *state.MaxYear {
		return
	}
	dropMin := e.MaxYear != nil
	if e.MinYear != nil && e.MaxYear == nil {
		dropMin = false
	}
	if dropMin {
		state.Topic.RangeConflict = &domain.RangeConflict{
			Field:        "year",
			DroppedBound: "min",
			DroppedValue: float64(*state.MinYear),
		}
		state.MinYear = nil
		return
	}
	state.Topic.RangeConflict = &domain.RangeConflict{
		Field:        "year",
		DroppedBound: "max",
		DroppedValue: float64(*state.MaxYear),
	}
	state.MaxYear = nil
}
