package chat

import (
	"reflect"
	"testing"

	"github.com/glesp/smart-auto-trader/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestMergeConfirmAndReject(t *testing.T) {
	merger := CriteriaMerger{}
	state := domain.NewDialogueState()

	next, changed := merger.Merge(state, &ExtractionResult{
		PreferredMakes:       []string{"BMW", "Audi"},
		RejectedVehicleTypes: []string{"Van"},
	})

	if !changed {
		t.Error("new values should report a change")
	}
	if !next.Confirmed[domain.AttrMake].Has("BMW") || !next.Confirmed[domain.AttrMake].Has("Audi") {
		t.Errorf("makes not confirmed: %v", next.Confirmed[domain.AttrMake])
	}
	if !next.Rejected[domain.AttrVehicleType].Has("Van") {
		t.Error("vehicle type not rejected")
	}

	// Input state untouched.
	if len(state.Confirmed[domain.AttrMake]) != 0 {
		t.Error("Merge mutated its input state")
	}
}

func TestMergeRejectionOverridesEarlierConfirmation(t *testing.T) {
	merger := CriteriaMerger{}
	state := domain.NewDialogueState()
	state.Confirm(domain.AttrFuelType, "Diesel")

	next, changed := merger.Merge(state, &ExtractionResult{
		RejectedFuelTypes: []string{"Diesel"},
	})

	if !changed {
		t.Error("flipping a value should report a change")
	}
	if next.Confirmed[domain.AttrFuelType].Has("Diesel") {
		t.Error("rejected value still confirmed")
	}
	if !next.Rejected[domain.AttrFuelType].Has("Diesel") {
		t.Error("value not moved to rejected")
	}
}

func TestMergeBoundsOnlyNarrow(t *testing.T) {
	merger := CriteriaMerger{}
	state := domain.NewDialogueState()
	state.MinPrice = floatPtr(10000)
	state.MaxPrice = floatPtr(30000)
	state.MinYear = intPtr(2015)

	// Looser bounds are ignored without an explicit widen intent.
	next, changed := merger.Merge(state, &ExtractionResult{
		MinPrice: floatPtr(5000),
		MaxPrice: floatPtr(50000),
		MinYear:  intPtr(2010),
	})
	if changed {
		t.Error("looser bounds should not count as change")
	}
	if *next.MinPrice != 10000 || *next.MaxPrice != 30000 || *next.MinYear != 2015 {
		t.Errorf("bounds loosened without widen intent: min=%v max=%v year=%v", *next.MinPrice, *next.MaxPrice, *next.MinYear)
	}

	// Stricter bounds apply.
	next, changed = merger.Merge(state, &ExtractionResult{
		MinPrice: floatPtr(15000),
		MaxPrice: floatPtr(25000),
	})
	if !changed {
		t.Error("stricter bounds should count as change")
	}
	if *next.MinPrice != 15000 || *next.MaxPrice != 25000 {
		t.Errorf("stricter bounds not applied: min=%v max=%v", *next.MinPrice, *next.MaxPrice)
	}
}

func TestMergeWidenReplacesBounds(t *testing.T) {
	merger := CriteriaMerger{}
	state := domain.NewDialogueState()
	state.MaxPrice = floatPtr(20000)

	next, changed := merger.Merge(state, &ExtractionResult{
		MaxPrice: floatPtr(35000),
		Intent:   IntentWiden,
	})
	if !changed {
		t.Error("widen should count as change")
	}
	if *next.MaxPrice != 35000 {
		t.Errorf("widen did not replace the bound: %v", *next.MaxPrice)
	}
}

func TestMergeIdempotent(t *testing.T) {
	merger := CriteriaMerger{}
	state := domain.NewDialogueState()
	state.Confirm(domain.AttrMake, "Toyota")
	state.MaxPrice = floatPtr(40000)

	e := &ExtractionResult{
		PreferredMakes:     []string{"Tesla"},
		PreferredFuelTypes: []string{"Electric"},
		RejectedMakes:      []string{"Ford"},
		MaxPrice:           floatPtr(30000),
		MinYear:            intPtr(2019),
		Intent:             IntentShowMore,
	}

	once, changedOnce := merger.Merge(state, e)
	twice, changedTwice := merger.Merge(once, e)

	if !changedOnce {
		t.Error("first application should report a change")
	}
	if changedTwice {
		t.Error("second application of the same extraction should be a no-op")
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Merge is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMergeIdempotentWithConflict(t *testing.T) {
	merger := CriteriaMerger{}
	state := domain.NewDialogueState()
	state.MinPrice = floatPtr(30000)

	// New ceiling below the existing floor: floor is dropped and recorded.
	e := &ExtractionResult{MaxPrice: floatPtr(20000)}
	once, _ := merger.Merge(state, e)
	twice, _ := merger.Merge(once, e)

	if once.Topic.RangeConflict == nil {
		t.Fatal("conflict should be recorded after first application")
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("conflict resolution broke idempotence:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMergePriceConflictNewestWins(t *testing.T) {
	merger := CriteriaMerger{}

	t.Run("new max drops old min", func(t *testing.T) {
		state := domain.NewDialogueState()
		state.MinPrice = floatPtr(30000)

		next, _ := merger.Merge(state, &ExtractionResult{MaxPrice: floatPtr(20000)})
		if next.MinPrice != nil {
			t.Errorf("old min should be dropped, got %v", *next.MinPrice)
		}
		if next.MaxPrice == nil || *next.MaxPrice != 20000 {
			t.Errorf("new max should survive: %v", next.MaxPrice)
		}
		c := next.Topic.RangeConflict
		if c == nil || c.Field != "price" || c.DroppedBound != "min" || c.DroppedValue != 30000 {
			t.Errorf("unexpected conflict record: %+v", c)
		}
	})

	t.Run("new min drops old max", func(t *testing.T) {
		state := domain.NewDialogueState()
		state.MaxPrice = floatPtr(15000)

		next, _ := merger.Merge(state, &ExtractionResult{MinPrice: floatPtr(25000)})
		if next.MaxPrice != nil {
			t.Errorf("old max should be dropped, got %v", *next.MaxPrice)
		}
		if next.MinPrice == nil || *next.MinPrice != 25000 {
			t.Errorf("new min should survive: %v", next.MinPrice)
		}
		c := next.Topic.RangeConflict
		if c == nil || c.DroppedBound != "max" || c.DroppedValue != 15000 {
			t.Errorf("unexpected conflict record: %+v", c)
		}
	})

	t.Run("impossible range in one utterance keeps ceiling", func(t *testing.T) {
		state := domain.NewDialogueState()

		next, _ := merger.Merge(state, &ExtractionResult{
			MinPrice: floatPtr(50000),
			MaxPrice: floatPtr(10000),
		})
		if next.MinPrice != nil {
			t.Errorf("min should be dropped, got %v", *next.MinPrice)
		}
		if next.MaxPrice == nil || *next.MaxPrice != 10000 {
			t.Errorf("max should be kept: %v", next.MaxPrice)
		}
	})
}

func TestMergeYearConflict(t *testing.T) {
	merger := CriteriaMerger{}
	state := domain.NewDialogueState()
	state.MinYear = intPtr(2020)

	next, _ := merger.Merge(state, &ExtractionResult{MaxYear: intPtr(2015)})
	if next.MinYear != nil {
		t.Errorf("old min year should be dropped, got %v", *next.MinYear)
	}
	if next.MaxYear == nil || *next.MaxYear != 2015 {
		t.Errorf("new max year should survive: %v", next.MaxYear)
	}
	c := next.Topic.RangeConflict
	if c == nil || c.Field != "year" || c.DroppedBound != "min" || c.DroppedValue != 2020 {
		t.Errorf("unexpected conflict record: %+v", c)
	}
}

func TestMergeIntentPassThrough(t *testing.T) {
	merger := CriteriaMerger{}
	state := domain.NewDialogueState()

	next, changed := merger.Merge(state, &ExtractionResult{Intent: IntentShowMore})
	if changed {
		t.Error("intent alone is not a criteria change")
	}
	if next.Topic.LastIntent != IntentShowMore || !next.Topic.WantsMore {
		t.Errorf("intent not recorded: %+v", next.Topic)
	}

	// A following turn without the intent clears WantsMore.
	after, _ := merger.Merge(next, &ExtractionResult{PreferredMakes: []string{"BMW"}})
	if after.Topic.WantsMore {
		t.Error("WantsMore should not persist across turns")
	}
}
