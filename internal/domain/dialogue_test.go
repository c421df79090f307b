package domain

import (
	"encoding/json"
	"testing"
)

func TestConfirmRejectExclusivity(t *testing.T) {
	st := NewDialogueState()

	if !st.Confirm(AttrMake, "BMW") {
		t.Error("first Confirm should report a new value")
	}
	if st.Confirm(AttrMake, "BMW") {
		t.Error("second Confirm of same value should report no change")
	}

	// Rejecting a confirmed value moves it across.
	if !st.Reject(AttrMake, "BMW") {
		t.Error("Reject should report a new value")
	}
	if st.Confirmed[AttrMake].Has("BMW") {
		t.Error("BMW should no longer be confirmed after Reject")
	}
	if !st.Rejected[AttrMake].Has("BMW") {
		t.Error("BMW should be rejected")
	}

	// And confirming it again moves it back.
	if !st.Confirm(AttrMake, "BMW") {
		t.Error("re-Confirm should report a new value")
	}
	if st.Rejected[AttrMake].Has("BMW") {
		t.Error("BMW should no longer be rejected after re-Confirm")
	}
}

func TestRepairKeepsConfirmedOnOverlap(t *testing.T) {
	st := NewDialogueState()
	st.Confirmed[AttrFuelType] = NewValueSet("Electric", "Hybrid")
	st.Rejected[AttrFuelType] = NewValueSet("Electric", "Diesel")

	st.Repair()

	if !st.Confirmed[AttrFuelType].Has("Electric") {
		t.Error("overlapping value should stay confirmed")
	}
	if st.Rejected[AttrFuelType].Has("Electric") {
		t.Error("overlapping value should be removed from rejected")
	}
	if !st.Rejected[AttrFuelType].Has("Diesel") {
		t.Error("non-overlapping rejection should survive repair")
	}
}

func TestRepairInitializesNilMaps(t *testing.T) {
	st := &DialogueState{}
	st.Repair()

	if st.Confirmed == nil || st.Rejected == nil || st.ShownVehicleIDs == nil {
		t.Fatal("Repair should initialize nil collections")
	}
	// Must be writable without panicking.
	st.Confirm(AttrMake, "Toyota")
	st.ShownVehicleIDs.Add(1)
}

func TestCloneIsDeep(t *testing.T) {
	st := NewDialogueState()
	st.Confirm(AttrMake, "Audi")
	price := 20000.0
	st.MaxPrice = &price
	st.ShownVehicleIDs.Add(7)
	st.RecordClarification("make", "Any makes you prefer?", 3)
	st.Topic.RangeConflict = &RangeConflict{Field: "price", DroppedBound: "min", DroppedValue: 30000}

	clone := st.Clone()
	clone.Confirm(AttrMake, "Kia")
	clone.Reject(AttrMake, "Audi")
	*clone.MaxPrice = 5000
	clone.ShownVehicleIDs.Add(8)
	clone.Topic.RangeConflict.Field = "year"
	clone.RecentClarificationParams[0] = "price"

	if !st.Confirmed[AttrMake].Has("Audi") {
		t.Error("mutating clone affected original confirmed set")
	}
	if st.Confirmed[AttrMake].Has("Kia") {
		t.Error("clone's new value leaked into original")
	}
	if *st.MaxPrice != 20000 {
		t.Errorf("clone's bound write leaked: got %v", *st.MaxPrice)
	}
	if st.ShownVehicleIDs.Has(8) {
		t.Error("clone's shown id leaked into original")
	}
	if st.Topic.RangeConflict.Field != "price" {
		t.Error("clone's conflict write leaked into original")
	}
	if st.RecentClarificationParams[0] != "make" {
		t.Error("clone's buffer write leaked into original")
	}
}

func TestWorkingReflectsSets(t *testing.T) {
	st := NewDialogueState()
	st.Confirm(AttrMake, "Toyota")
	st.Confirm(AttrMake, "BMW")
	st.Reject(AttrMake, "Ford")
	st.Confirm(AttrVehicleType, "SUV")
	year := 2018
	st.MinYear = &year

	c := st.Working()
	if len(c.Makes) != 2 || c.Makes[0] != "BMW" || c.Makes[1] != "Toyota" {
		t.Errorf("unexpected makes: %v", c.Makes)
	}
	for _, m := range c.Makes {
		if m == "Ford" {
			t.Error("rejected value appeared in working criteria")
		}
	}
	if c.MinYear == nil || *c.MinYear != 2018 {
		t.Errorf("unexpected min year: %v", c.MinYear)
	}

	// Working returns copies, not aliases.
	*c.MinYear = 1999
	if *st.MinYear != 2018 {
		t.Error("mutating working criteria affected the state")
	}
}

func TestRecordClarificationBounded(t *testing.T) {
	st := NewDialogueState()
	st.RecordClarification("make", "q1", 3)
	st.RecordClarification("vehicleType", "q2", 3)
	st.RecordClarification("price", "q3", 3)
	st.RecordClarification("year", "q4", 3)

	if len(st.RecentClarificationParams) != 3 {
		t.Fatalf("buffer should be capped at 3, got %d", len(st.RecentClarificationParams))
	}
	if st.RecentlyAskedAbout("make") {
		t.Error("oldest entry should have been evicted")
	}
	if !st.RecentlyAskedAbout("year") {
		t.Error("newest entry should be present")
	}
	if st.RecentlyAskedQuestion("q1") {
		t.Error("oldest question should have been evicted")
	}
	if !st.RecentlyAskedQuestion("q4") {
		t.Error("newest question should be present")
	}
}

func TestValueSetJSONDeterministic(t *testing.T) {
	s := NewValueSet("Toyota", "BMW", "Audi")
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["Audi","BMW","Toyota"]` {
		t.Errorf("expected sorted array, got %s", data)
	}

	var decoded ValueSet
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Has("BMW") || len(decoded) != 3 {
		t.Errorf("roundtrip lost values: %v", decoded)
	}
}

func TestIDSetJSONDeterministic(t *testing.T) {
	s := make(IDSet)
	s.Add(30)
	s.Add(2)
	s.Add(11)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `[2,11,30]` {
		t.Errorf("expected sorted array, got %s", data)
	}
}
