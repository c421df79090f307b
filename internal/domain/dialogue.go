package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// DialogueSchemaVersion is the persisted DialogueState format version.
// Decoders must treat any other version as an unreadable blob and start a
// fresh state rather than guess at field meanings.
const DialogueSchemaVersion = 1

// ValueSet is a set of attribute values. It marshals as a sorted JSON array
// so encoded state is deterministic.
type ValueSet map[string]struct{}

// NewValueSet builds a set from the given values.
func NewValueSet(values ...string) ValueSet {
	s := make(ValueSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts a value. Returns true if the value was not already present.
func (s ValueSet) Add(v string) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

// Remove deletes a value if present.
func (s ValueSet) Remove(v string) { delete(s, v) }

// Has reports membership.
func (s ValueSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Values returns the members in sorted order.
func (s ValueSet) Values() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s ValueSet) Clone() ValueSet {
	out := make(ValueSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s ValueSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON decodes an array into the set.
func (s *ValueSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewValueSet(values...)
	return nil
}

// IDSet is a set of vehicle ids with the same deterministic encoding as
// ValueSet. Used for the already-shown exclusion list, which only ever grows
// within a session.
type IDSet map[int]struct{}

// Add inserts an id.
func (s IDSet) Add(id int) { s[id] = struct{}{} }

// Has reports membership.
func (s IDSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Values returns the ids in ascending order.
func (s IDSet) Values() []int {
	if len(s) == 0 {
		return nil
	}
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON decodes an array into the set.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	out := make(IDSet, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	*s = out
	return nil
}

// RangeConflict records a numeric-bound contradiction that the merger
// self-corrected by dropping the older bound. Kept visible so the composer
// can mention it instead of silently guessing.
type RangeConflict struct {
	Field        string  `json:"field"`
	DroppedBound string  `json:"droppedBound"` // "min" or "max"
	DroppedValue float64 `json:"droppedValue"`
}

// TopicContext carries auxiliary per-turn signals. A closed set of typed
// fields, not an open map.
type TopicContext struct {
	LastIntent    string         `json:"lastIntent,omitempty"`
	WantsMore     bool           `json:"wantsMore,omitempty"`
	RangeConflict *RangeConflict `json:"rangeConflict,omitempty"`
}

// DialogueState is the per-user working memory of a chat session: confirmed
// and rejected criteria, numeric bounds, loop-detection buffers and the
// already-shown exclusion set.
type DialogueState struct {
	SchemaVersion int `json:"schemaVersion"`

	Confirmed map[Attribute]ValueSet `json:"confirmed"`
	Rejected  map[Attribute]ValueSet `json:"rejected"`

	MinPrice      *float64 `json:"minPrice,omitempty"`
	MaxPrice      *float64 `json:"maxPrice,omitempty"`
	MinYear       *int     `json:"minYear,omitempty"`
	MaxYear       *int     `json:"maxYear,omitempty"`
	MaxMileage    *int     `json:"maxMileage,omitempty"`
	MinEngineSize *float64 `json:"minEngineSize,omitempty"`
	MaxEngineSize *float64 `json:"maxEngineSize,omitempty"`
	MinHorsepower *int     `json:"minHorsepower,omitempty"`
	MaxHorsepower *int     `json:"maxHorsepower,omitempty"`

	MessageCount          int       `json:"messageCount"`
	LastInteractionAt     time.Time `json:"lastInteractionAt"`
	ClarificationAttempts int       `json:"clarificationAttempts"`

	// Bounded ring buffers for loop detection. RecentClarificationParams
	// holds the last attribute names asked about; LastQuestionsAsked holds
	// the literal question strings.
	RecentClarificationParams []string `json:"recentClarificationParams,omitempty"`
	LastQuestionsAsked        []string `json:"lastQuestionsAsked,omitempty"`

	ShownVehicleIDs IDSet `json:"shownVehicleIds"`

	Topic TopicContext `json:"topic"`
}

// NewDialogueState returns an empty state at the current schema version.
func NewDialogueState() *DialogueState {
	return &DialogueState{
		SchemaVersion:   DialogueSchemaVersion,
		Confirmed:       make(map[Attribute]ValueSet),
		Rejected:        make(map[Attribute]ValueSet),
		ShownVehicleIDs: make(IDSet),
	}
}

// Clone returns a deep copy. The merger works on a copy so a failed turn
// never leaves partially merged state behind.
func (st *DialogueState) Clone() *DialogueState {
	out := *st
	out.Confirmed = make(map[Attribute]ValueSet, len(st.Confirmed))
	for attr, set := range st.Confirmed {
		out.Confirmed[attr] = set.Clone()
	}
	out.Rejected = make(map[Attribute]ValueSet, len(st.Rejected))
	for attr, set := range st.Rejected {
		out.Rejected[attr] = set.Clone()
	}
	out.RecentClarificationParams = append([]string(nil), st.RecentClarificationParams...)
	out.LastQuestionsAsked = append([]string(nil), st.LastQuestionsAsked...)
	out.ShownVehicleIDs = st.ShownVehicleIDs.Clone()
	if st.Topic.RangeConflict != nil {
		conflict := *st.Topic.RangeConflict
		out.Topic.RangeConflict = &conflict
	}
	out.MinPrice = clonePtr(st.MinPrice)
	out.MaxPrice = clonePtr(st.MaxPrice)
	out.MinYear = clonePtr(st.MinYear)
	out.MaxYear = clonePtr(st.MaxYear)
	out.MaxMileage = clonePtr(st.MaxMileage)
	out.MinEngineSize = clonePtr(st.MinEngineSize)
	out.MaxEngineSize = clonePtr(st.MaxEngineSize)
	out.MinHorsepower = clonePtr(st.MinHorsepower)
	out.MaxHorsepower = clonePtr(st.MaxHorsepower)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ConfirmedSet returns the confirmed set for attr, creating it if needed.
func (st *DialogueState) ConfirmedSet(attr Attribute) ValueSet {
	set, ok := st.Confirmed[attr]
	if !ok {
		set = make(ValueSet)
		st.Confirmed[attr] = set
	}
	return set
}

// RejectedSet returns the rejected set for attr, creating it if needed.
func (st *DialogueState) RejectedSet(attr Attribute) ValueSet {
	set, ok := st.Rejected[attr]
	if !ok {
		set = make(ValueSet)
		st.Rejected[attr] = set
	}
	return set
}

// Confirm adds a value to the confirmed set and removes it from the rejected
// set, so confirmed and rejected can never intersect. Returns true if the
// value was not already confirmed.
func (st *DialogueState) Confirm(attr Attribute, value string) bool {
	st.RejectedSet(attr).Remove(value)
	return st.ConfirmedSet(attr).Add(value)
}

// Reject adds a value to the rejected set and removes it from the confirmed
// set. Returns true if the value was not already rejected.
func (st *DialogueState) Reject(attr Attribute, value string) bool {
	st.ConfirmedSet(attr).Remove(value)
	return st.RejectedSet(attr).Add(value)
}

// Repair restores the confirmed/rejected exclusivity invariant on state
// decoded from an older or buggy writer. A value found in both sets is kept
// as confirmed; there is no way to know which statement was most recent, and
// keeping the positive signal degrades more gracefully than excluding it.
func (st *DialogueState) Repair() {
	if st.Confirmed == nil {
		st.Confirmed = make(map[Attribute]ValueSet)
	}
	if st.Rejected == nil {
		st.Rejected = make(map[Attribute]ValueSet)
	}
	if st.ShownVehicleIDs == nil {
		st.ShownVehicleIDs = make(IDSet)
	}
	for attr, rejected := range st.Rejected {
		confirmed, ok := st.Confirmed[attr]
		if !ok {
			continue
		}
		for v := range rejected {
			if confirmed.Has(v) {
				rejected.Remove(v)
			}
		}
	}
}

// RecordClarification pushes the asked attribute and literal question onto
// the loop-detection buffers, each bounded to maxLen entries.
func (st *DialogueState) RecordClarification(attr, question string, maxLen int) {
	if attr != "" {
		st.RecentClarificationParams = pushBounded(st.RecentClarificationParams, attr, maxLen)
	}
	if question != "" {
		st.LastQuestionsAsked = pushBounded(st.LastQuestionsAsked, question, maxLen)
	}
}

// RecentlyAskedAbout reports whether attr is in the recent-clarification
// ring buffer.
func (st *DialogueState) RecentlyAskedAbout(attr Attribute) bool {
	for _, a := range st.RecentClarificationParams {
		if a == string(attr) {
			return true
		}
	}
	return false
}

// RecentlyAskedQuestion reports whether the literal question was asked
// within the ring-buffer window.
func (st *DialogueState) RecentlyAskedQuestion(question string) bool {
	for _, q := range st.LastQuestionsAsked {
		if q == question {
			return true
		}
	}
	return false
}

func pushBounded(buf []string, v string, maxLen int) []string {
	buf = append(buf, v)
	if maxLen > 0 && len(buf) > maxLen {
		buf = buf[len(buf)-maxLen:]
	}
	return buf
}

// Working recomputes the effective search criteria from the confirmed sets
// and numeric bounds. Rejected values never appear here because Confirm and
// Reject keep the two sets disjoint.
func (st *DialogueState) Working() SearchCriteria {
	return SearchCriteria{
		Makes:         st.Confirmed[AttrMake].Values(),
		Models:        st.Confirmed[AttrModel].Values(),
		VehicleTypes:  st.Confirmed[AttrVehicleType].Values(),
		FuelTypes:     st.Confirmed[AttrFuelType].Values(),
		Transmissions: st.Confirmed[AttrTransmission].Values(),
		Features:      st.Confirmed[AttrFeature].Values(),
		MinPrice:      clonePtr(st.MinPrice),
		MaxPrice:      clonePtr(st.MaxPrice),
		MinYear:       clonePtr(st.MinYear),
		MaxYear:       clonePtr(st.MaxYear),
		MaxMileage:    clonePtr(st.MaxMileage),
		MinEngineSize: clonePtr(st.MinEngineSize),
		MaxEngineSize: clonePtr(st.MaxEngineSize),
		MinHorsepower: clonePtr(st.MinHorsepower),
		MaxHorsepower: clonePtr(st.MaxHorsepower),
	}
}
