// Package chat implements the conversational search-criteria negotiation
// engine: parameter extraction, criteria merging, the clarification policy
// and the dialogue orchestration around them.
package chat

import (
	"github.com/glesp/smart-auto-trader/internal/domain"
)

// ChatRequest is an inbound chat turn.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the outward response for one chat turn.
type ChatResponse struct {
	Message             string                `json:"message"`
	RecommendedVehicles []domain.Vehicle      `json:"recommendedVehicles"`
	Parameters          domain.SearchCriteria `json:"parameters"`
	ClarificationNeeded bool                  `json:"clarificationNeeded"`
	ConversationID      string                `json:"conversationId"`
}

// HistoryTurn is one prior exchange sent to the extraction service for
// disambiguation.
type HistoryTurn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Detected intents passed through from the extraction service.
const (
	IntentShowMore = "show_more"
	IntentWiden    = "widen_search"
)

// ExtractionResult carries the structured signals the extraction service
// pulled out of one user message.
type ExtractionResult struct {
	PreferredMakes        []string `json:"preferredMakes"`
	PreferredModels       []string `json:"preferredModels"`
	PreferredFuelTypes    []string `json:"preferredFuelTypes"`
	PreferredVehicleTypes []string `json:"preferredVehicleTypes"`
	PreferredTransmission []string `json:"preferredTransmissions"`
	DesiredFeatures       []string `json:"desiredFeatures"`

	RejectedMakes        []string `json:"rejectedMakes"`
	RejectedModels       []string `json:"rejectedModels"`
	RejectedFuelTypes    []string `json:"rejectedFuelTypes"`
	RejectedVehicleTypes []string `json:"rejectedVehicleTypes"`
	RejectedFeatures     []string `json:"rejectedFeatures"`

	MinPrice   *float64 `json:"minPrice"`
	MaxPrice   *float64 `json:"maxPrice"`
	MinYear    *int     `json:"minYear"`
	MaxYear    *int     `json:"maxYear"`
	MaxMileage *int     `json:"maxMileage"`

	IsOffTopic          bool   `json:"isOffTopic"`
	OffTopicResponse    string `json:"offTopicResponse"`
	RetrieverSuggestion string `json:"retrieverSuggestion"`
	Intent              string `json:"intent"`
}

// HasSignal reports whether the extraction carries any confirmable or
// rejectable criteria value or numeric bound.
func (e *ExtractionResult) HasSignal() bool {
	if len(e.PreferredMakes) > 0 || len(e.PreferredModels) > 0 ||
		len(e.PreferredFuelTypes) > 0 || len(e.PreferredVehicleTypes) > 0 ||
		len(e.PreferredTransmission) > 0 || len(e.DesiredFeatures) > 0 {
		return true
	}
	if len(e.RejectedMakes) > 0 || len(e.RejectedModels) > 0 ||
		len(e.RejectedFuelTypes) > 0 || len(e.RejectedVehicleTypes) > 0 ||
		len(e.RejectedFeatures) > 0 {
		return true
	}
	return e.MinPrice != nil || e.MaxPrice != nil ||
		e.MinYear != nil || e.MaxYear != nil || e.MaxMileage != nil
}
