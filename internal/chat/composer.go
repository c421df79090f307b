package chat

import (
	"fmt"
	"strings"

	"github.com/glesp/smart-auto-trader/internal/domain"
)

// Canned texts for the degraded paths. Every external-boundary failure maps
// to one of these; the user never sees a raw error.
const (
	apologyUnknownUser = "Sorry, I couldn't verify who you are. Please refresh the page and try again."
	apologyExtraction  = "Sorry, I'm having a technical issue understanding your request right now. Please try again in a moment."
	apologyGateway     = "Sorry, I couldn't fetch recommendations just now. Your preferences are saved - please try again in a moment."
	defaultOffTopic    = "I'm here to help you find a vehicle. What are you looking for?"
)

// ResponseComposer renders the outward message text for each decision.
type ResponseComposer struct{}

// OffTopic returns the extraction stage's canned reply, or a default when
// the stage flagged the turn off-topic without supplying text.
func (ResponseComposer) OffTopic(text string) string {
	if text == "" {
		return defaultOffTopic
	}
	return text
}

// Clarification returns the follow-up question as the message body.
func (ResponseComposer) Clarification(question string) string {
	return question
}

// Recommendation renders the summary for a recommendation turn: the active
// criteria, the result count, and a relaxation hint when nothing matched.
// A self-corrected range conflict is surfaced rather than silently dropped.
func (c ResponseComposer) Recommendation(criteria domain.SearchCriteria, vehicles []domain.Vehicle, conflict *domain.RangeConflict) string {
	var b strings.Builder

	if len(vehicles) == 0 {
		b.WriteString("I couldn't find any vehicles matching your criteria")
		if summary := describeCriteria(criteria); summary != "" {
			b.WriteString(" (")
			b.WriteString(summary)
			b.WriteString(")")
		}
		b.WriteString(". ")
		b.WriteString(relaxationHint(criteria))
	} else {
		if summary := describeCriteria(criteria); summary != "" {
			fmt.Fprintf(&b, "Based on %s, I found %d %s for you.", summary, len(vehicles), pluralVehicles(len(vehicles)))
		} else {
			fmt.Fprintf(&b, "Here are %d %s you might like.", len(vehicles), pluralVehicles(len(vehicles)))
		}
	}

	if conflict != nil {
		b.WriteString(" ")
		b.WriteString(describeConflict(conflict))
	}

	return b.String()
}

func pluralVehicles(n int) string {
	if n == 1 {
		return "vehicle"
	}
	return "vehicles"
}

// describeCriteria renders the active confirmed criteria as a short phrase,
// or "" when nothing is set.
func describeCriteria(c domain.SearchCriteria) string {
	var parts []string

	if len(c.Makes) > 0 {
		parts = append(parts, joinValues(c.Makes))
	}
	if len(c.Models) > 0 {
		parts = append(parts, joinValues(c.Models))
	}
	if len(c.VehicleTypes) > 0 {
		parts = append(parts, strings.ToLower(joinValues(c.VehicleTypes)))
	}
	if len(c.FuelTypes) > 0 {
		parts = append(parts, strings.ToLower(joinValues(c.FuelTypes)))
	}
	if len(c.Transmissions) > 0 {
		parts = append(parts, strings.ToLower(joinValues(c.Transmissions)))
	}
	if len(c.Features) > 0 {
		parts = append(parts, "with "+strings.ToLower(joinValues(c.Features)))
	}

	switch {
	case c.MinPrice != nil && c.MaxPrice != nil:
		parts = append(parts, fmt.Sprintf("between €%.0f and €%.0f", *c.MinPrice, *c.MaxPrice))
	case c.MaxPrice != nil:
		parts = append(parts, fmt.Sprintf("under €%.0f", *c.MaxPrice))
	case c.MinPrice != nil:
		parts = append(parts, fmt.Sprintf("over €%.0f", *c.MinPrice))
	}

	switch {
	case c.MinYear != nil && c.MaxYear != nil:
		parts = append(parts, fmt.Sprintf("from %d to %d", *c.MinYear, *c.MaxYear))
	case c.MinYear != nil:
		parts = append(parts, fmt.Sprintf("from %d onwards", *c.MinYear))
	case c.MaxYear != nil:
		parts = append(parts, fmt.Sprintf("up to %d", *c.MaxYear))
	}

	if c.MaxMileage != nil {
		parts = append(parts, fmt.Sprintf("with under %d km", *c.MaxMileage))
	}

	if len(parts) == 0 {
		return ""
	}
	return "your interest in " + strings.Join(parts, ", ")
}

func joinValues(values []string) string {
	switch len(values) {
	case 1:
		return values[0]
	case 2:
		return values[0] + " or " + values[1]
	default:
		return strings.Join(values[:len(values)-1], ", ") + " or " + values[len(values)-1]
	}
}

// relaxationHint suggests which constraint to loosen when nothing matched,
// preferring the most restrictive kind first.
func relaxationHint(c domain.SearchCriteria) string {
	switch {
	case c.MaxPrice != nil:
		return "You might find more options by raising your budget."
	case len(c.Models) > 0:
		return "You might find more options by considering other models."
	case len(c.Makes) > 0:
		return "You might find more options by considering other makes."
	case c.MinYear != nil:
		return "You might find more options by including older vehicles."
	case c.MaxMileage != nil:
		return "You might find more options by allowing higher mileage."
	case len(c.VehicleTypes) > 0:
		return "You might find more options by considering other vehicle types."
	default:
		return "Try telling me a bit more about what you're looking for."
	}
}

// describeConflict explains a bound the merger had to drop.
func describeConflict(conflict *domain.RangeConflict) string {
	switch conflict.Field {
	case "price":
		if conflict.DroppedBound == "min" {
			return fmt.Sprintf("I've dropped your earlier minimum price of €%.0f since it no longer fits.", conflict.DroppedValue)
		}
		return fmt.Sprintf("I've dropped your earlier maximum price of €%.0f since it no longer fits.", conflict.DroppedValue)
	case "year":
		if conflict.DroppedBound == "min" {
			return fmt.Sprintf("I've dropped your earlier minimum year of %.0f since it no longer fits.", conflict.DroppedValue)
		}
		return fmt.Sprintf("I've dropped your earlier maximum year of %.0f since it no longer fits.", conflict.DroppedValue)
	default:
		return "I've adjusted a conflicting limit from earlier in our chat."
	}
}
