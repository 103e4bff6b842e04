package models

// Itinerary item statuses.
const (
	StatusPlanned   = "planned"
	StatusVisited   = "visited"
	StatusCancelled = "cancelled"
)

// ItineraryItem is a destination saved to a user's trip plan.
type ItineraryItem struct {
	ID              string `db:"id" json:"id"`
	UserID          string `db:"user_id" json:"user_id"`
	DestinationID   string `db:"destination_id" json:"destination_id"`
	DestinationName string `db:"destination_name" json:"destination_name"`
	DestinationType string `db:"destination_type" json:"destination_type,omitempty"`
	DestinationIcon string `db:"destination_icon" json:"destination_icon,omitempty"`
	Notes           string `db:"notes" json:"notes,omitempty"`
	Status          string `db:"status" json:"status"`
	VisitDate       string `db:"visit_date" json:"visit_date,omitempty"`
	Priority        int    `db:"priority" json:"priority"`
	AddedAt         string `db:"added_at" json:"added_at"`
	Synced          bool   `db:"synced" json:"-"`
}

// Table returns the table name for ItineraryItem.
func (ItineraryItem) Table() string {
	return "itineraries"
}

// ValidStatus reports whether s is a known itinerary status.
func ValidStatus(s string) bool {
	return s == StatusPlanned || s == StatusVisited || s == StatusCancelled
}

// ItineraryUpdate carries a partial update. Nil fields are left unchanged.
type ItineraryUpdate struct {
	Notes     *string `json:"notes,omitempty"`
	Status    *string `json:"status,omitempty"`
	VisitDate *string `json:"visit_date,omitempty"`
	Priority  *int    `json:"priority,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ItineraryUpdate) Empty() bool {
	return u.Notes == nil && u.Status == nil && u.VisitDate == nil && u.Priority == nil
}

// Apply copies the set fields onto item.
func (u ItineraryUpdate) Apply(item *ItineraryItem) {
	if u.Notes != nil {
		item.Notes = *u.Notes
	}
	if u.Status != nil {
		item.Status = *u.Status
	}
	if u.VisitDate != nil {
		item.VisitDate = *u.VisitDate
	}
	if u.Priority != nil {
		item.Priority = *u.Priority
	}
}
