package domain

// Event represents a club event in the read model.
type Event struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Description          string `json:"description,omitempty"`
	Date                 string `json:"date"`
	Time                 string `json:"time,omitempty"`
	Venue                string `json:"venue,omitempty"`
	RegistrationDeadline string `json:"registrationDeadline,omitempty"`
	Published            bool   `json:"published"`
	RegistrationCount    int    `json:"registrationCount"`
	CreatedAt            int64  `json:"createdAt"`
}

// NewEventInput carries the admin-supplied fields for a new event.
type NewEventInput struct {
	Title                string `json:"title"`
	Description          string `json:"description,omitempty"`
	Date                 string `json:"date"`
	Time                 string `json:"time,omitempty"`
	Venue                string `json:"venue,omitempty"`
	RegistrationDeadline string `json:"registrationDeadline,omitempty"`
	Published            bool   `json:"published"`
}
