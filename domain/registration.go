package domain

const (
	RegistrationConfirmed = "confirmed"
	RegistrationPending   = "pending"
)

// Registration is one ledger entry recording that a student is signed up
// for an event. There is at most one per (event, user) pair; the document
// id is the composite key itself, so a second insert cannot create a
// duplicate.
type Registration struct {
	ID           string `json:"id"`
	EventID      string `json:"eventId"`
	UserID       string `json:"userId"`
	StudentName  string `json:"studentName"`
	StudentEmail string `json:"studentEmail"`
	RegisteredAt int64  `json:"registeredAt"`
	Status       string `json:"status"`
}

// StudentProfile is the denormalized snapshot stored on a registration.
type StudentProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegistrationKey derives the ledger document id for an (event, user)
// pair. Deterministic on purpose: it is the idempotency key.
func RegistrationKey(eventID, userID string) string {
	return eventID + "_" + userID
}
