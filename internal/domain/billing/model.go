package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/validation"
)

// Record is one billed service. PatientName is a display cache copied at
// billing time; PatientID is the reference.
type Record struct {
	ID          uuid.UUID `json:"id"`
	PatientID   string    `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	Service     string    `json:"service"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarshalJSON renders Date as a civil YYYY-MM-DD date.
func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(r), Date: r.Date.Format(validation.DateLayout)})
}

// RecordInput carries user-supplied billing fields. Amount is the raw form
// text and is parsed by the service.
type RecordInput struct {
	PatientID string `json:"patient_id"`
	Service   string `json:"service"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
}
