package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/platform/validation"
)

// Bookable appointment times run from OpeningTime to ClosingTime inclusive
// in SlotLength steps.
const (
	OpeningTime = 9 * time.Hour
	ClosingTime = 17 * time.Hour
	SlotLength  = 30 * time.Minute
)

// Appointment books a patient with a doctor for one half-hour slot.
// PatientName and DoctorName are display caches copied at booking time;
// PatientID and DoctorID are the references. The slot key is
// (DoctorName, Date, Time).
type Appointment struct {
	ID          uuid.UUID `json:"id"`
	PatientID   string    `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	DoctorName  string    `json:"doctor_name"`
	Date        time.Time `json:"date"`
	Time        string    `json:"time"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarshalJSON renders Date as a civil YYYY-MM-DD date.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type alias Appointment
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(a), Date: a.Date.Format(validation.DateLayout)})
}

// Occupies reports whether a holds the slot (doctorName, date, slot).
func (a Appointment) Occupies(doctorName string, date time.Time, slot string) bool {
	return a.DoctorName == doctorName && a.Date.Equal(date) && a.Time == slot
}

// AppointmentInput carries user-supplied booking fields.
type AppointmentInput struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

// TimeSlots returns every bookable time of day as HH:MM.
func TimeSlots() []string {
	var slots []string
	for d := OpeningTime; d <= ClosingTime; d += SlotLength {
		slots = append(slots, fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60))
	}
	return slots
}

// IsSlot reports whether s is one of TimeSlots.
func IsSlot(s string) bool {
	return lo.Contains(TimeSlots(), s)
}
