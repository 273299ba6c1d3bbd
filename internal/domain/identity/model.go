package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/validation"
)

// Patient is a registered patient. ID is unique within the patient
// repository; (lower(Name), DateOfBirth) is the soft duplicate key.
type Patient struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DateOfBirth    time.Time `json:"-"`
	Contact        string    `json:"contact"`
	MedicalHistory string    `json:"medical_history"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SameIdentity reports whether p and other collide on the duplicate key.
func (p Patient) SameIdentity(name string, dob time.Time) bool {
	return strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name)) &&
		p.DateOfBirth.Equal(dob)
}

// SelectorLabel is the display form used by patient pickers.
func (p Patient) SelectorLabel() string {
	return fmt.Sprintf("%s (ID: %s)", p.Name, p.ID)
}

// PatientSummary is the list-view projection of a patient. It omits the
// medical history, which requires the patient:view action.
type PatientSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth"`
	Contact     string `json:"contact"`
}

func (p Patient) Summary() PatientSummary {
	return PatientSummary{
		ID:          p.ID,
		Name:        p.Name,
		DateOfBirth: p.DateOfBirth.Format(validation.DateLayout),
		Contact:     p.Contact,
	}
}

// PatientDetail is the full record, returned after authorization.
type PatientDetail struct {
	PatientSummary
	MedicalHistory string    `json:"medical_history"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p Patient) Detail() PatientDetail {
	return PatientDetail{
		PatientSummary: p.Summary(),
		MedicalHistory: p.MedicalHistory,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// PatientInput carries user-supplied patient fields. ID is optional on
// create and ignored on update.
type PatientInput struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DateOfBirth    string `json:"date_of_birth"`
	Contact        string `json:"contact"`
	MedicalHistory string `json:"medical_history"`
}

// Doctor has no uniqueness constraint beyond its generated ID.
type Doctor struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	Contact        string    `json:"contact"`
	CreatedAt      time.Time `json:"created_at"`
}

type DoctorInput struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Contact        string `json:"contact"`
}

// Search criteria for SearchPatients.
const (
	SearchByID      = "id"
	SearchByName    = "name"
	SearchByContact = "contact"
)
