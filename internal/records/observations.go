package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
	"github.com/clinicdesk/patientkeeper/internal/datastore/repository"
	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/observability/metrics"
)

// Sentinel readings that mean "not entered". A glucose of exactly 0 and a
// temperature of exactly 37.0 (the intake form default) are stored as NULL.
// A genuine 37.0 reading is therefore indistinguishable from no reading.
const (
	glucoseNotEntered     = 0.0
	temperatureNotEntered = 37.0

	minTemperature = 30.0
	maxTemperature = 45.0
)

// NewObservation is the input for AddObservation. Nil or empty fields are absent.
type NewObservation struct {
	BloodPressure string   `json:"blood_pressure,omitempty"`
	GlucoseLevel  *float64 `json:"glucose_level,omitempty"` // mg/dL
	Temperature   *float64 `json:"temperature,omitempty"`   // °C
	Notes         string   `json:"notes,omitempty"`
}

// Observation is one stored vital-sign entry.
type Observation struct {
	ID            uint      `json:"id"`
	PatientID     uint      `json:"patient_id"`
	RecordDate    time.Time `json:"record_date"`
	BloodPressure string    `json:"blood_pressure,omitempty"`
	GlucoseLevel  *float64  `json:"glucose_level"`
	Temperature   *float64  `json:"temperature"`
	Notes         string    `json:"notes,omitempty"`
}

// AddObservation appends an observation for patientID and returns its ID.
// The patient reference is not checked beforehand; a missing patient is
// rejected by the store's foreign key and reported as ErrStorage.
func (s *Service) AddObservation(ctx context.Context, patientID uint, in NewObservation) (id uint, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpAddObservation, start, err) }()

	glucose, temperature, err := normalizeReadings(in.GlucoseLevel, in.Temperature)
	if err != nil {
		return 0, err
	}

	row := &entities.MedicalRecord{
		PatientID:     patientID,
		RecordDate:    s.now(),
		BloodPressure: optional(in.BloodPressure),
		GlucoseLevel:  glucose,
		Temperature:   temperature,
		Notes:         optional(in.Notes),
	}

	if err := s.repos.MedicalRecords.Create(ctx, row); err != nil {
		msg := "failed to save observation"
		if errors.Is(err, repository.ErrForeignKey) {
			msg = fmt.Sprintf("failed to save observation: patient %d does not exist", patientID)
		}
		s.log.Warn(msg, logger.Int("patient_id", int(patientID)), logger.Error(err))
		return 0, storageError("add_observation", msg, err)
	}

	s.log.Debug("observation recorded",
		logger.Int("patient_id", int(patientID)),
		logger.Int("record_id", int(row.ID)))
	return row.ID, nil
}

// normalizeReadings maps sentinel readings to nil and validates ranges.
func normalizeReadings(glucose, temperature *float64) (g, t *float64, err error) {
	if glucose != nil {
		switch v := *glucose; {
		case v < 0:
			return nil, nil, invalidInputError("add_observation",
				fmt.Sprintf("glucose level %.1f must not be negative", v))
		case v != glucoseNotEntered:
			g = &v
		}
	}

	if temperature != nil {
		switch v := *temperature; {
		case v == temperatureNotEntered:
		case v < minTemperature || v > maxTemperature:
			return nil, nil, invalidInputError("add_observation",
				fmt.Sprintf("temperature %.1f outside %.0f-%.0f °C", v, minTemperature, maxTemperature))
		default:
			t = &v
		}
	}
	return g, t, nil
}

// ListObservations returns a patient's observations, newest first. Never nil.
func (s *Service) ListObservations(ctx context.Context, patientID uint) (list []Observation, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpListObservation, start, err) }()

	rows, err := s.repos.MedicalRecords.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, storageError("list_observations", "failed to list observations", err)
	}

	list = make([]Observation, 0, len(rows))
	for _, r := range rows {
		list = append(list, Observation{
			ID:            r.ID,
			PatientID:     r.PatientID,
			RecordDate:    r.RecordDate,
			BloodPressure: deref(r.BloodPressure),
			GlucoseLevel:  r.GlucoseLevel,
			Temperature:   r.Temperature,
			Notes:         strings.TrimSpace(deref(r.Notes)),
		})
	}
	return list, nil
}
