package records

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
	"github.com/clinicdesk/patientkeeper/internal/datastore/repository"
	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/observability/metrics"
)

const dateOfBirthLayout = "2006-01-02"

// NewPatient is the input for AddPatient. Empty optional fields are stored as NULL.
type NewPatient struct {
	NationalID  string `json:"national_id"`
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	Gender      string `json:"gender,omitempty"`        // male, female or other, any case
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
}

// Patient is a registered patient.
type Patient struct {
	ID               uint      `json:"id"`
	NationalID       string    `json:"national_id"`
	Name             string    `json:"name"`
	DateOfBirth      string    `json:"date_of_birth,omitempty"`
	Gender           string    `json:"gender,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Address          string    `json:"address,omitempty"`
	RegistrationDate time.Time `json:"registration_date"`
}

// PatientSummary is the list projection of a patient. It omits address
// and registration date.
type PatientSummary struct {
	ID          uint   `json:"id"`
	NationalID  string `json:"national_id"`
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// AddPatient registers a patient and returns its surrogate ID.
func (s *Service) AddPatient(ctx context.Context, in NewPatient) (id uint, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpAddPatient, start, err) }()

	row, err := s.newPatientRow(in)
	if err != nil {
		return 0, err
	}

	if err := s.repos.Patients.Create(ctx, row); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return 0, duplicateKeyError("add_patient",
				"patient with this national ID already exists", err)
		}
		s.log.Error("failed to register patient", logger.Error(err))
		return 0, storageError("add_patient", "failed to register patient", err)
	}

	s.log.Info("patient registered",
		logger.Int("patient_id", int(row.ID)),
		logger.String("national_id", row.NationalID))
	return row.ID, nil
}

func (s *Service) newPatientRow(in NewPatient) (*entities.Patient, error) {
	nationalID := strings.TrimSpace(in.NationalID)
	name := strings.TrimSpace(in.Name)
	if nationalID == "" {
		return nil, invalidInputError("add_patient", "national ID is required")
	}
	if name == "" {
		return nil, invalidInputError("add_patient", "name is required")
	}

	dob := strings.TrimSpace(in.DateOfBirth)
	if dob != "" {
		if _, err := time.Parse(dateOfBirthLayout, dob); err != nil {
			return nil, invalidInputError("add_patient",
				fmt.Sprintf("date of birth %q is not in YYYY-MM-DD form", dob))
		}
	}

	gender := strings.ToLower(strings.TrimSpace(in.Gender))
	switch gender {
	case "", entities.GenderMale, entities.GenderFemale, entities.GenderOther:
	default:
		return nil, invalidInputError("add_patient",
			fmt.Sprintf("gender %q must be one of male, female, other", in.Gender))
	}

	return &entities.Patient{
		NationalID:       nationalID,
		Name:             name,
		DateOfBirth:      optional(dob),
		Gender:           optional(gender),
		Phone:            optional(in.Phone),
		Address:          optional(in.Address),
		RegistrationDate: s.now(),
	}, nil
}

// GetPatientByNationalID looks a patient up by national ID.
// Patients are immutable, so hits are served from the cache when enabled.
func (s *Service) GetPatientByNationalID(ctx context.Context, nationalID string) (p *Patient, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpGetPatient, start, err) }()

	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return nil, invalidInputError("get_patient", "national ID is required")
	}

	cacheKey := "nid:" + nationalID
	if cached, ok := s.cacheGet(cacheKey); ok {
		return cached, nil
	}

	row, err := s.repos.Patients.GetByNationalID(ctx, nationalID)
	if err != nil {
		if errors.Is(err, repository.ErrPatientNotFound) {
			return nil, notFoundError("get_patient", "patient not found")
		}
		return nil, storageError("get_patient", "failed to look up patient", err)
	}

	p = toPatient(row)
	s.cachePut(p)
	return p, nil
}

// GetPatient looks a patient up by surrogate ID.
func (s *Service) GetPatient(ctx context.Context, id uint) (p *Patient, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpGetPatient, start, err) }()

	if cached, ok := s.cacheGet("id:" + strconv.FormatUint(uint64(id), 10)); ok {
		return cached, nil
	}

	row, err := s.repos.Patients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPatientNotFound) {
			return nil, notFoundError("get_patient", fmt.Sprintf("patient %d not found", id))
		}
		return nil, storageError("get_patient", "failed to look up patient", err)
	}

	p = toPatient(row)
	s.cachePut(p)
	return p, nil
}

// ListPatients returns all patients ordered by name. Never nil.
func (s *Service) ListPatients(ctx context.Context) (list []PatientSummary, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpListPatients, start, err) }()

	rows, err := s.repos.Patients.List(ctx)
	if err != nil {
		return nil, storageError("list_patients", "failed to list patients", err)
	}

	list = make([]PatientSummary, 0, len(rows))
	for _, r := range rows {
		list = append(list, PatientSummary{
			ID:          r.ID,
			NationalID:  r.NationalID,
			Name:        r.Name,
			DateOfBirth: deref(r.DateOfBirth),
			Gender:      deref(r.Gender),
			Phone:       deref(r.Phone),
		})
	}
	return list, nil
}

// CountPatients returns the number of registered patients.
func (s *Service) CountPatients(ctx context.Context) (int64, error) {
	n, err := s.repos.Patients.Count(ctx)
	if err != nil {
		return 0, storageError("count_patients", "failed to count patients", err)
	}
	return n, nil
}

func (s *Service) cacheGet(key string) (*Patient, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.Get(key)
	if !ok {
		s.metrics.RecordOperation(metrics.OpPatientCache, metrics.StatusMiss)
		return nil, false
	}
	s.metrics.RecordOperation(metrics.OpPatientCache, metrics.StatusHit)
	p := *v.(*Patient)
	return &p, true
}

func (s *Service) cachePut(p *Patient) {
	if s.cache == nil {
		return
	}
	stored := *p
	s.cache.SetDefault("nid:"+p.NationalID, &stored)
	s.cache.SetDefault("id:"+strconv.FormatUint(uint64(p.ID), 10), &stored)
}

func toPatient(r *entities.Patient) *Patient {
	return &Patient{
		ID:               r.ID,
		NationalID:       r.NationalID,
		Name:             r.Name,
		DateOfBirth:      deref(r.DateOfBirth),
		Gender:           deref(r.Gender),
		Phone:            deref(r.Phone),
		Address:          deref(r.Address),
		RegistrationDate: r.RegistrationDate,
	}
}
