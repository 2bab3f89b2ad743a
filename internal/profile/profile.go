// Package profile stores the doctor's own details and uses them to prefill
// the doctor step of new drafts.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/storage"
)

// DefaultKey is the slot key holding the profile
const DefaultKey = "doctor_profile"

// Profile is the doctor's saved identity
type Profile struct {
	FullName           string `json:"fullName"`
	Qualification      string `json:"qualification"`
	Specialty          string `json:"specialty"`
	LicenseNumber      string `json:"licenseNumber"`
	ClinicHospitalName string `json:"clinicHospitalName"`
	Phone              string `json:"phone"`
	Address            string `json:"address"`
	Email              string `json:"email"`
}

// Store persists a single profile in a slot
type Store struct {
	slot storage.Slot
	key  string
}

// NewStore creates a profile store
func NewStore(slot storage.Slot) *Store {
	return &Store{slot: slot, key: DefaultKey}
}

// Get returns the saved profile; the zero Profile when none is saved
func (s *Store) Get(ctx context.Context) (Profile, error) {
	raw, err := s.slot.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

// Put replaces the saved profile
func (s *Store) Put(ctx context.Context, p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.slot.Set(ctx, s.key, string(raw)); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Patch returns the doctor details patch that fills only the fields of
// current that are still empty. ok is false when the profile has no name
// or nothing would change.
func (p Profile) Patch(current prescription.DoctorDetails) (patch prescription.DoctorDetailsPatch, ok bool) {
	if strings.TrimSpace(p.FullName) == "" {
		return patch, false
	}
	fill := func(dst **string, have, want string) {
		if have == "" && want != "" {
			v := want
			*dst = &v
			ok = true
		}
	}
	fill(&patch.FullName, current.FullName, p.FullName)
	fill(&patch.Qualification, current.Qualification, p.Qualification)
	fill(&patch.Specialty, current.Specialty, p.Specialty)
	fill(&patch.LicenseNumber, current.LicenseNumber, p.LicenseNumber)
	fill(&patch.ClinicHospitalName, current.ClinicHospitalName, p.ClinicHospitalName)
	fill(&patch.Phone, current.Phone, p.Phone)
	fill(&patch.Address, current.Address, p.Address)
	fill(&patch.Email, current.Email, p.Email)
	return patch, ok
}
