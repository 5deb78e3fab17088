// Package actor carries the authenticated caller into every engine call.
package actor

import (
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	RoleSystem  Role = "system"
)

// Actor is the caller identity. ClinicID is set for staff and scopes them to
// one clinic; doctors and patients act across clinics on their own records.
type Actor struct {
	ID       uuid.UUID
	Role     Role
	ClinicID *uuid.UUID
}

// System is the identity used by background workers.
var System = Actor{Role: RoleSystem}

func Patient(id uuid.UUID) Actor { return Actor{ID: id, Role: RolePatient} }

func Doctor(id uuid.UUID) Actor { return Actor{ID: id, Role: RoleDoctor} }

func Staff(id, clinicID uuid.UUID) Actor {
	c := clinicID
	return Actor{ID: id, Role: RoleStaff, ClinicID: &c}
}

func Admin(id uuid.UUID) Actor { return Actor{ID: id, Role: RoleAdmin} }

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleStaff, RoleDoctor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (a Actor) IsPatient(id uuid.UUID) bool {
	return a.Role == RolePatient && a.ID == id
}

func (a Actor) IsDoctor(id uuid.UUID) bool {
	return a.Role == RoleDoctor && a.ID == id
}

// ManagesClinic reports whether the actor may act as clinic staff for clinicID.
func (a Actor) ManagesClinic(clinicID uuid.UUID) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleStaff:
		return a.ClinicID != nil && *a.ClinicID == clinicID
	default:
		return false
	}
}

func (a Actor) String() string {
	if a.ClinicID != nil {
		return fmt.Sprintf("%s:%s@%s", a.Role, a.ID, a.ClinicID)
	}
	return fmt.Sprintf("%s:%s", a.Role, a.ID)
}
