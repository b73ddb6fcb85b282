package models

import "strings"

// Role is the access role of a user.
type Role string

const (
	RoleClient    Role = "client"
	RoleDriver    Role = "driver"
	RoleRegulator Role = "regulator"
)

// ParseRole accepts English and Spanish role names.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client", "cliente":
		return RoleClient, true
	case "driver", "conductor":
		return RoleDriver, true
	case "regulator", "regulador":
		return RoleRegulator, true
	}
	return "", false
}

// User is a row of the user directory.
type User struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	Role               Role    `json:"role"`
	AssignedCorridorID *int64  `json:"assigned_corridor_id,omitempty"`
	UnitPlate          *string `json:"unit_plate,omitempty"`
	DeviceToken        *string `json:"-"`
	Location           *Point  `json:"location,omitempty"`
}

// Recipient is a user reachable through a device token.
type Recipient struct {
	UserID   int64
	Token    string
	Location *Point
}
