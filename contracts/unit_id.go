package contracts

import (
	"fmt"
	"strings"
)

// UnitID identifies a component unit, e.g. "web/frontend" or "infra/gate/default".
type UnitID struct {
	Type     string
	Unit     string
	Instance string
}

// NewUnitID creates a unit identifier without an instance
func NewUnitID(unitType, unit string) UnitID {
	return UnitID{Type: unitType, Unit: unit}
}

// WithInstance returns a copy of the identifier bound to the given instance
func (u UnitID) WithInstance(instance string) UnitID {
	u.Instance = instance
	return u
}

// IsZero reports whether the identifier is unset
func (u UnitID) IsZero() bool {
	return u.Type == "" && u.Unit == "" && u.Instance == ""
}

// Equals compares two identifiers
func (u UnitID) Equals(other UnitID) bool {
	return u == other
}

// String renders the identifier as type/unit[/instance]
func (u UnitID) String() string {
	if u.IsZero() {
		return ""
	}
	if u.Instance == "" {
		return u.Type + "/" + u.Unit
	}
	return u.Type + "/" + u.Unit + "/" + u.Instance
}

// ParseUnitID parses a type/unit[/instance] string
func ParseUnitID(s string) (UnitID, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return UnitID{}, fmt.Errorf("invalid unit id %q: expected type/unit[/instance]", s)
	}
	for _, p := range parts {
		if p == "" {
			return UnitID{}, fmt.Errorf("invalid unit id %q: empty segment", s)
		}
	}

	id := UnitID{Type: parts[0], Unit: parts[1]}
	if len(parts) == 3 {
		id.Instance = parts[2]
	}
	return id, nil
}

// MarshalText implements encoding.TextMarshaler
func (u UnitID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler; an empty string yields the zero UnitID
func (u *UnitID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*u = UnitID{}
		return nil
	}
	id, err := ParseUnitID(string(text))
	if err != nil {
		return err
	}
	*u = id
	return nil
}
