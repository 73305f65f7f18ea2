// Package entity describes the synchronised entities: a closed set of kinds,
// each bound to one authoritative table and one strongly typed payload.
package entity

import (
	"fmt"
	"strings"
)

// Kind identifies a synchronised entity. The set is closed: adding a kind
// means adding a table, a payload type and a case in every switch below.
type Kind int

const (
	KindUnknown Kind = iota
	KindStudents
	KindEnrollments
	KindPayments
	KindGrades
)

// Table returns the authoritative table name of the kind.
func (k Kind) Table() string {
	switch k {
	case KindStudents:
		return "students"
	case KindEnrollments:
		return "enrollments"
	case KindPayments:
		return "payments"
	case KindGrades:
		return "grades"
	default:
		return ""
	}
}

// String implements fmt.Stringer
func (k Kind) String() string {
	if t := k.Table(); t != "" {
		return t
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k.Table() != ""
}

// All returns every known kind in a stable order.
func All() []Kind {
	return []Kind{KindStudents, KindEnrollments, KindPayments, KindGrades}
}

// ParseKind resolves a table name sent by a replica.
func ParseKind(table string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(table))
	for _, k := range All() {
		if k.Table() == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownEntity, table)
}
