package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownEntity is returned for a table name outside the registry.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrInvalidPayload is returned when a payload does not match its kind.
	ErrInvalidPayload = errors.New("invalid payload")
)

// transportFields are produced by replicas for their own bookkeeping and
// must never reach the authoritative store.
var transportFields = []string{
	"local_id",
	"_local",
	"device_id",
	"sync_status",
	"is_synced",
	"pending_sync",
	"last_synced_at",
	"local_updated_at",
}

// serverFields are owned by the authoritative store.
var serverFields = []string{
	"id",
	"status",
	"created_at",
	"updated_at",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// StripTransportFields removes replica-only and server-owned keys from a
// decoded JSON object in place.
func StripTransportFields(obj map[string]json.RawMessage) {
	for _, k := range transportFields {
		delete(obj, k)
	}
	for _, k := range serverFields {
		delete(obj, k)
	}
}

// Decode turns a raw replica payload into the typed payload of kind.
// Unknown fields are rejected after transport fields are stripped.
func Decode(kind Kind, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindStudents:
		p = &StudentPayload{}
	case KindEnrollments:
		p = &EnrollmentPayload{}
	case KindPayments:
		p = &PaymentPayload{}
	case KindGrades:
		p = &GradePayload{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, kind)
	}

	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	StripTransportFields(obj)

	cleaned, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	dec := json.NewDecoder(bytes.NewReader(cleaned))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, describe(err))
	}
	return p, nil
}

// describe flattens validator errors into a stable, readable message.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

// Columns returns the writable columns of a kind in table order.
func Columns(kind Kind) []string {
	switch kind {
	case KindStudents:
		return []string{"academic_year_id", "registration_number", "first_name", "last_name", "class_name", "birth_date"}
	case KindEnrollments:
		return []string{"academic_year_id", "student_id", "class_name", "enrolled_on", "fee_cents"}
	case KindPayments:
		return []string{"academic_year_id", "student_id", "amount_cents", "currency", "paid_on", "method", "receipt_number", "receipt_finalized"}
	case KindGrades:
		return []string{"academic_year_id", "student_id", "subject", "term", "score", "max_score", "locked"}
	default:
		return nil
	}
}

// StructuringColumns are the columns every tenant-scoped table must carry.
func StructuringColumns() []string {
	return []string{"id", "tenant_id", "academic_year_id", "status", "version", "created_at", "updated_at"}
}
