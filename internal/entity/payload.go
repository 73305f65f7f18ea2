package entity

// Payload is the typed body of a change operation. Implementations are
// the per-kind structs below; they are produced only by Decode.
type Payload interface {
	// Kind returns the entity the payload belongs to.
	Kind() Kind
	// Tenant returns the tenant declared by the replica, empty if none.
	Tenant() string
	// BaseVersion returns the version counter the replica edited from.
	BaseVersion() (int64, bool)
	// Columns returns the writable column values keyed by column name.
	// Identity, tenant and bookkeeping columns are never included.
	Columns() map[string]any
}

// Base holds the fields shared by every payload.
type Base struct {
	Version        *int64 `json:"version,omitempty" validate:"omitempty,gte=0"`
	TenantID       string `json:"tenant_id,omitempty" validate:"omitempty,max=64"`
	AcademicYearID string `json:"academic_year_id" validate:"required,max=64"`
}

// Tenant returns the declared tenant id
func (b Base) Tenant() string { return b.TenantID }

// BaseVersion returns the replica's base version if it sent one
func (b Base) BaseVersion() (int64, bool) {
	if b.Version == nil {
		return 0, false
	}
	return *b.Version, true
}

// StudentPayload is a learner registered with a tenant for an academic year.
type StudentPayload struct {
	BirthDate          *string `json:"birth_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	RegistrationNumber string  `json:"registration_number" validate:"required,max=32"`
	FirstName          string  `json:"first_name" validate:"required,max=100"`
	LastName           string  `json:"last_name" validate:"required,max=100"`
	ClassName          string  `json:"class_name,omitempty" validate:"omitempty,max=32"`
	Base
}

func (p *StudentPayload) Kind() Kind { return KindStudents }

func (p *StudentPayload) Columns() map[string]any {
	return map[string]any{
		"academic_year_id":    p.AcademicYearID,
		"registration_number": p.RegistrationNumber,
		"first_name":          p.FirstName,
		"last_name":           p.LastName,
		"class_name":          p.ClassName,
		"birth_date":          optionalString(p.BirthDate),
	}
}

// EnrollmentPayload places a student in a class and carries the fee due.
type EnrollmentPayload struct {
	StudentID  string `json:"student_id" validate:"required,max=64"`
	ClassName  string `json:"class_name" validate:"required,max=32"`
	EnrolledOn string `json:"enrolled_on" validate:"required,datetime=2006-01-02"`
	Base
	FeeCents int64 `json:"fee_cents" validate:"gte=0"`
}

func (p *EnrollmentPayload) Kind() Kind { return KindEnrollments }

func (p *EnrollmentPayload) Columns() map[string]any {
	return map[string]any{
		"academic_year_id": p.AcademicYearID,
		"student_id":       p.StudentID,
		"class_name":       p.ClassName,
		"enrolled_on":      p.EnrolledOn,
		"fee_cents":        p.FeeCents,
	}
}

// PaymentPayload is money received from a student. Once its receipt is
// finalized the payment is immutable.
type PaymentPayload struct {
	ReceiptNumber *string `json:"receipt_number,omitempty" validate:"omitempty,max=32"`
	StudentID     string  `json:"student_id" validate:"required,max=64"`
	Currency      string  `json:"currency" validate:"required,len=3,uppercase"`
	PaidOn        string  `json:"paid_on" validate:"required,datetime=2006-01-02"`
	Method        string  `json:"method" validate:"required,oneof=cash card transfer mobile"`
	Base
	AmountCents      int64 `json:"amount_cents" validate:"gt=0"`
	ReceiptFinalized bool  `json:"receipt_finalized"`
}

func (p *PaymentPayload) Kind() Kind { return KindPayments }

func (p *PaymentPayload) Columns() map[string]any {
	return map[string]any{
		"academic_year_id":  p.AcademicYearID,
		"student_id":        p.StudentID,
		"amount_cents":      p.AmountCents,
		"currency":          p.Currency,
		"paid_on":           p.PaidOn,
		"method":            p.Method,
		"receipt_number":    optionalString(p.ReceiptNumber),
		"receipt_finalized": boolToInt(p.ReceiptFinalized),
	}
}

// GradePayload is a mark obtained by a student in a subject for a term.
type GradePayload struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	Subject   string `json:"subject" validate:"required,max=64"`
	Term      string `json:"term" validate:"required,max=16"`
	Base
	Score    float64 `json:"score" validate:"gte=0,ltefield=MaxScore"`
	MaxScore float64 `json:"max_score" validate:"gt=0"`
	Locked   bool    `json:"locked"`
}

func (p *GradePayload) Kind() Kind { return KindGrades }

func (p *GradePayload) Columns() map[string]any {
	return map[string]any{
		"academic_year_id": p.AcademicYearID,
		"student_id":       p.StudentID,
		"subject":          p.Subject,
		"term":             p.Term,
		"score":            p.Score,
		"max_score":        p.MaxScore,
		"locked":           boolToInt(p.Locked),
	}
}

func optionalString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
