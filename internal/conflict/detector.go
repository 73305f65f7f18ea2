// Package conflict decides whether an incoming replica change may be applied
// on top of the authoritative record. The authoritative state always wins:
// the detector only reports, it never merges.
package conflict

import (
	"fmt"
	"time"

	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
)

// ReasonDeletedServerSide is reported when the authoritative record is gone.
const ReasonDeletedServerSide = "deleted server-side"

// Incoming describes the replica side of a change.
type Incoming struct {
	BaseTimestamp *time.Time // local_updated_at sent by the replica
	BaseVersion   *int64
	Columns       map[string]any
	Operation     models.OperationType
	Kind          entity.Kind
}

// Result is the verdict for one change.
type Result struct {
	Reason      string
	HasConflict bool
}

func conflict(format string, args ...any) Result {
	return Result{HasConflict: true, Reason: fmt.Sprintf(format, args...)}
}

// Rule is an entity-specific business check. It returns a reason and true
// when the change must be refused.
type Rule func(existing *models.Record, in Incoming) (string, bool)

// Detector evaluates conflict rules in a fixed order: absence, timestamp,
// version, business rules. The first match wins.
type Detector struct{}

// NewDetector creates a detector
func NewDetector() *Detector {
	return &Detector{}
}

// Detect evaluates all rules against the authoritative record, which may be nil.
func (d *Detector) Detect(existing *models.Record, in Incoming) Result {
	if r := d.DetectDeletion(existing); r.HasConflict {
		return r
	}

	if in.BaseTimestamp != nil && existing.UpdatedAt.After(*in.BaseTimestamp) {
		return conflict("server record modified at %s after local base %s",
			existing.UpdatedAt.UTC().Format(time.RFC3339Nano),
			in.BaseTimestamp.UTC().Format(time.RFC3339Nano))
	}

	if in.BaseVersion != nil && existing.Version > *in.BaseVersion {
		return conflict("server version %d is newer than local base version %d",
			existing.Version, *in.BaseVersion)
	}

	return d.DetectRules(existing, in)
}

// DetectRules evaluates only the entity's business rules against an existing
// record. Deletes go through here: they ignore timestamps and versions but
// must not remove a finalized or locked record.
func (d *Detector) DetectRules(existing *models.Record, in Incoming) Result {
	if existing == nil {
		return Result{}
	}
	for _, rule := range rulesFor(in.Kind) {
		if reason, fired := rule(existing, in); fired {
			return Result{HasConflict: true, Reason: reason}
		}
	}
	return Result{}
}

// DetectDeletion reports a conflict when the authoritative record is absent.
// It is the cheap check run before an update or delete touches the row.
func (d *Detector) DetectDeletion(existing *models.Record) Result {
	if existing == nil {
		return Result{HasConflict: true, Reason: ReasonDeletedServerSide}
	}
	return Result{}
}

// Identical reports whether every incoming column equals the authoritative
// value. An insert replayed with identical data is not a conflict.
func Identical(existing *models.Record, columns map[string]any) bool {
	if existing == nil || existing.Deleted() {
		return false
	}
	for k, v := range columns {
		if !equalValue(existing.Fields[k], v) {
			return false
		}
	}
	return true
}

func rulesFor(kind entity.Kind) []Rule {
	switch kind {
	case entity.KindPayments:
		return []Rule{noRevival, finalizedReceipt}
	case entity.KindGrades:
		return []Rule{noRevival, lockedGrade}
	case entity.KindStudents, entity.KindEnrollments:
		return []Rule{noRevival}
	default:
		return nil
	}
}

func noRevival(existing *models.Record, in Incoming) (string, bool) {
	if existing.Deleted() && in.Operation != models.OperationDelete {
		return "record was deleted server-side and cannot be revived", true
	}
	return "", false
}

func finalizedReceipt(existing *models.Record, _ Incoming) (string, bool) {
	if truthy(existing.Fields["receipt_finalized"]) {
		return fmt.Sprintf("payment has a finalized receipt %v and cannot be altered", existing.Fields["receipt_number"]), true
	}
	return "", false
}

func lockedGrade(existing *models.Record, _ Incoming) (string, bool) {
	if truthy(existing.Fields["locked"]) {
		return "grade is locked for the term and cannot be altered", true
	}
	return "", false
}
