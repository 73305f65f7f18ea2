package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/models"
)

// ErrIncompatible blocks a batch built against a different schema.
var ErrIncompatible = errors.New("schema incompatible")

// Inspector introspects the authoritative store
type Inspector interface {
	// Tables lists existing table names
	Tables(ctx context.Context) ([]string, error)
	// Columns lists the columns of a table, empty if it does not exist
	Columns(ctx context.Context, table string) ([]string, error)
}

// TableColumns is a table as described by a replica.
type TableColumns struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

// TableComparison is the diagnostic for one table.
type TableComparison struct {
	Table                 string   `json:"table"`
	MissingColumns        []string `json:"missing_columns"`
	ExtraColumns          []string `json:"extra_columns"`
	ExistsInReplica       bool     `json:"exists_in_replica"`
	ExistsInAuthoritative bool     `json:"exists_in_authoritative"`
}

// Validator compares replica schemas with the canonical definition.
type Validator struct {
	provider  *Provider
	inspector Inspector
}

// NewValidator creates a validator
func NewValidator(provider *Provider, inspector Inspector) *Validator {
	return &Validator{provider: provider, inspector: inspector}
}

// Provider returns the canonical definition source
func (v *Validator) Provider() *Provider {
	return v.provider
}

// Validate checks a replica fingerprint and version. The result is invalid
// when it carries at least one error; warnings never block.
func (v *Validator) Validate(ctx context.Context, fingerprint string, version int64) (*models.SchemaValidationResult, error) {
	canonical := v.provider.Canonical()

	result := &models.SchemaValidationResult{
		CanonicalFingerprint: canonical.Fingerprint,
		CanonicalVersion:     canonical.Version,
		ReplicaFingerprint:   fingerprint,
		ReplicaVersion:       version,
		Errors:               []string{},
		Warnings:             []string{},
	}

	switch {
	case fingerprint == "":
		result.Errors = append(result.Errors, "schema fingerprint is missing")
	case !strings.EqualFold(fingerprint, canonical.Fingerprint):
		result.Errors = append(result.Errors,
			fmt.Sprintf("schema fingerprint %s does not match canonical %s", fingerprint, canonical.Fingerprint))
	}

	if version != canonical.Version {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("replica schema version %d differs from canonical version %d", version, canonical.Version))
	}

	tables, err := v.tableSet(ctx)
	if err != nil {
		return nil, err
	}

	for _, kind := range entity.All() {
		table := kind.Table()
		if !tables[table] {
			result.Errors = append(result.Errors, fmt.Sprintf("essential table %s is missing", table))
			continue
		}

		cols, err := v.inspector.Columns(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
		}
		have := toSet(cols)
		for _, c := range entity.StructuringColumns() {
			if !have[c] {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("table %s is missing structuring column %s", table, c))
			}
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

// Compare reports, per table, where it exists and how its columns differ
// from the authoritative store. Essential tables are always included.
func (v *Validator) Compare(ctx context.Context, replica []TableColumns) ([]TableComparison, error) {
	tables, err := v.tableSet(ctx)
	if err != nil {
		return nil, err
	}

	replicaCols := make(map[string][]string, len(replica))
	for _, t := range replica {
		replicaCols[t.Table] = t.Columns
	}

	names := make(map[string]bool)
	for _, kind := range entity.All() {
		names[kind.Table()] = true
	}
	for name := range replicaCols {
		names[name] = true
	}

	out := make([]TableComparison, 0, len(names))
	for name := range names {
		cmp := TableComparison{
			Table:                 name,
			MissingColumns:        []string{},
			ExtraColumns:          []string{},
			ExistsInAuthoritative: tables[name],
		}
		cols, inReplica := replicaCols[name]
		cmp.ExistsInReplica = inReplica

		var authCols []string
		if cmp.ExistsInAuthoritative {
			authCols, err = v.inspector.Columns(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("failed to inspect table %s: %w", name, err)
			}
		}

		if cmp.ExistsInReplica && cmp.ExistsInAuthoritative {
			cmp.MissingColumns = difference(authCols, cols)
			cmp.ExtraColumns = difference(cols, authCols)
		}

		out = append(out, cmp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out, nil
}

// Gate returns ErrIncompatible unless the result is valid
func Gate(result *models.SchemaValidationResult) error {
	if result == nil {
		return fmt.Errorf("%w: no validation result", ErrIncompatible)
	}
	if !result.IsValid {
		return fmt.Errorf("%w: %s", ErrIncompatible, strings.Join(result.Errors, "; "))
	}
	return nil
}

func (v *Validator) tableSet(ctx context.Context) (map[string]bool, error) {
	tables, err := v.inspector.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect tables: %w", err)
	}
	return toSet(tables), nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// difference returns the sorted items of a that are not in b
func difference(a, b []string) []string {
	in := toSet(b)
	out := []string{}
	for _, it := range a {
		if !in[it] {
			out = append(out, it)
		}
	}
	sort.Strings(out)
	return out
}
