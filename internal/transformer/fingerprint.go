// Package transformer holds the per-sheet table transforms: the row
// fingerprint that identifies a record across sheets, and the melt that
// reshapes period columns into rows.
package transformer

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strings"

	"sheetetl/internal/catalog"
	"sheetetl/internal/frame"
)

// FingerprintColumn is the default name of the fingerprint column.
const FingerprintColumn = "fingerprint"

// Fingerprint modes.
const (
	// ModeCompat concatenates canonical values with no separator and renders
	// nil as "". Fingerprints match those of existing unified tables.
	ModeCompat = "compat"
	// ModeStrict writes "name=value" components joined by 0x1f and renders
	// nil as a NUL byte, so nil differs from "" and values cannot run together.
	ModeStrict = "strict"
)

// Fingerprint algorithms.
const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA256 = "sha256"
)

var (
	// ErrNoIdentityColumns means none of the catalog's shared columns are in
	// the table; every row gets the fingerprint of the empty string.
	ErrNoIdentityColumns = errors.New("no identity columns present")
	// ErrAllNullIdentity means some rows have nil in every identity column
	// and therefore share one fingerprint.
	ErrAllNullIdentity = errors.New("rows with all-null identity columns")
)

// FingerprintSpec configures the fingerprint.
//
// JSON shape in pipeline configs:
//
//	"fingerprint": {"mode": "compat", "algorithm": "md5"}
type FingerprintSpec struct {
	// Mode is ModeCompat (default) or ModeStrict.
	Mode string `json:"mode,omitempty"`
	// Algorithm is AlgorithmMD5 (default) or AlgorithmSHA256.
	Algorithm string `json:"algorithm,omitempty"`
	// TargetField is the output column; default FingerprintColumn.
	TargetField string `json:"target_field,omitempty"`
}

// Validate reports unknown modes and algorithms.
func (s FingerprintSpec) Validate() error {
	switch s.Mode {
	case "", ModeCompat, ModeStrict:
	default:
		return fmt.Errorf("unknown fingerprint mode %q (want %s or %s)", s.Mode, ModeCompat, ModeStrict)
	}
	switch s.Algorithm {
	case "", AlgorithmMD5, AlgorithmSHA256:
	default:
		return fmt.Errorf("unknown fingerprint algorithm %q (want %s or %s)", s.Algorithm, AlgorithmMD5, AlgorithmSHA256)
	}
	return nil
}

func (s FingerprintSpec) target() string {
	if s.TargetField == "" {
		return FingerprintColumn
	}
	return s.TargetField
}

func (s FingerprintSpec) newHash() hash.Hash {
	if s.Algorithm == AlgorithmSHA256 {
		return sha256.New()
	}
	return md5.New()
}

// FingerprintStats describes one Apply call.
type FingerprintStats struct {
	Rows int
	// IdentityColumns are the hashed columns, in hashing order.
	IdentityColumns []string
	// AllNullIdentity counts rows whose identity columns are all nil.
	AllNullIdentity int
}

// Warnings converts the stats into warning errors; nil when clean.
func (s FingerprintStats) Warnings() []error {
	var out []error
	if len(s.IdentityColumns) == 0 && s.Rows > 0 {
		out = append(out, ErrNoIdentityColumns)
	}
	if len(s.IdentityColumns) > 0 && s.AllNullIdentity > 0 {
		out = append(out, fmt.Errorf("%w: %d of %d", ErrAllNullIdentity, s.AllNullIdentity, s.Rows))
	}
	return out
}

// Fingerprinter adds a content fingerprint column to tables.
type Fingerprinter struct {
	Catalog *catalog.Catalog
	Spec    FingerprintSpec
}

// IdentityColumns returns the table columns that are shared catalog
// columns, sorted by name. Sorting makes the fingerprint independent of the
// physical column order.
func (f *Fingerprinter) IdentityColumns(t *frame.Table) []string {
	var cols []string
	for _, name := range f.Catalog.SharedColumns() {
		if t.Has(name) {
			cols = append(cols, name)
		}
	}
	sort.Strings(cols)
	return cols
}

// Apply returns t with the fingerprint column set for every row. An existing
// column of that name is replaced.
func (f *Fingerprinter) Apply(t *frame.Table) (*frame.Table, FingerprintStats, error) {
	if err := f.Spec.Validate(); err != nil {
		return nil, FingerprintStats{}, err
	}
	cols := f.IdentityColumns(t)
	stats := FingerprintStats{Rows: t.Len(), IdentityColumns: cols}
	strict := f.Spec.Mode == ModeStrict

	h := f.Spec.newHash()
	var b strings.Builder
	var sum []byte

	out, err := t.WithColumn(frame.Field{Name: f.Spec.target(), Type: frame.TypeString}, func(r frame.Row) (any, error) {
		b.Reset()
		nulls := 0
		for i, c := range cols {
			v := r.Get(c)
			if v == nil {
				nulls++
			}
			if strict {
				if i > 0 {
					b.WriteByte('\x1f')
				}
				b.WriteString(c)
				b.WriteByte('=')
				if v == nil {
					b.WriteByte('\x00')
					continue
				}
			}
			frame.AppendCanonical(&b, v)
		}
		if len(cols) > 0 && nulls == len(cols) {
			stats.AllNullIdentity++
		}
		h.Reset()
		h.Write([]byte(b.String()))
		sum = h.Sum(sum[:0])
		return hex.EncodeToString(sum), nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("fingerprint: %w", err)
	}
	return out, stats, nil
}
