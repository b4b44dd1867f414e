// Package intern deduplicates heavy or repeated values (strings, decimals,
// free text) behind small integer references stored in field values.
//
// Interning is idempotent without a global lock: a lookup is followed by an
// insert that ignores unique-key conflicts, then by a second lookup. Two
// concurrent callers interning the same value both resolve to the same row.
package intern

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Token returns the lookup key of a string or text value.
func Token(v string) string {
	sum := blake3.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// String interns a short string and returns its id.
func String(tx *gorm.DB, v string) (uint, error) {
	row := models.StringValue{Token: Token(v), Value: v}
	return getOrCreate(tx, "token", row.Token, &row, func(r *models.StringValue) uint { return r.ID })
}

// Text interns free text and returns its id.
func Text(tx *gorm.DB, v string) (uint, error) {
	row := models.TextValue{Token: Token(v), Value: v}
	return getOrCreate(tx, "token", row.Token, &row, func(r *models.TextValue) uint { return r.ID })
}

// Decimal interns a decimal in canonical text form and returns its id.
func Decimal(tx *gorm.DB, v string) (uint, error) {
	row := models.DecimalValue{Value: v}
	return getOrCreate(tx, "value", v, &row, func(r *models.DecimalValue) uint { return r.ID })
}

// LookupString returns the interned string with the given id.
func LookupString(tx *gorm.DB, id uint) (string, error) {
	var row models.StringValue
	if err := lookup(tx, id, &row); err != nil {
		return "", err
	}
	return row.Value, nil
}

// LookupText returns the interned text with the given id.
func LookupText(tx *gorm.DB, id uint) (string, error) {
	var row models.TextValue
	if err := lookup(tx, id, &row); err != nil {
		return "", err
	}
	return row.Value, nil
}

// LookupDecimal returns the interned decimal with the given id.
func LookupDecimal(tx *gorm.DB, id uint) (string, error) {
	var row models.DecimalValue
	if err := lookup(tx, id, &row); err != nil {
		return "", err
	}
	return row.Value, nil
}

func lookup(tx *gorm.DB, id uint, dest any) error {
	if err := tx.Take(dest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("intern: value %d not found: %w", id, err)
		}
		return fmt.Errorf("intern: lookup %d: %w", id, err)
	}
	return nil
}

func getOrCreate[T any](tx *gorm.DB, column, key string, row *T, id func(*T) uint) (uint, error) {
	var existing T
	err := tx.Where(clause.Eq{Column: clause.Column{Name: column}, Value: key}).Take(&existing).Error
	if err == nil {
		return id(&existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("intern: find %s: %w", column, err)
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		DoNothing: true,
	}).Create(row).Error; err != nil {
		return 0, fmt.Errorf("intern: insert: %w", err)
	}

	// The insert may have been skipped by a concurrent writer; read back the
	// stored row instead of trusting the returned id.
	var stored T
	if err := tx.Where(clause.Eq{Column: clause.Column{Name: column}, Value: key}).Take(&stored).Error; err != nil {
		return 0, fmt.Errorf("intern: read back %s: %w", column, err)
	}
	return id(&stored), nil
}
