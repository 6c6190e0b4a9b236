// Package validate applies an entity's declarative rule set to parsed
// rows, independent of any server-side checks.
package validate

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wms-admin/gateway/internal/importcfg"
	"github.com/wms-admin/gateway/internal/models"
)

// Validate evaluates every rule against every row. It is a pure function
// of (rows, config): identical inputs always yield the identical error
// sequence, ordered by row index and then by rule declaration order.
//
// All violations are collected, never short-circuited, so one row can
// carry several errors. Uniqueness is never resolved locally; it is the
// authoritative store's call and is deferred to the server.
func Validate(rows []models.ParsedRow, cfg *importcfg.Config) []models.ImportError {
	ordered := make([]models.ParsedRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RowIndex < ordered[j].RowIndex
	})

	var errs []models.ImportError
	for _, row := range ordered {
		for _, rule := range cfg.ValidationRules {
			if rule.Type == models.RuleUnique {
				continue
			}
			if msg, ok := check(row, rule, cfg); !ok {
				errs = append(errs, models.ImportError{
					RowIndex:     row.RowIndex,
					Field:        rule.Field,
					ErrorMessage: msg,
					RawData:      row.Values,
				})
			}
		}
	}
	return errs
}

func check(row models.ParsedRow, rule models.ValidationRule, cfg *importcfg.Config) (string, bool) {
	value := strings.TrimSpace(row.Values[rule.Field])

	switch rule.Type {
	case models.RuleRequired:
		if value == "" {
			return rule.Message, false
		}
	case models.RuleMaxLength:
		// Empty values are the required rule's concern.
		if value != "" && utf8.RuneCountInString(value) > rule.Value {
			return rule.Message, false
		}
	case models.RuleFormat:
		if value == "" {
			return "", true
		}
		field, ok := cfg.FieldByKey(rule.Field)
		if !ok {
			return "", true
		}
		if !matchesType(value, field.Type) {
			return rule.Message, false
		}
	}
	return "", true
}

// matchesType applies the field-type-dependent format semantics: dates
// must parse as ISO YYYY-MM-DD, numbers as a finite value.
func matchesType(value string, fieldType models.FieldType) bool {
	switch fieldType {
	case models.FieldTypeDate:
		_, err := time.Parse("2006-01-02", value)
		return err == nil
	case models.FieldTypeNumber:
		f, err := strconv.ParseFloat(value, 64)
		return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
	case models.FieldTypeBoolean:
		_, err := strconv.ParseBool(strings.ToLower(value))
		return err == nil
	default:
		return true
	}
}
