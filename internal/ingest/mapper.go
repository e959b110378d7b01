package ingest

import (
	"fmt"
	"strings"

	"supplier-import-service/internal/models"
)

// fieldKeywords holds the per-field header vocabularies used for
// auto-suggestion. Order matters for nothing; first matching header wins a
// field, not first matching keyword.
var fieldKeywords = map[models.CanonicalField][]string{
	models.FieldProductName:       {"nom", "name", "libelle", "designation"},
	models.FieldPurchasePrice:     {"prix", "price", "cout", "tarif"},
	models.FieldEAN:               {"ean", "barcode", "gtin", "gencod"},
	models.FieldSupplierReference: {"ref", "sku", "code"},
	models.FieldStockQuantity:     {"stock", "quantite", "quantity", "qte"},
	models.FieldDescription:       {"desc", "detail"},
	models.FieldBrand:             {"marque", "brand", "fabricant"},
	models.FieldCategory:          {"categorie", "category", "famille"},
}

// Confidence scores. Informational only: no import decision depends on them.
const (
	confidenceKeyword  = 100 // header contains one of the field's keywords
	confidenceManual   = 60  // mapped, but no keyword evidence
	confidenceUnmapped = 0
)

// SuggestMapping proposes a column for each canonical field by matching
// lower-cased header labels against the field's keyword set. Fields already
// mapped in existing are left untouched: auto-detection only fills gaps,
// never overwrites a user choice or a loaded profile. Columns claimed by an
// existing assignment are not proposed again.
func SuggestMapping(headers []string, existing models.ColumnMapping) models.ColumnMapping {
	mapping := make(models.ColumnMapping, len(fieldKeywords))
	if existing != nil {
		mapping = existing.Clone()
	}

	taken := make(map[int]bool)
	for _, field := range models.AllCanonicalFields() {
		if col := mapping.ColumnFor(field); col >= 0 {
			taken[col] = true
		}
	}

	for _, field := range models.AllCanonicalFields() {
		if mapping.IsMapped(field) {
			continue
		}
		for col, header := range headers {
			if taken[col] {
				continue
			}
			if headerMatchesField(header, field) {
				mapping.Set(field, col)
				taken[col] = true
				break
			}
		}
	}
	return mapping
}

func headerMatchesField(header string, field models.CanonicalField) bool {
	label := strings.ToLower(strings.TrimSpace(header))
	if label == "" {
		return false
	}
	for _, keyword := range fieldKeywords[field] {
		if strings.Contains(label, keyword) {
			return true
		}
	}
	return false
}

// ScoreMapping computes the informational per-field confidence of a mapping
// against the headers it was derived from: full score when the mapped
// header carries one of the field's keywords, a reduced score for a mapped
// column with no keyword evidence (a manual pick), zero when unmapped.
func ScoreMapping(headers []string, mapping models.ColumnMapping) models.ConfidenceMap {
	scores := make(models.ConfidenceMap, len(fieldKeywords))
	for _, field := range models.AllCanonicalFields() {
		col := mapping.ColumnFor(field)
		switch {
		case col < 0:
			scores[field] = confidenceUnmapped
		case col < len(headers) && headerMatchesField(headers[col], field):
			scores[field] = confidenceKeyword
		default:
			scores[field] = confidenceManual
		}
	}
	return scores
}

// ValidationPolicy names one of the two mapping-validity rules the
// surrounding system uses. Call sites intentionally disagree on which one
// applies, so both exist as explicit policies.
type ValidationPolicy int

const (
	// ValidationRequiredOnly demands only the two required fields.
	ValidationRequiredOnly ValidationPolicy = iota
	// ValidationRequireIdentifier additionally demands at least one of the
	// product-identifier fields (EAN or supplier reference). Used before an
	// import is launched.
	ValidationRequireIdentifier
)

// ValidateMapping reports whether the mapping satisfies the given policy,
// returning a descriptive error naming what is missing.
func ValidateMapping(mapping models.ColumnMapping, policy ValidationPolicy) error {
	var missing []string
	for _, field := range models.RequiredCanonicalFields() {
		if !mapping.IsMapped(field) {
			missing = append(missing, string(field))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required fields not mapped: %s", strings.Join(missing, ", "))
	}

	if policy == ValidationRequireIdentifier {
		hasIdentifier := false
		for _, field := range models.IdentifierCanonicalFields() {
			if mapping.IsMapped(field) {
				hasIdentifier = true
				break
			}
		}
		if !hasIdentifier {
			return fmt.Errorf("at least one identifier field (ean or supplier_reference) must be mapped")
		}
	}
	return nil
}
