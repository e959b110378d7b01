package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"supplier-import-service/internal/models"
)

func TestSuggestMapping_FrenchHeaders(t *testing.T) {
	headers := []string{"Nom produit", "Prix HT", "EAN"}

	mapping := SuggestMapping(headers, nil)

	assert.Equal(t, 0, mapping.ColumnFor(models.FieldProductName))
	assert.Equal(t, 1, mapping.ColumnFor(models.FieldPurchasePrice))
	assert.Equal(t, 2, mapping.ColumnFor(models.FieldEAN))

	confidence := ScoreMapping(headers, mapping)
	assert.Equal(t, 100, confidence[models.FieldProductName])
	assert.Equal(t, 100, confidence[models.FieldPurchasePrice])
	assert.Equal(t, 100, confidence[models.FieldEAN])
	assert.Equal(t, 0, confidence[models.FieldBrand])

	require.NoError(t, ValidateMapping(mapping, ValidationRequireIdentifier))
}

func TestSuggestMapping_KeepsExistingAssignments(t *testing.T) {
	headers := []string{"Libelle", "Prix", "Reference"}
	existing := models.NewColumnMapping()
	existing.Set(models.FieldProductName, 2)

	mapping := SuggestMapping(headers, existing)

	// The user's choice survives even though column 0 also matches.
	assert.Equal(t, 2, mapping.ColumnFor(models.FieldProductName))
	assert.Equal(t, 1, mapping.ColumnFor(models.FieldPurchasePrice))
	// Column 2 is taken, so supplier_reference stays unmapped.
	assert.Equal(t, -1, mapping.ColumnFor(models.FieldSupplierReference))
}

func TestSuggestMapping_ColumnMappedToAtMostOneField(t *testing.T) {
	// "Code EAN" matches both the ean and supplier_reference vocabularies.
	headers := []string{"Code EAN"}

	mapping := SuggestMapping(headers, nil)

	mappedTo := 0
	for _, field := range models.AllCanonicalFields() {
		if mapping.ColumnFor(field) == 0 {
			mappedTo++
		}
	}
	assert.Equal(t, 1, mappedTo)
}

func TestScoreMapping_ManualPickScoresLower(t *testing.T) {
	headers := []string{"Colonne A", "Colonne B"}
	mapping := models.NewColumnMapping()
	mapping.Set(models.FieldProductName, 0)

	confidence := ScoreMapping(headers, mapping)

	assert.Equal(t, 60, confidence[models.FieldProductName])
	assert.Equal(t, 0, confidence[models.FieldPurchasePrice])
}

func TestScoreMapping_QualityIsMeanOverAllFields(t *testing.T) {
	headers := []string{"Nom produit", "Prix HT", "EAN"}
	mapping := SuggestMapping(headers, nil)

	quality := ScoreMapping(headers, mapping).Quality()

	// Three fields at 100, five unmapped at 0.
	assert.Equal(t, 300/8, quality)
}

func TestValidateMapping_RequiredOnly(t *testing.T) {
	mapping := models.NewColumnMapping()
	mapping.Set(models.FieldProductName, 0)
	mapping.Set(models.FieldPurchasePrice, 1)

	assert.NoError(t, ValidateMapping(mapping, ValidationRequiredOnly))
	// No identifier column: the strict policy refuses the same mapping.
	assert.Error(t, ValidateMapping(mapping, ValidationRequireIdentifier))
}

func TestValidateMapping_MissingRequiredField(t *testing.T) {
	mapping := models.NewColumnMapping()
	mapping.Set(models.FieldPurchasePrice, 1)
	mapping.Set(models.FieldEAN, 2)

	err := ValidateMapping(mapping, ValidationRequiredOnly)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(models.FieldProductName))
}

func TestValidateMapping_IdentifierSatisfiedByReference(t *testing.T) {
	mapping := models.NewColumnMapping()
	mapping.Set(models.FieldProductName, 0)
	mapping.Set(models.FieldPurchasePrice, 1)
	mapping.Set(models.FieldSupplierReference, 2)

	assert.NoError(t, ValidateMapping(mapping, ValidationRequireIdentifier))
}
