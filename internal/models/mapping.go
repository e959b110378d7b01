package models

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalField is one of the fixed product attributes an imported column
// can be mapped to. The set is closed: suppliers cannot add fields at runtime.
type CanonicalField string

const (
	FieldProductName       CanonicalField = "product_name"
	FieldPurchasePrice     CanonicalField = "purchase_price"
	FieldEAN               CanonicalField = "ean"
	FieldSupplierReference CanonicalField = "supplier_reference"
	FieldStockQuantity     CanonicalField = "stock_quantity"
	FieldDescription       CanonicalField = "description"
	FieldBrand             CanonicalField = "brand"
	FieldCategory          CanonicalField = "category"
)

// AllCanonicalFields lists every canonical field in display order.
func AllCanonicalFields() []CanonicalField {
	return []CanonicalField{
		FieldProductName,
		FieldPurchasePrice,
		FieldEAN,
		FieldSupplierReference,
		FieldStockQuantity,
		FieldDescription,
		FieldBrand,
		FieldCategory,
	}
}

// RequiredCanonicalFields returns the fields every import must map.
func RequiredCanonicalFields() []CanonicalField {
	return []CanonicalField{FieldProductName, FieldPurchasePrice}
}

// IdentifierCanonicalFields returns the fields that identify a product for
// matching against the existing catalog.
func IdentifierCanonicalFields() []CanonicalField {
	return []CanonicalField{FieldEAN, FieldSupplierReference}
}

// ColumnMapping maps canonical fields to source column indexes. A field
// absent from the map (or mapped to nil) is unmapped.
type ColumnMapping map[CanonicalField]*int

// NewColumnMapping returns an empty mapping.
func NewColumnMapping() ColumnMapping {
	return make(ColumnMapping)
}

// Set assigns column index col to field. Any other field currently pointing
// at col is cleared so that a column never feeds two fields at once.
func (m ColumnMapping) Set(field CanonicalField, col int) {
	for other, idx := range m {
		if other != field && idx != nil && *idx == col {
			m[other] = nil
		}
	}
	c := col
	m[field] = &c
}

// Clear unmaps field.
func (m ColumnMapping) Clear(field CanonicalField) {
	m[field] = nil
}

// ColumnFor returns the column index mapped to field, or -1 when unmapped.
func (m ColumnMapping) ColumnFor(field CanonicalField) int {
	if idx, ok := m[field]; ok && idx != nil {
		return *idx
	}
	return -1
}

// IsMapped reports whether field has a column assigned.
func (m ColumnMapping) IsMapped(field CanonicalField) bool {
	return m.ColumnFor(field) >= 0
}

// Clone returns a deep copy of the mapping.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for field, idx := range m {
		if idx == nil {
			out[field] = nil
			continue
		}
		c := *idx
		out[field] = &c
	}
	return out
}

// ToJSONB serializes the mapping for JSONB storage. Unmapped fields are
// omitted.
func (m ColumnMapping) ToJSONB() JSONB {
	out := make(JSONB, len(m))
	for field, idx := range m {
		if idx != nil {
			out[string(field)] = *idx
		}
	}
	return out
}

// ColumnMappingFromJSONB rebuilds a mapping persisted with ToJSONB.
func ColumnMappingFromJSONB(data JSONB) ColumnMapping {
	m := make(ColumnMapping, len(data))
	for key, value := range data {
		if c, ok := jsonbToInt(value); ok {
			m[CanonicalField(key)] = &c
		}
	}
	return m
}

// jsonbToInt accepts both freshly-stored ints and the float64 every number
// becomes after a database read.
func jsonbToInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// ConfidenceMap carries the 0-100 certainty score of each auto-matched
// field. Informational only: no import decision depends on it.
type ConfidenceMap map[CanonicalField]int

// Quality returns the arithmetic mean of per-field scores across every
// canonical field, mapped or not.
func (c ConfidenceMap) Quality() int {
	fields := AllCanonicalFields()
	if len(fields) == 0 {
		return 0
	}
	sum := 0
	for _, field := range fields {
		sum += c[field]
	}
	return sum / len(fields)
}

// FilterConfig describes which rows and columns of a catalog are excluded
// from an import.
type FilterConfig struct {
	SkipRowsTop     int      `json:"skipRowsTop"`
	SkipRowsBottom  int      `json:"skipRowsBottom"`
	SkipPatterns    []string `json:"skipPatterns"`
	ExcludedColumns []string `json:"excludedColumns"`
}

// IsColumnExcluded reports whether the header label is excluded.
func (f *FilterConfig) IsColumnExcluded(label string) bool {
	for _, excluded := range f.ExcludedColumns {
		if excluded == label {
			return true
		}
	}
	return false
}

// ToJSONB serializes the filter config for JSONB storage.
func (f *FilterConfig) ToJSONB() JSONB {
	patterns := make([]interface{}, 0, len(f.SkipPatterns))
	for _, p := range f.SkipPatterns {
		patterns = append(patterns, p)
	}
	columns := make([]interface{}, 0, len(f.ExcludedColumns))
	for _, c := range f.ExcludedColumns {
		columns = append(columns, c)
	}
	return JSONB{
		"skipRowsTop":     f.SkipRowsTop,
		"skipRowsBottom":  f.SkipRowsBottom,
		"skipPatterns":    patterns,
		"excludedColumns": columns,
	}
}

// FilterConfigFromJSONB rebuilds a filter config persisted with ToJSONB.
func FilterConfigFromJSONB(data JSONB) FilterConfig {
	cfg := FilterConfig{}
	if v, ok := jsonbToInt(data["skipRowsTop"]); ok {
		cfg.SkipRowsTop = v
	}
	if v, ok := jsonbToInt(data["skipRowsBottom"]); ok {
		cfg.SkipRowsBottom = v
	}
	if v, ok := data["skipPatterns"].([]interface{}); ok {
		for _, p := range v {
			if s, ok := p.(string); ok {
				cfg.SkipPatterns = append(cfg.SkipPatterns, s)
			}
		}
	}
	if v, ok := data["excludedColumns"].([]interface{}); ok {
		for _, c := range v {
			if s, ok := c.(string); ok {
				cfg.ExcludedColumns = append(cfg.ExcludedColumns, s)
			}
		}
	}
	return cfg
}

// MappingProfile is a saved, supplier-scoped combination of filter config
// and column mapping. At most one profile per supplier may be the default;
// saving a new default demotes the previous one.
type MappingProfile struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID    string     `gorm:"type:varchar(255);not null;index:idx_mapping_profiles_tenant" json:"tenantId"`
	SupplierID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_mapping_profiles_supplier" json:"supplierId"`
	ProfileName string     `gorm:"type:varchar(255);not null" json:"profileName"`
	SourceType  SourceType `gorm:"type:varchar(20);not null;default:'csv'" json:"sourceType"`

	FilterConfig  JSONB `gorm:"type:jsonb;default:'{}'" json:"filterConfig"`
	ColumnMapping JSONB `gorm:"type:jsonb;default:'{}'" json:"columnMapping"`

	IsDefault bool `gorm:"default:false;index:idx_mapping_profiles_default" json:"isDefault"`

	CreatedBy string    `gorm:"type:varchar(255)" json:"createdBy,omitempty"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for MappingProfile
func (MappingProfile) TableName() string {
	return "mapping_profiles"
}

// GetColumnMapping returns the stored column mapping as a structured value.
func (p *MappingProfile) GetColumnMapping() ColumnMapping {
	return ColumnMappingFromJSONB(p.ColumnMapping)
}

// SetColumnMapping stores a structured column mapping.
func (p *MappingProfile) SetColumnMapping(m ColumnMapping) {
	p.ColumnMapping = m.ToJSONB()
}

// GetFilterConfig returns the stored filter config as a structured value.
func (p *MappingProfile) GetFilterConfig() FilterConfig {
	return FilterConfigFromJSONB(p.FilterConfig)
}

// SetFilterConfig stores a structured filter config.
func (p *MappingProfile) SetFilterConfig(cfg FilterConfig) {
	p.FilterConfig = cfg.ToJSONB()
}
