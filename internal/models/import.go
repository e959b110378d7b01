package models

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string         `json:"name"`
	Field       CanonicalField `json:"field"`
	Description string         `json:"description"`
	Required    bool           `json:"required"`
	Type        string         `json:"type"` // string, number
	Example     string         `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity  string                 `json:"entity"`
	Version string                 `json:"version"`
	Columns []ImportTemplateColumn `json:"columns"`
}

// CatalogImportColumns returns the column definitions for supplier catalog
// import, one per canonical field.
func CatalogImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: "name", Field: FieldProductName, Description: "Product name", Required: true, Type: "string", Example: "Chaise de bureau"},
		{Name: "price", Field: FieldPurchasePrice, Description: "Purchase price (net)", Required: true, Type: "number", Example: "49.90"},
		{Name: "ean", Field: FieldEAN, Description: "EAN-13 / GTIN barcode", Required: false, Type: "string", Example: "1234567890123"},
		{Name: "reference", Field: FieldSupplierReference, Description: "Supplier reference or SKU", Required: false, Type: "string", Example: "CHA-0042"},
		{Name: "stock", Field: FieldStockQuantity, Description: "Available stock quantity", Required: false, Type: "number", Example: "12"},
		{Name: "description", Field: FieldDescription, Description: "Product description", Required: false, Type: "string", Example: ""},
		{Name: "brand", Field: FieldBrand, Description: "Brand name", Required: false, Type: "string", Example: ""},
		{Name: "category", Field: FieldCategory, Description: "Category label", Required: false, Type: "string", Example: "Mobilier"},
	}
}

// CatalogImportTemplate returns the template definition for supplier catalogs
func CatalogImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "supplier-catalog",
		Version: "1.0",
		Columns: CatalogImportColumns(),
	}
}
