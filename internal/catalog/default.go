package catalog

// defaultFields describes the account-level workbooks the pipeline was built
// for: one row per account/product line, one column per month.
var defaultFields = []Field{
	{Name: "Account", Shared: true, Kind: KindString},
	{Name: "Account Name", Shared: true, Kind: KindString},
	{Name: "Region", Shared: true, Kind: KindString},
	{Name: "Country", Shared: true, Kind: KindString},
	{Name: "Product", Shared: true, Kind: KindString},
	{Name: "Product Code", Shared: true, Kind: KindLong},
	{Name: "Channel", Shared: true, Kind: KindString},
	{Name: "Currency", Shared: true, Kind: KindString},
	{Name: "Segment", Shared: true, Kind: KindString},

	// Attribute columns: known, typed, but not part of the identity and not
	// periods either. Melt drops them.
	{Name: "Unit Price", Shared: false, Kind: KindFloat},
	{Name: "Units", Shared: false, Kind: KindInteger},
	{Name: "Total", Shared: false, Kind: KindFloat},
	{Name: "Notes", Shared: false, Kind: KindString},
}

var defaultCatalog = MustNew(defaultFields...)

// Default returns the built-in catalog.
func Default() *Catalog { return defaultCatalog }
