package models

// Wine represents one catalog entry. The catalog is owned by the store; the
// recommendation engines treat wines as read-only input.
type Wine struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Region        string  `json:"region"`
	GrapeVariety  string  `json:"grape_variety"`
	Price         float64 `json:"price"`
	QualityScore  float64 `json:"quality_score"`
	VintageYear   int     `json:"vintage_year"`
	StockQuantity int     `json:"stock_quantity"`
	Description   string  `json:"description,omitempty"`
}

// InStock reports whether the wine can currently be provisioned. Stock is a
// soft re-ranking signal, never a hard filter.
func (w *Wine) InStock() bool {
	return w.StockQuantity > 0
}
