package tracker

import "time"

// Product carries the subject fields shared by product-scoped events.
// ProductID is required; everything else is optional context for scoring.
type Product struct {
	ProductID      string
	ShopID         string
	ProductName    string
	Category       string
	Subcategory    string
	Subsubcategory string
	Brand          string
	Price          float64
	Source         string
}

type ClickParams struct {
	Product
}

type ViewParams struct {
	Product
	// Duration is how long the product page was visible, if known.
	Duration time.Duration
}

type CartParams struct {
	Product
	Quantity int
}

type FavoriteParams struct {
	Product
}

type PurchaseParams struct {
	Product
	Quantity   int
	TotalValue float64
	OrderID    string
}

type SearchParams struct {
	Query       string
	ResultCount int
	Source      string
}

func (p Product) event(t EventType) Event {
	return Event{
		Type:           t,
		ProductID:      p.ProductID,
		ShopID:         p.ShopID,
		ProductName:    p.ProductName,
		Category:       p.Category,
		Subcategory:    p.Subcategory,
		Subsubcategory: p.Subsubcategory,
		Brand:          p.Brand,
		Price:          p.Price,
		Source:         p.Source,
	}
}
