package domain

import "strconv"

// OrderBook is the order book of one token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry is one price level.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid returns the highest bid, 0 on an empty book.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the lowest ask, 0 on an empty book.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Spread returns ask - bid.
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// AskDepthUpTo sums ask shares priced at or below maxPrice.
func (ob OrderBook) AskDepthUpTo(maxPrice float64) float64 {
	var total float64
	for _, a := range ob.Asks {
		if a.Price > maxPrice+1e-9 {
			break
		}
		total += a.Size
	}
	return total
}

// BestAskDepth is the share count resting at the best ask level.
func (ob OrderBook) BestAskDepth() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.AskDepthUpTo(ob.Asks[0].Price)
}

// ParsePrice converts a price string to float64.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
