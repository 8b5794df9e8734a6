package polymarket

import "encoding/json"

// Raw Polymarket API DTOs, used only inside this package.
// mapping.go converts them to domain types.

// --- CLOB API ---

// orderBookRequest is one item of the POST /books batch body.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse is one item of the POST /books response.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw is a raw price level; strings keep precision.
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaEvent is a game with its nested markets (GET /events).
type gammaEvent struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	EndDate       string        `json:"endDate"`
	NegRisk       bool          `json:"negRisk"`
	EnableNegRisk bool          `json:"enableNegRisk"`
	Markets       []gammaMarket `json:"markets"`
}

// gammaMarket is market metadata. Gamma returns outcomes, outcomePrices and
// clobTokenIds as JSON arrays encoded in strings.
type gammaMarket struct {
	ID               string      `json:"id"`
	ConditionID      string      `json:"conditionId"`
	Question         string      `json:"question"`
	EndDate          string      `json:"endDate"`
	Outcomes         string      `json:"outcomes"`
	OutcomePrices    string      `json:"outcomePrices"`
	ClobTokenIDs     string      `json:"clobTokenIds"`
	SportsMarketType string      `json:"sportsMarketType"`
	Line             json.Number `json:"line"`
	NegRisk          bool        `json:"negRisk"`
	Active           bool        `json:"active"`
	Closed           bool        `json:"closed"`
}
