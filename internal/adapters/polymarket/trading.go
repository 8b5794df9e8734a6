package polymarket

// trading.go: live execution against the Polymarket CLOB.
//
// TradingClient implements ports.Venue. 4xx errors come back as
// domain.ErrVenueRejection and the rest as domain.ErrTransientNetwork.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
	Success  bool   `json:"success"`
}

// clobOrder is the response of GET /data/order/{id}. Sizes are in shares.
type clobOrder struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	OriginalSize    string   `json:"original_size"`
	SizeMatched     string   `json:"size_matched"`
	Price           string   `json:"price"`
	AssociateTrades []string `json:"associate_trades"`
}

// clobTrade is one entry of GET /data/trades.
type clobTrade struct {
	ID    string `json:"id"`
	Price string `json:"price"`
	Size  string `json:"size"`
}

type clobCancelRequest struct {
	OrderID string `json:"orderID"`
}

type clobCancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

const usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// TradingClient implements ports.Venue.
type TradingClient struct {
	auth      *AuthClient
	rpcClient *ethclient.Client
}

// NewTradingClient creates a TradingClient. rpcURL is used for on-chain balance checks.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	return &TradingClient{auth: auth, rpcClient: rpc}, nil
}

// Close releases the RPC connection.
func (tc *TradingClient) Close() {
	tc.rpcClient.Close()
}

// Submit signs and posts a limit order and returns the CLOB order id.
func (tc *TradingClient) Submit(ctx context.Context, req domain.OrderRequest) (string, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return "", fmt.Errorf("trading.Submit: creds: %w", classify(err))
	}

	signed, err := tc.auth.buildSignedOrder(req)
	if err != nil {
		// an order that cannot be signed will not sign on retry
		return "", fmt.Errorf("trading.Submit: sign: %w: %w", domain.ErrVenueRejection, err)
	}

	orderType := string(req.TimeInForce)
	if orderType == "" {
		orderType = string(domain.TIFGoodTillCancel)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(req.Side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.credentials().APIKey,
		OrderType: orderType,
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return "", fmt.Errorf("trading.Submit: post: %w", classify(err))
	}
	if !resp.Success || resp.ErrorMsg != "" || resp.OrderID == "" {
		return "", fmt.Errorf("trading.Submit: %w: %s", domain.ErrVenueRejection, resp.ErrorMsg)
	}
	return resp.OrderID, nil
}

// Status returns the filled size and status of an order.
func (tc *TradingClient) Status(ctx context.Context, orderID string) (domain.VenueOrderStatus, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.VenueOrderStatus{}, fmt.Errorf("trading.Status: creds: %w", classify(err))
	}
	var o clobOrder
	if err := tc.auth.doL2(ctx, http.MethodGet, "/data/order/"+url.PathEscape(orderID), nil, &o); err != nil {
		return domain.VenueOrderStatus{}, fmt.Errorf("trading.Status %s: %w", orderID, classify(err))
	}
	st := mapOrderStatus(orderID, o)
	if st.FilledSize > 0 && len(o.AssociateTrades) > 0 {
		avg, err := tc.tradesAvg(ctx, o.AssociateTrades)
		if err != nil {
			slog.Debug("trading: fill price unavailable", "order", orderID, "err", err)
		} else {
			st.AvgPrice = avg
		}
	}
	return st, nil
}

// tradesAvg fetches the trades that matched an order and returns their
// size-weighted price.
func (tc *TradingClient) tradesAvg(ctx context.Context, ids []string) (float64, error) {
	var trades []clobTrade
	for _, id := range ids {
		var page []clobTrade
		if err := tc.auth.doL2(ctx, http.MethodGet, "/data/trades?id="+url.QueryEscape(id), nil, &page); err != nil {
			return 0, fmt.Errorf("trading.tradesAvg %s: %w", id, classify(err))
		}
		trades = append(trades, page...)
	}
	avg := weightedPrice(trades)
	if avg <= 0 {
		return 0, fmt.Errorf("trading.tradesAvg: no priced trades among %d", len(ids))
	}
	return avg, nil
}

func weightedPrice(trades []clobTrade) float64 {
	notional, size := decimal.Zero, decimal.Zero
	for _, t := range trades {
		p, err := decimal.NewFromString(t.Price)
		if err != nil {
			continue
		}
		q, err := decimal.NewFromString(t.Size)
		if err != nil || !q.IsPositive() {
			continue
		}
		notional = notional.Add(p.Mul(q))
		size = size.Add(q)
	}
	if !size.IsPositive() {
		return 0
	}
	return notional.Div(size).InexactFloat64()
}

// Cancel cancels the unfilled remainder. false means the CLOB refused, usually
// because the order already matched.
func (tc *TradingClient) Cancel(ctx context.Context, orderID string) (bool, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return false, fmt.Errorf("trading.Cancel: creds: %w", classify(err))
	}
	var resp clobCancelResponse
	if err := tc.auth.doL2(ctx, http.MethodDelete, "/order", clobCancelRequest{OrderID: orderID}, &resp); err != nil {
		return false, fmt.Errorf("trading.Cancel %s: %w", orderID, classify(err))
	}
	for _, id := range resp.Canceled {
		if id == orderID {
			return true, nil
		}
	}
	return false, nil
}

// Balance returns the on-chain USDC.e balance of the wallet.
func (tc *TradingClient) Balance(ctx context.Context) (float64, error) {
	callData, err := balanceOfABI.Pack("balanceOf", tc.auth.address)
	if err != nil {
		return 0, fmt.Errorf("trading.Balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("trading.Balance: rpc call: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("trading.Balance: unpack: %w", err)
	}

	raw, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("trading.Balance: unexpected type %T", vals[0])
	}
	return decimal.NewFromBigInt(raw, -6).InexactFloat64(), nil
}

// mapOrderStatus converts a CLOB order to the venue-neutral status. The
// order's price is its limit, not what it matched at, so AvgPrice stays zero
// until the trades are read.
func mapOrderStatus(orderID string, o clobOrder) domain.VenueOrderStatus {
	st := domain.VenueOrderStatus{
		OrderID:    orderID,
		Status:     domain.VenueOpen,
		FilledSize: parseDecimal(o.SizeMatched),
	}
	upper := strings.ToUpper(o.Status)
	switch {
	case strings.Contains(upper, "MATCHED"):
		st.Status = domain.VenueMatched
	case strings.Contains(upper, "CANCEL"):
		st.Status = domain.VenueCancelled
	case strings.Contains(upper, "INVALID"), strings.Contains(upper, "REJECT"):
		st.Status = domain.VenueRejected
	}
	return st
}

func parseDecimal(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
