package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyarb/internal/domain"
)

func newTestClient(clobSrv, gammaSrv *httptest.Server) *polymarket.Client {
	clobURL := ""
	gammaURL := ""
	if clobSrv != nil {
		clobURL = clobSrv.URL
	}
	if gammaSrv != nil {
		gammaURL = gammaSrv.URL
	}
	return polymarket.NewClient(clobURL, gammaURL)
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../../testdata/fixtures/" + name)
	require.NoError(t, err)
	return data
}

func nba() domain.Sport {
	return domain.Sport{Name: "nba", TagSlug: "nba"}
}

func TestFetchMarkets_Success(t *testing.T) {
	events := fixture(t, "gamma_events_nba.json")
	books := fixture(t, "clob_orderbooks_batch.json")

	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "nba", r.URL.Query().Get("tag_slug"))
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(events)
	}))
	defer gamma.Close()
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/books", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write(books)
	}))
	defer clob.Close()

	markets, err := newTestClient(clob, gamma).FetchMarkets(context.Background(), nba())
	require.NoError(t, err)
	// btts has no reference; it and the closed market are dropped
	require.Len(t, markets, 4)

	ml := markets[0]
	assert.Equal(t, "501", ml.ID)
	assert.Equal(t, "ev-1001", ml.EventID)
	assert.Equal(t, domain.MarketMoneyline, ml.Type)
	assert.Equal(t, "Lakers", ml.HomeTeam)
	assert.Equal(t, "Celtics", ml.AwayTeam)
	assert.InDelta(t, 0.55, ml.Yes().Ask, 1e-9)
	assert.InDelta(t, 120.0, ml.Yes().Depth, 1e-9)
	assert.InDelta(t, 0.53, ml.Yes().Bid, 1e-9)
	assert.InDelta(t, 0.47, ml.No().Ask, 1e-9)

	assert.Equal(t, domain.MarketSpread, markets[1].Type)
	assert.InDelta(t, -5.5, markets[1].Line, 1e-9)
	assert.Zero(t, markets[1].Yes().Ask, "no book means no ask")

	assert.Equal(t, domain.MarketTotal, markets[2].Type)
	assert.InDelta(t, 220.5, markets[2].Line, 1e-9)

	paired := markets[3]
	assert.Equal(t, domain.MarketPaired, paired.Type)
	assert.Equal(t, "Lakers", paired.Outcomes[0].Name)
	assert.InDelta(t, 0.45, paired.Yes().Ask, 1e-9)
	assert.InDelta(t, 0.48, paired.No().Ask, 1e-9)
	assert.InDelta(t, 150.0, paired.No().Depth, 1e-9)
}

func TestFetchMarkets_GammaClientError(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad tag"}`))
	}))
	defer gamma.Close()

	_, err := newTestClient(nil, gamma).FetchMarkets(context.Background(), nba())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestFetchResolution(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/markets/501":
			w.Write([]byte(`{"id":"501","closed":true,"outcomePrices":"[\"1\", \"0\"]"}`))
		case "/markets/502":
			w.Write([]byte(`{"id":"502","closed":true,"outcomePrices":"[\"0.0005\", \"0.9995\"]"}`))
		case "/markets/503":
			w.Write([]byte(`{"id":"503","closed":false,"outcomePrices":"[\"0.60\", \"0.40\"]"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer gamma.Close()
	client := newTestClient(nil, gamma)
	ctx := context.Background()

	res, err := client.FetchResolution(ctx, "501")
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.Equal(t, domain.SideYes, res.Winner)

	res, err = client.FetchResolution(ctx, "502")
	require.NoError(t, err)
	assert.Equal(t, domain.SideNo, res.Winner)

	res, err = client.FetchResolution(ctx, "503")
	require.NoError(t, err)
	assert.False(t, res.Resolved)

	_, err = client.FetchResolution(ctx, "999")
	assert.Error(t, err)
}

func TestFetchOrderBooks_Sorted(t *testing.T) {
	data := fixture(t, "clob_orderbooks_batch.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	books, err := newTestClient(srv, nil).FetchOrderBooks(context.Background(), []string{"ml-yes"})
	require.NoError(t, err)

	book := books["ml-yes"]
	// Bids: mayor a menor
	require.Len(t, book.Bids, 2)
	assert.Greater(t, book.Bids[0].Price, book.Bids[1].Price)
	// Asks: menor a mayor
	require.Len(t, book.Asks, 2)
	assert.Less(t, book.Asks[0].Price, book.Asks[1].Price)
}

func TestFetchOrderBooks_BatchSplitting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	// 25 token_ids → 2 requests (batches of 20 and 5)
	tokenIDs := make([]string, 25)
	for i := range tokenIDs {
		tokenIDs[i] = "token_" + string(rune('a'+i%26))
	}

	_, err := newTestClient(srv, nil).FetchOrderBooks(context.Background(), tokenIDs)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchOrderBooks_Empty(t *testing.T) {
	books, err := newTestClient(nil, nil).FetchOrderBooks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, books)
}
