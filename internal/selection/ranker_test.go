package selection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/fundamentals"
	"github.com/wonny/ashare-rotation/internal/s0_data/memstore"
)

var asOf = time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)

func cand(code string, close, floatCap float64) Candidate {
	return Candidate{
		Instrument: contracts.Instrument{Code: code, Name: "N" + code},
		Row:        contracts.MarketRow{Code: code, TradeDate: asOf, Close: close, TotalMarketCap: floatCap * 2, FloatMarketCap: floatCap},
	}
}

func bindPrice(t *testing.T) MetricFunc {
	fn, errs, err := PriceMetric{}.Bind(context.Background(), asOf, nil)
	require.NoError(t, err)
	require.Empty(t, errs)
	return fn
}

func codes(stocks []contracts.SelectedStock) []string {
	out := make([]string, len(stocks))
	for i, s := range stocks {
		out[i] = s.Code
	}
	return out
}

func TestSelect_AscendingTruncates(t *testing.T) {
	candidates := []Candidate{
		cand("600003", 30, 1e9),
		cand("600001", 10, 1e9),
		cand("600002", 20, 1e9),
	}

	selected := Select(candidates, bindPrice(t), 2, Ascending)

	require.Len(t, selected, 2)
	assert.Equal(t, []string{"600001", "600002"}, codes(selected))
	assert.Equal(t, 1, selected[0].Rank)
	assert.Equal(t, 2, selected[1].Rank)
	assert.Equal(t, 10.0, selected[0].MetricValue)
	assert.Equal(t, "N600001", selected[0].Name)
	assert.Equal(t, map[string]float64{"close": 10}, selected[0].Inputs)
}

func TestSelect_Descending(t *testing.T) {
	candidates := []Candidate{cand("600001", 10, 1e9), cand("600002", 20, 1e9)}
	selected := Select(candidates, bindPrice(t), 5, Descending)
	assert.Equal(t, []string{"600002", "600001"}, codes(selected))
}

func TestSelect_NeverPads(t *testing.T) {
	candidates := []Candidate{cand("600001", 10, 1e9), cand("600002", 0, 1e9)}
	selected := Select(candidates, bindPrice(t), 10, Ascending)
	assert.Equal(t, []string{"600001"}, codes(selected))
}

func TestSelect_TiesBreakByCode(t *testing.T) {
	candidates := []Candidate{
		cand("600009", 10, 1e9),
		cand("000001", 10, 1e9),
		cand("600001", 10, 1e9),
	}

	asc := Select(candidates, bindPrice(t), 3, Ascending)
	desc := Select(candidates, bindPrice(t), 3, Descending)

	assert.Equal(t, []string{"000001", "600001", "600009"}, codes(asc))
	assert.Equal(t, []string{"000001", "600001", "600009"}, codes(desc))
}

func TestSelect_Empty(t *testing.T) {
	assert.Empty(t, Select(nil, bindPrice(t), 10, Ascending))
}

func TestMarketCapMetric(t *testing.T) {
	fn, _, err := MarketCapMetric{Basis: contracts.CapFloat}.Bind(context.Background(), asOf, nil)
	require.NoError(t, err)

	candidates := []Candidate{cand("600001", 10, 3e9), cand("600002", 10, 1e9), cand("600003", 10, 0)}
	selected := Select(candidates, fn, 10, Ascending)

	assert.Equal(t, []string{"600002", "600001"}, codes(selected))
	assert.Equal(t, 1e9, selected[0].Inputs["market_cap"])

	totalFn, _, err := MarketCapMetric{Basis: contracts.CapTotal}.Bind(context.Background(), asOf, nil)
	require.NoError(t, err)
	v, _, ok := totalFn(cand("600001", 10, 3e9))
	assert.True(t, ok)
	assert.Equal(t, 6e9, v)
}

func seedEPS(store *memstore.Store, code string, q3, annual, prevQ3 float64) {
	for key, v := range map[string]float64{"20240930": q3, "20231231": annual, "20230930": prevQ3} {
		p, _ := contracts.ParseReportPeriod(key)
		store.AddFundamental(contracts.FundamentalRecord{Code: code, Period: p, Indicator: contracts.IndicatorBasicEPS, Value: v})
	}
}

func TestTTMPEMetric(t *testing.T) {
	store := memstore.New()
	seedEPS(store, "600001", 0.9, 1.0, 0.7) // TTM 1.2
	seedEPS(store, "600002", 0.3, 0.4, 0.3) // TTM 0.4
	seedEPS(store, "600003", 0.1, 0.1, 0.5) // TTM < 0

	metric := TTMPEMetric{Resolver: fundamentals.NewResolver(store, nil)}
	candidates := []Candidate{cand("600001", 12, 1e9), cand("600002", 8, 1e9), cand("600003", 5, 1e9), cand("600004", 5, 1e9)}

	fn, degradations, err := metric.Bind(context.Background(), asOf, candidates)
	require.NoError(t, err)
	require.Len(t, degradations, 1)
	assert.True(t, errors.Is(degradations[0], contracts.ErrMissingFundamental))

	selected := Select(candidates, fn, 10, Ascending)
	require.Len(t, selected, 2)
	assert.Equal(t, "600001", selected[0].Code)
	assert.InDelta(t, 10.0, selected[0].MetricValue, 1e-9)
	assert.InDelta(t, 20.0, selected[1].MetricValue, 1e-9)
	assert.InDelta(t, 1.2, selected[0].Inputs["ttm_eps"], 1e-9)
}

func TestNewMetric(t *testing.T) {
	resolver := fundamentals.NewResolver(memstore.New(), nil)

	m, err := NewMetric(MetricPrice, "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, MetricPrice, m.Kind())

	m, err = NewMetric(MetricTTMPE, "", resolver, "")
	require.NoError(t, err)
	assert.Equal(t, MetricTTMPE, m.Kind())

	_, err = NewMetric(MetricTTMPE, "", nil, "")
	assert.ErrorIs(t, err, contracts.ErrConfiguration)

	_, err = NewMetric(MetricMarketCap, "free", nil, "")
	assert.ErrorIs(t, err, contracts.ErrConfiguration)

	_, err = NewMetric("momentum", "", nil, "")
	assert.ErrorIs(t, err, contracts.ErrConfiguration)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Metric: MetricPrice, Direction: Ascending, Count: 10}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Count = 0
	assert.ErrorIs(t, bad.Validate(), contracts.ErrConfiguration)

	bad = valid
	bad.Direction = "up"
	assert.ErrorIs(t, bad.Validate(), contracts.ErrConfiguration)
}

func TestRanker_Select(t *testing.T) {
	store := memstore.New()
	store.AddInstrument(contracts.Instrument{Code: "600001", Name: "甲"})
	store.AddInstrument(contracts.Instrument{Code: "600002", Name: "乙"})

	cfg := Config{Metric: MetricPrice, Direction: Ascending, Count: 1}
	ranker, err := NewRanker(cfg, PriceMetric{}, store, nil)
	require.NoError(t, err)

	snapshot := &contracts.MarketSnapshot{
		AsOf: asOf,
		Date: asOf,
		Rows: []contracts.MarketRow{
			{Code: "600001", TradeDate: asOf, Close: 12},
			{Code: "600002", TradeDate: asOf, Close: 11},
			{Code: "600003", TradeDate: asOf, Close: 1}, // not in universe
		},
	}
	universe := &contracts.Universe{Date: asOf, Stocks: []string{"600001", "600002"}}

	record, degradations, err := ranker.Select(context.Background(), snapshot, universe)
	require.NoError(t, err)
	assert.Empty(t, degradations)
	assert.Equal(t, asOf, record.Date)
	assert.Equal(t, "price", record.Metric)
	require.Len(t, record.Stocks, 1)
	assert.Equal(t, "600002", record.Stocks[0].Code)
	assert.Equal(t, "乙", record.Stocks[0].Name)
}

func TestRanker_EmptyUniverse(t *testing.T) {
	cfg := Config{Metric: MetricPrice, Direction: Ascending, Count: 3}
	ranker, err := NewRanker(cfg, PriceMetric{}, memstore.New(), nil)
	require.NoError(t, err)

	record, _, err := ranker.Select(context.Background(), &contracts.MarketSnapshot{Date: asOf}, &contracts.Universe{})
	require.NoError(t, err)
	assert.Empty(t, record.Stocks)
}

func TestNewRanker_MetricMismatch(t *testing.T) {
	cfg := Config{Metric: MetricTTMPE, Direction: Ascending, Count: 3}
	_, err := NewRanker(cfg, PriceMetric{}, memstore.New(), nil)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)
}
