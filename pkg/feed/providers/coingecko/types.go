package coingecko

// MarketChartResponse mirrors /coins/{id}/market_chart/range. Both series are
// [timestamp_ms, value] pairs at day granularity for long ranges.
type MarketChartResponse struct {
	Prices       [][]float64 `json:"prices"`
	MarketCaps   [][]float64 `json:"market_caps"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}
