package feed

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zeromicro/go-zero/core/logx"
)

// SelectorConfig pins the canonical pair the hourly path should prefer.
type SelectorConfig struct {
	PairAddress  string
	TokenAddress string
	ChainID      string
}

// SelectQuote picks exactly one authoritative quote among the candidates a
// single aggregator query returned, using ordered precedence:
//
//	(a) exact configured pair-address match,
//	(b) any candidate on the configured chain referencing the configured
//	    token as either side of the pair,
//	(c) the first candidate returned.
//
// Address matching ignores price validity; a matched candidate with an
// invalid price is then rejected and selection falls through to the next
// tier. When every tier fails, ErrNoQuoteAvailable is returned.
func SelectQuote(cfg SelectorConfig, candidates []PairQuote) (*PairQuote, error) {
	if len(candidates) == 0 {
		return nil, ErrNoQuoteAvailable
	}

	// Tier (a): configured pair address.
	if cfg.PairAddress != "" {
		for i := range candidates {
			if !sameAddress(candidates[i].PairAddress, cfg.PairAddress) {
				continue
			}
			if isValidPrice(candidates[i].PriceUSD) {
				return &candidates[i], nil
			}
			logx.Infof("feed: canonical pair %s has invalid price %v, falling through",
				candidates[i].PairAddress, candidates[i].PriceUSD)
			break
		}
	}

	// Tier (b): configured chain, token on either side.
	for i := range candidates {
		c := &candidates[i]
		if cfg.ChainID != "" && !strings.EqualFold(c.ChainID, cfg.ChainID) {
			continue
		}
		if !sameAddress(c.BaseToken, cfg.TokenAddress) && !sameAddress(c.QuoteToken, cfg.TokenAddress) {
			continue
		}
		if isValidPrice(c.PriceUSD) {
			return c, nil
		}
	}

	// Tier (c): first candidate with a usable price.
	for i := range candidates {
		if isValidPrice(candidates[i].PriceUSD) {
			return &candidates[i], nil
		}
	}
	return nil, ErrNoQuoteAvailable
}

// sameAddress compares two on-chain addresses, tolerating checksum and case
// differences for hex addresses.
func sameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(a, b)
}
