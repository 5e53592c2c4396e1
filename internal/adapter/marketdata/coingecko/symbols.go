package coingecko

import "sort"

// assetIDs maps ticker symbols to CoinGecko coin identifiers. Only mapped
// assets can be fetched; everything else fails with ErrAssetNotSupported.
// Stablecoins are intentionally absent: they are served synthetically by the
// price cache layer and never reach this client.
var assetIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"TRX":   "tron",
	"DOT":   "polkadot",
	"LTC":   "litecoin",
	"ATOM":  "cosmos",
	"NEAR":  "near",
	"AVAX":  "avalanche-2",
	"TON":   "toncoin",
	"MATIC": "matic-network",
	"ETC":   "ethereum-classic",
	"ICP":   "internet-computer",
	"ALGO":  "algorand",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"AAVE":  "aave",
	"MKR":   "maker",
	"INJ":   "injective",
	"GRT":   "the-graph",
	"FIL":   "filecoin",
	"OP":    "optimism",
	"ARB":   "arbitrum",
	"APT":   "aptos",
	"SUI":   "sui",
	"HBAR":  "hedera-hashgraph",
	"XLM":   "stellar",
	"XMR":   "monero",
	"BCH":   "bitcoin-cash",
	"VET":   "vechain",
	"SHIB":  "shiba-inu",
	"PEPE":  "pepe",
	"SAND":  "the-sandbox",
	"MANA":  "decentraland",
	"AXS":   "axie-infinity",
	"VRA":   "verasity",
}

// SupportedAssets returns the mapped ticker symbols, sorted ascending
func SupportedAssets() []string {
	assets := make([]string, 0, len(assetIDs))
	for symbol := range assetIDs {
		assets = append(assets, symbol)
	}
	sort.Strings(assets)
	return assets
}
