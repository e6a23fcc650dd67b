package marketctx

// PeerMap is an immutable instrument -> peer-set mapping. Tests substitute
// their own mappings; production wiring uses DefaultPeerMap.
type PeerMap struct {
	peers map[string][]string
}

func NewPeerMap(peers map[string][]string) PeerMap {
	copied := make(map[string][]string, len(peers))
	for k, v := range peers {
		copied[k] = append([]string(nil), v...)
	}
	return PeerMap{peers: copied}
}

// Peers returns a copy of the peer set for a symbol, nil when unmapped.
func (m PeerMap) Peers(symbol string) []string {
	v, ok := m.peers[symbol]
	if !ok {
		return nil
	}
	return append([]string(nil), v...)
}

// DefaultPeerMap covers a handful of large caps; unmapped symbols simply get
// no peer comparison.
func DefaultPeerMap() PeerMap {
	return NewPeerMap(map[string][]string{
		"AAPL":  {"MSFT", "GOOGL", "DELL"},
		"MSFT":  {"AAPL", "GOOGL", "ORCL"},
		"GOOGL": {"MSFT", "META", "AMZN"},
		"AMZN":  {"GOOGL", "WMT", "BABA"},
		"NVDA":  {"AMD", "INTC", "AVGO"},
		"AMD":   {"NVDA", "INTC", "QCOM"},
		"META":  {"GOOGL", "SNAP", "PINS"},
		"TSLA":  {"GM", "F", "RIVN"},
		"JPM":   {"BAC", "WFC", "GS"},
		"XOM":   {"CVX", "COP", "BP"},
	})
}

// SectorProxy maps instruments to the ETF used as their sector reference.
var SectorProxy = map[string]string{
	"AAPL": "XLK", "MSFT": "XLK", "NVDA": "XLK", "AMD": "XLK", "INTC": "XLK",
	"GOOGL": "XLC", "META": "XLC", "DIS": "XLC", "NFLX": "XLC",
	"AMZN": "XLY", "TSLA": "XLY",
	"JPM": "XLF", "BAC": "XLF", "GS": "XLF", "V": "XLF",
	"JNJ": "XLV", "ABBV": "XLV", "PFE": "XLV",
	"XOM": "XLE", "CVX": "XLE",
	"PG": "XLP", "KO": "XLP", "PEP": "XLP", "WMT": "XLP", "COST": "XLP",
}
