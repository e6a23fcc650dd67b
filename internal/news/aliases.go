package news

// CompanyAliases maps tickers to the company-name strings accepted by the
// relevance filter alongside the ticker itself.
var CompanyAliases = map[string][]string{
	"AAPL":  {"Apple"},
	"MSFT":  {"Microsoft"},
	"GOOGL": {"Google", "Alphabet"},
	"AMZN":  {"Amazon"},
	"NVDA":  {"Nvidia"},
	"AMD":   {"Advanced Micro Devices"},
	"META":  {"Meta", "Facebook"},
	"TSLA":  {"Tesla"},
	"JPM":   {"JPMorgan", "JP Morgan"},
	"XOM":   {"Exxon", "ExxonMobil"},
	"JNJ":   {"Johnson & Johnson"},
	"WMT":   {"Walmart"},
	"DIS":   {"Disney"},
	"NFLX":  {"Netflix"},
	"INTC":  {"Intel"},
	"KO":    {"Coca-Cola"},
	"PEP":   {"Pepsi", "PepsiCo"},
}

// AliasesFor returns the configured aliases for a ticker, nil when unmapped.
func AliasesFor(symbol string) []string {
	return append([]string(nil), CompanyAliases[symbol]...)
}
