package ledger

import (
	"sort"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// CurrencyBalance aggregates every record seen for one currency.
type CurrencyBalance struct {
	Currency     string          `json:"currency"`
	Total        decimal.Decimal `json:"total"`
	Count        int64           `json:"count"`
	Largest      decimal.Decimal `json:"largest"`
	Smallest     decimal.Decimal `json:"smallest"`
	AccountLabel string          `json:"account_label"`
	LastUpdate   time.Time       `json:"last_update"`
}

// Average returns Total/Count, or zero when nothing was folded.
func (b CurrencyBalance) Average() decimal.Decimal {
	if b.Count == 0 {
		return decimal.Zero
	}
	return b.Total.Div(decimal.NewFromInt(b.Count))
}

// Balances maps currency codes to their running aggregate.
type Balances map[string]CurrencyBalance

// Fold adds one record.
func (b Balances) Fold(code string, amount decimal.Decimal, now time.Time) {
	bal, ok := b[code]
	if !ok {
		b[code] = CurrencyBalance{
			Currency:     code,
			Total:        amount,
			Count:        1,
			Largest:      amount,
			Smallest:     amount,
			AccountLabel: AccountLabel(code),
			LastUpdate:   now,
		}
		return
	}
	bal.Total = bal.Total.Add(amount)
	bal.Count++
	if amount.GreaterThan(bal.Largest) {
		bal.Largest = amount
	}
	if amount.LessThan(bal.Smallest) {
		bal.Smallest = amount
	}
	bal.LastUpdate = now
	b[code] = bal
}

// Snapshot returns the balances sorted by currency code.
func (b Balances) Snapshot() []CurrencyBalance {
	out := make([]CurrencyBalance, 0, len(b))
	for _, bal := range b {
		out = append(out, bal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// FromSnapshot rebuilds a Balances map from a persisted snapshot.
func FromSnapshot(list []CurrencyBalance) Balances {
	b := make(Balances, len(list))
	for _, bal := range list {
		b[bal.Currency] = bal
	}
	return b
}

// MergeBalances reconciles the displayed set with an incoming tick. An empty
// incoming set never replaces a non-empty previous one.
func MergeBalances(previous, incoming []CurrencyBalance) []CurrencyBalance {
	if len(incoming) == 0 {
		return previous
	}
	return incoming
}

var accountNames = map[string]string{
	"USD": "US Dollars",
	"EUR": "Euros",
	"GBP": "Pound Sterling",
	"CAD": "Canadian Dollars",
	"AUD": "Australian Dollars",
	"JPY": "Japanese Yen",
	"CHF": "Swiss Francs",
	"CNY": "Chinese Yuan",
	"INR": "Indian Rupees",
	"MXN": "Mexican Pesos",
	"BRL": "Brazilian Reals",
	"RUB": "Russian Rubles",
	"KRW": "South Korean Won",
	"SGD": "Singapore Dollars",
	"HKD": "Hong Kong Dollars",
}

// AccountLabel names the ledger account a currency is booked to.
func AccountLabel(code string) string {
	if name, ok := accountNames[code]; ok {
		return name + " Account"
	}
	return code + " Account"
}

// FormatAmount renders amount in the currency's display template, rounded to
// its minor unit. Unknown currencies fall back to two decimals and the code.
func FormatAmount(code string, amount decimal.Decimal) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}
