package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// MoneyFormatter renders amounts with locale digit grouping for API
// responses. Amounts are also returned unformatted.
type MoneyFormatter struct {
	printer *message.Printer
}

// NewMoneyFormatter builds a formatter for a BCP 47 locale, falling back to
// English when the locale does not parse.
func NewMoneyFormatter(locale string) *MoneyFormatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &MoneyFormatter{printer: message.NewPrinter(tag)}
}

// Format renders d with at most two fraction digits.
func (f *MoneyFormatter) Format(d decimal.Decimal) string {
	if f == nil {
		return d.StringFixed(2)
	}
	return f.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.MaxFractionDigits(2)))
}
