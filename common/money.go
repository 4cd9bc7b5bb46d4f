package common

import (
	"fmt"
	"strings"

	"golang.org/x/text/message"
)

// FormatAmount renders an amount in minor units, e.g. "EUR 1,250.00".
func FormatAmount(p *message.Printer, currency string, amount int64) string {
	currency = strings.ToUpper(currency)
	if p == nil {
		return fmt.Sprintf("%s %.2f", currency, float64(amount)/100)
	}
	return p.Sprintf("%s %.2f", currency, float64(amount)/100)
}
