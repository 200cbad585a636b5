package domain

import "github.com/shopspring/decimal"

var (
	PlatformFeeRate  = decimal.RequireFromString("0.15")
	MinCustomerPrice = decimal.NewFromInt(5)
	MaxCustomerPrice = decimal.NewFromInt(10000)
)

type Pricing struct {
	CustomerPrice decimal.Decimal `json:"customer_price"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	DriverPayout  decimal.Decimal `json:"driver_payout"`
}

// CalculatePricing derives the platform fee and driver payout. The fee is
// rounded to cents first and the payout is the rounded remainder, so
// fee + payout always equals the rounded customer price.
func CalculatePricing(d OrderDraft) Pricing {
	if d.JobType == JobTypeGift {
		return Pricing{
			CustomerPrice: decimal.Zero,
			PlatformFee:   decimal.Zero,
			DriverPayout:  decimal.Zero,
		}
	}

	price := d.CustomerPrice
	rate := decimal.Zero
	if d.PaymentType == PaymentOnline {
		rate = PlatformFeeRate
	}

	fee := round2(price.Mul(rate))
	return Pricing{
		CustomerPrice: round2(price),
		PlatformFee:   fee,
		DriverPayout:  round2(price.Sub(fee)),
	}
}

// round2 rounds half away from zero, which is half-up for the
// non-negative amounts used here.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatMoney renders an amount with exactly two decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
