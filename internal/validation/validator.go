package validation

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a configured validator with custom struct-level validation registered.
// Field errors are reported under their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register struct-level validation for PlaceOrderRequest to ensure
	// the provided TotalAmount matches the sum of (price * quantity) of items.
	v.RegisterStructValidation(placeOrderStructValidation, PlaceOrderRequest{})

	return v
}

// ItemsTotal sums price*quantity over items in decimal, rounded to cents.
func ItemsTotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum.Round(2)
}

// placeOrderStructValidation verifies the aggregated total of items equals TotalAmount (to the cent)
func placeOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PlaceOrderRequest)

	sum := ItemsTotal(req.Items)
	total := decimal.NewFromFloat(req.TotalAmount).Round(2)
	if !sum.Equal(total) {
		sl.ReportError(req.TotalAmount, "total_amount", "TotalAmount", "amount_match_items",
			fmt.Sprintf("items sum %s != total %s", sum.StringFixed(2), total.StringFixed(2)))
	}
}
