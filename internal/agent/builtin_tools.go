package agent

import (
	"context"
)

// RecommendCarArgs are the search preferences for recommend_car.
type RecommendCarArgs struct {
	Brand string  `json:"brand" jsonschema_description:"Preferred car brand"`
	Price float64 `json:"price" jsonschema_description:"Budget in dollars"`
	Color string  `json:"color" jsonschema_description:"Preferred color"`
	Year  float64 `json:"year" jsonschema_description:"Model year"`
}

// CarRecommendation is the result of recommend_car.
type CarRecommendation struct {
	Brand string  `json:"brand"`
	Price float64 `json:"price"`
	Color string  `json:"color"`
	Year  float64 `json:"year"`
}

// InsuranceArgs identify the car being insured.
type InsuranceArgs struct {
	PlateNumber  string  `json:"plate_number" jsonschema:"required" jsonschema_description:"License plate number"`
	PurchaseYear float64 `json:"purchase_year" jsonschema:"required" jsonschema_description:"Year the car was purchased"`
	Price        float64 `json:"price" jsonschema:"required" jsonschema_description:"Purchase price in dollars"`
}

// InsuranceQuote is the result of calculate_insurance.
type InsuranceQuote struct {
	PlateNumber  string  `json:"plate_number"`
	PurchaseYear float64 `json:"purchase_year"`
	Premium      float64 `json:"premium"`
	Coverage     float64 `json:"coverage"`
}

const (
	premiumRate  = 0.1
	coverageRate = 0.9
)

// SalesFunctions returns the car sales tools. Both are deterministic stubs.
func SalesFunctions() []Function {
	return []Function{
		NewFunction("recommend_car", "Get list of cars based on the user's preferences",
			func(_ context.Context, a RecommendCarArgs) (any, error) {
				return CarRecommendation(a), nil
			}),
		NewFunction("calculate_insurance", "Calculate the insurance of the car",
			func(_ context.Context, a InsuranceArgs) (any, error) {
				return InsuranceQuote{
					PlateNumber:  a.PlateNumber,
					PurchaseYear: a.PurchaseYear,
					Premium:      a.Price * premiumRate,
					Coverage:     a.Price * coverageRate,
				}, nil
			}),
	}
}

// NewSalesRegistry builds a registry holding SalesFunctions.
func NewSalesRegistry() *Registry {
	r, err := NewRegistry(SalesFunctions()...)
	if err != nil {
		panic(err)
	}
	return r
}
