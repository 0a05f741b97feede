package plan

import "errors"

var (
	ErrPlanNotFound             = errors.New("plan not found")
	ErrPriceNotFound            = errors.New("no plan configured for price ID")
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load plans")
)
