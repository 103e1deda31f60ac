package model

import "time"

// RawLead is the enriched contact view of a lead, assembled from the CRM
// right before an offline conversion upload. Zero values mean "not provided";
// the reporter falls back to per-conversion-type defaults.
type RawLead struct {
	LeadID          int
	Email           string
	Phone           string
	GCLID           string
	GBRAID          string
	ConversionValue *float64
	CurrencyCode    string
	ConversionTime  time.Time
	OrderID         string
}
