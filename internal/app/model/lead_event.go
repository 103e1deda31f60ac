package model

// LeadEvent is the per-request view of a CRM webhook. It is never persisted;
// the orchestrator builds one per inbound call and discards it afterwards.
type LeadEvent struct {
	LeadID int

	// CustomFieldFlags names boolean marker fields the caller wants set on
	// the lead alongside the attribution fields.
	CustomFieldFlags []string

	// ConversionType selects the offline conversion to upload when the
	// event matched a click. ConversionDisabled suppresses the upload.
	ConversionType ConversionType
}
