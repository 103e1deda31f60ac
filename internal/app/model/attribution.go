package model

// Source classifies where a lead came from.
type Source string

const (
	SourceOrganic Source = "organic"
	SourceCPC     Source = "cpc"
)

// AttributionResult is the matcher's verdict for one lead event. Identifier
// fields are populated only for cpc results.
type AttributionResult struct {
	Source          Source
	ClickIDKind     string // "gclid" or "gbraid"
	ClickID         string
	LandingPagePath string
}

// ConversionType selects which Google Ads conversion action a lead event maps
// to.
type ConversionType int

const (
	ConversionDisabled ConversionType = iota
	ConversionMessageReceived
	ConversionAppointmentMade
	ConversionConvertedLead
)

// ConversionAction bundles the Ads-side action name with the default value
// reported when the CRM carries no explicit conversion value.
type ConversionAction struct {
	Name         string
	DefaultValue float64
}

var conversionActions = map[ConversionType]ConversionAction{
	ConversionMessageReceived: {Name: "kommo_message_received", DefaultValue: 5},
	ConversionAppointmentMade: {Name: "appointment_made", DefaultValue: 40},
	ConversionConvertedLead:   {Name: "converted_lead", DefaultValue: 500},
}

// Action returns the conversion action for t and whether uploads are enabled
// for it. ConversionDisabled (and unknown values) report ok=false.
func (t ConversionType) Action() (ConversionAction, bool) {
	a, ok := conversionActions[t]
	return a, ok
}

func (t ConversionType) String() string {
	if a, ok := conversionActions[t]; ok {
		return a.Name
	}
	return "disabled"
}

// ParseConversionType maps a request-level conversion type tag to its
// ConversionType. Unknown or empty tags disable the upload.
func ParseConversionType(s string) ConversionType {
	switch s {
	case "message_received":
		return ConversionMessageReceived
	case "appointment_made":
		return ConversionAppointmentMade
	case "converted_lead":
		return ConversionConvertedLead
	default:
		return ConversionDisabled
	}
}
