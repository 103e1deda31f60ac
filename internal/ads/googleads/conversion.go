package googleads

import (
	"fmt"
	"time"

	"github.com/clickwise/attributor/internal/app/model"
)

// reportingZone is the fixed offset every conversion timestamp is normalized
// to before upload, regardless of the input timestamp's original zone.
var reportingZone = time.FixedZone("UTC+3", 3*60*60)

const (
	consentGranted       = "GRANTED"
	identifierFirstParty = "FIRST_PARTY"
	defaultCurrencyCode  = "USD"
	conversionTimeLayout = "2006-01-02 15:04:05-07:00"
)

// ClickConversion mirrors the Google Ads REST ClickConversion resource.
type ClickConversion struct {
	ConversionAction   string           `json:"conversionAction"`
	ConversionDateTime string           `json:"conversionDateTime"`
	ConversionValue    float64          `json:"conversionValue"`
	CurrencyCode       string           `json:"currencyCode"`
	OrderID            string           `json:"orderId,omitempty"`
	GCLID              string           `json:"gclid,omitempty"`
	GBRAID             string           `json:"gbraid,omitempty"`
	Consent            Consent          `json:"consent"`
	UserIdentifiers    []UserIdentifier `json:"userIdentifiers,omitempty"`
}

type Consent struct {
	AdUserData        string `json:"adUserData"`
	AdPersonalization string `json:"adPersonalization"`
}

type UserIdentifier struct {
	UserIdentifierSource string `json:"userIdentifierSource"`
	HashedEmail          string `json:"hashedEmail,omitempty"`
	HashedPhoneNumber    string `json:"hashedPhoneNumber,omitempty"`
}

// FormatConversionTime renders ts in the Google Ads conversion timestamp
// format (yyyy-MM-dd HH:mm:ss±HH:MM), normalized to UTC+3.
func FormatConversionTime(ts time.Time) string {
	return ts.In(reportingZone).Format(conversionTimeLayout)
}

// BuildClickConversion assembles the upload payload for one lead.
//
// Field rules: the conversion value falls back to the per-type default,
// currency falls back to USD, the timestamp defaults to now, and only one of
// gclid/gbraid is ever set (gclid wins). Consent is a policy constant:
// conversions are only uploaded for leads that accepted tracking.
func BuildClickConversion(raw *model.RawLead, action model.ConversionAction, conversionActionPath string, now time.Time) ClickConversion {
	value := action.DefaultValue
	if raw.ConversionValue != nil {
		value = *raw.ConversionValue
	}

	currency := raw.CurrencyCode
	if currency == "" {
		currency = defaultCurrencyCode
	}

	ts := raw.ConversionTime
	if ts.IsZero() {
		ts = now
	}

	conversion := ClickConversion{
		ConversionAction:   conversionActionPath,
		ConversionDateTime: FormatConversionTime(ts),
		ConversionValue:    value,
		CurrencyCode:       currency,
		OrderID:            raw.OrderID,
		Consent: Consent{
			AdUserData:        consentGranted,
			AdPersonalization: consentGranted,
		},
	}

	if raw.GCLID != "" {
		conversion.GCLID = raw.GCLID
	} else if raw.GBRAID != "" {
		conversion.GBRAID = raw.GBRAID
	}

	if raw.Email != "" {
		conversion.UserIdentifiers = append(conversion.UserIdentifiers, UserIdentifier{
			UserIdentifierSource: identifierFirstParty,
			HashedEmail:          NormalizeAndHashEmail(raw.Email),
		})
	}
	if raw.Phone != "" {
		conversion.UserIdentifiers = append(conversion.UserIdentifiers, UserIdentifier{
			UserIdentifierSource: identifierFirstParty,
			HashedPhoneNumber:    NormalizeAndHash(raw.Phone),
		})
	}

	return conversion
}

// ConversionActionPath builds the resource name of a conversion action.
func ConversionActionPath(customerID, actionID string) string {
	return fmt.Sprintf("customers/%s/conversionActions/%s", customerID, actionID)
}
