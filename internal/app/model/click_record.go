package model

import "time"

// ClickStreamKey partitions all click records into a single logical stream
// ordered by recency. Matching always operates on the newest record of this
// stream, never on a per-visitor queue.
const ClickStreamKey = "click"

// ClickRecord is one observed ad click, stored until its expiry window
// elapses. A record transitions matched=false -> true at most once, when the
// matcher binds it to an inbound lead.
type ClickRecord struct {
	ID              uint   `gorm:"primaryKey"`
	StreamKey       string `gorm:"size:16;not null;default:click;index:idx_click_recency,priority:1"`
	GCLID           string `gorm:"size:255"`
	GBRAID          string `gorm:"size:255"`
	LandingPagePath string `gorm:"type:text"`
	CreatedAt       int64  `gorm:"not null"`
	ExpiresAt       int64  `gorm:"not null;index:idx_click_recency,priority:2,sort:desc"`
	Matched         bool   `gorm:"not null;default:false"`
}

// TableName keeps the legacy table name used by earlier revisions.
func (ClickRecord) TableName() string {
	return "click_logs"
}

// Identifier returns the click identifier to report downstream. Google Ads
// accepts only one of gclid/gbraid per conversion; gclid carries more data
// points and wins when both were captured.
func (c *ClickRecord) Identifier() (kind, value string) {
	if c.GCLID != "" {
		return "gclid", c.GCLID
	}
	return "gbraid", c.GBRAID
}

// Expired reports whether the record's attribution window has elapsed at now.
func (c *ClickRecord) Expired(now time.Time) bool {
	return now.Unix() > c.ExpiresAt
}

// NewClickRecord builds an unmatched record whose expiry is a fixed offset of
// its creation time.
func NewClickRecord(gclid, gbraid, landingPagePath string, now time.Time, ttl time.Duration) *ClickRecord {
	return &ClickRecord{
		StreamKey:       ClickStreamKey,
		GCLID:           gclid,
		GBRAID:          gbraid,
		LandingPagePath: landingPagePath,
		CreatedAt:       now.Unix(),
		ExpiresAt:       now.Add(ttl).Unix(),
		Matched:         false,
	}
}
