package domain

// EventType labels webhook deliveries for the downstream CRM.
type EventType string

const (
	EventDataCollected   EventType = "data_collected"
	EventOracleGenerated EventType = "oracle_generated"
	EventPaymentClick    EventType = "payment_click"
)

func (e EventType) String() string {
	return string(e)
}

// TrackingInfo carries the UTM and identity block attached to every webhook
// payload. IDs are opaque; cookie persistence is the caller's concern.
type TrackingInfo struct {
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	UTMContent  string `json:"utm_content"`
	UserID      string `json:"user_id"`
	SessionID   string `json:"session_id"`
	UserAgent   string `json:"user_agent"`
	Referrer    string `json:"referrer"`
}

// WithDefaults fills the "direct traffic" placeholders the downstream expects.
func (t TrackingInfo) WithDefaults() TrackingInfo {
	if t.UTMSource == "" {
		t.UTMSource = "direct"
	}
	if t.UTMMedium == "" {
		t.UTMMedium = "none"
	}
	if t.UTMCampaign == "" {
		t.UTMCampaign = "none"
	}
	if t.UTMTerm == "" {
		t.UTMTerm = "none"
	}
	if t.UTMContent == "" {
		t.UTMContent = "none"
	}
	if t.Referrer == "" {
		t.Referrer = "direct"
	}
	return t
}
