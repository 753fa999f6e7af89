package domain

import "time"

// Role is the capability tier of the current principal. It gates mutation
// affordances in the dashboard view model only; it is not a substitute for
// server-side authorization on protected backend calls.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RoleViewer:
		return true
	}
	return false
}

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Alert is a session-local record of a detected environmental risk event.
// Alerts are owned exclusively by the alerting engine; consumers hold only
// copies obtained through the facade.
type Alert struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Severity Severity `json:"severity"`
	Module   string   `json:"module"`
	Region   string   `json:"region"`
	Time     string   `json:"time"`
	Resolved bool     `json:"resolved"`
}

// Notification is an independently tracked read-state projection of a
// recent alert. After creation it is a separate entity: resolving the alert
// does not change the read flag and marking the notification read does not
// resolve the alert.
type Notification struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Module   string   `json:"module"`
	Severity Severity `json:"severity"`
	Time     string   `json:"time"`
	Read     bool     `json:"read"`
}

// Theme selects the dashboard color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// DataSource selects which feed backs the dashboard indicators.
type DataSource string

const (
	DataSourceSatellite DataSource = "satellite"
	DataSourceGround    DataSource = "ground"
	DataSourceHybrid    DataSource = "hybrid"
)

// Settings is the full dashboard settings object. The persisted copy and
// the in-memory copy are write-through consistent.
type Settings struct {
	Theme                   Theme      `json:"theme"`
	RefreshInterval         int        `json:"refreshInterval"`
	DataSource              DataSource `json:"dataSource"`
	CriticalThreshold       float64    `json:"criticalThreshold"`
	PushNotifications       bool       `json:"pushNotifications"`
	ForestLossThreshold     float64    `json:"forestLossThreshold"`
	WaterStressThreshold    float64    `json:"waterStressThreshold"`
	HeatAnomalyThreshold    float64    `json:"heatAnomalyThreshold"`
	PollutionIndexThreshold float64    `json:"pollutionIndexThreshold"`
}

// DefaultSettings returns the settings used when nothing has been persisted
// yet. Missing keys in a persisted blob fall back to these values, which
// lets the schema grow without migration code.
func DefaultSettings() Settings {
	return Settings{
		Theme:                   ThemeDark,
		RefreshInterval:         30,
		DataSource:              DataSourceSatellite,
		CriticalThreshold:       80,
		PushNotifications:       true,
		ForestLossThreshold:     10,
		WaterStressThreshold:    70,
		HeatAnomalyThreshold:    3,
		PollutionIndexThreshold: 75,
	}
}

// SettingsPatch is a partial settings update. Nil fields leave the current
// value unchanged.
type SettingsPatch struct {
	Theme                   *Theme      `json:"theme,omitempty"`
	RefreshInterval         *int        `json:"refreshInterval,omitempty"`
	DataSource              *DataSource `json:"dataSource,omitempty"`
	CriticalThreshold       *float64    `json:"criticalThreshold,omitempty"`
	PushNotifications       *bool       `json:"pushNotifications,omitempty"`
	ForestLossThreshold     *float64    `json:"forestLossThreshold,omitempty"`
	WaterStressThreshold    *float64    `json:"waterStressThreshold,omitempty"`
	HeatAnomalyThreshold    *float64    `json:"heatAnomalyThreshold,omitempty"`
	PollutionIndexThreshold *float64    `json:"pollutionIndexThreshold,omitempty"`
}

// Apply merges the patch onto s and returns the merged settings.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.RefreshInterval != nil {
		s.RefreshInterval = *p.RefreshInterval
	}
	if p.DataSource != nil {
		s.DataSource = *p.DataSource
	}
	if p.CriticalThreshold != nil {
		s.CriticalThreshold = *p.CriticalThreshold
	}
	if p.PushNotifications != nil {
		s.PushNotifications = *p.PushNotifications
	}
	if p.ForestLossThreshold != nil {
		s.ForestLossThreshold = *p.ForestLossThreshold
	}
	if p.WaterStressThreshold != nil {
		s.WaterStressThreshold = *p.WaterStressThreshold
	}
	if p.HeatAnomalyThreshold != nil {
		s.HeatAnomalyThreshold = *p.HeatAnomalyThreshold
	}
	if p.PollutionIndexThreshold != nil {
		s.PollutionIndexThreshold = *p.PollutionIndexThreshold
	}
	return s
}

// DataStatus is the freshness state of the dashboard data feed.
type DataStatus string

const (
	StatusLive    DataStatus = "live"
	StatusDelayed DataStatus = "delayed"
	StatusError   DataStatus = "error"
)

// Freshness is a snapshot of the data-refresh state machine.
type Freshness struct {
	Status      DataStatus `json:"status"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Refreshing  bool       `json:"isRefreshing"`
}

// Upload is a durable record of a classified image upload, stored in the
// shared database and scoped to its owning principal.
type Upload struct {
	ID             string    `json:"id" gorm:"primarykey"`
	UserID         string    `json:"user_id" gorm:"not null;index"`
	ImageURL       string    `json:"image_url" gorm:"not null"`
	PredictedClass string    `json:"predicted_class"`
	Confidence     float64   `json:"confidence"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}
