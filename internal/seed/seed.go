// Package seed carries the illustrative alert dataset the dashboard ships
// with before any live detections arrive.
package seed

import "github.com/gsis-platform/gsis-dashboard/internal/domain"

// Alerts returns the seed alert list, most recent first. The first five
// seed the notification feed.
func Alerts() []domain.Alert {
	return []domain.Alert{
		{ID: 1, Title: "Critical deforestation spike in Amazon Basin", Severity: domain.SeverityCritical, Module: "Deforestation", Region: "South America", Time: "2 min ago"},
		{ID: 2, Title: "Water reservoir below 15% in Lake Chad", Severity: domain.SeverityHigh, Module: "Water Scarcity", Region: "Africa", Time: "15 min ago"},
		{ID: 3, Title: "Flash flood warning in Bangladesh delta", Severity: domain.SeverityCritical, Module: "Flood Monitoring", Region: "South Asia", Time: "32 min ago"},
		{ID: 4, Title: "Urban heat anomaly detected in Phoenix", Severity: domain.SeverityMedium, Module: "Urban Heat", Region: "North America", Time: "1 hr ago"},
		{ID: 5, Title: "Industrial discharge detected near Ganges", Severity: domain.SeverityHigh, Module: "Pollution", Region: "South Asia", Time: "2 hr ago"},
		{ID: 6, Title: "Crop stress indicators rising in East Africa", Severity: domain.SeverityMedium, Module: "Crop Stress", Region: "Africa", Time: "3 hr ago", Resolved: true},
		{ID: 7, Title: "Illegal mining activity in Congo Basin", Severity: domain.SeverityHigh, Module: "Deforestation", Region: "Africa", Time: "4 hr ago"},
		{ID: 8, Title: "Coastal flooding risk in Vietnam", Severity: domain.SeverityLow, Module: "Flood Monitoring", Region: "SE Asia", Time: "5 hr ago", Resolved: true},
		{ID: 9, Title: "Heat wave intensifying in Delhi NCR", Severity: domain.SeverityCritical, Module: "Urban Heat", Region: "South Asia", Time: "6 hr ago"},
		{ID: 10, Title: "Water contamination in Mekong Delta", Severity: domain.SeverityMedium, Module: "Pollution", Region: "SE Asia", Time: "8 hr ago", Resolved: true},
	}
}
