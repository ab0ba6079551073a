package models

import (
	"strings"
	"time"
)

type PhaseOption struct {
	Phase Phase  `json:"phase"`
	Label string `json:"label"`
}

var PhaseCatalog = []PhaseOption{
	{PhaseGreenNS, "Green North-South"},
	{PhaseYellowNS, "Yellow North-South"},
	{PhaseRedNS, "Red North-South"},
	{PhaseGreenEW, "Green East-West"},
	{PhaseYellowEW, "Yellow East-West"},
	{PhaseRedEW, "Red East-West"},
	{PhaseRedAll, "Red All Directions"},
}

func (p Phase) Valid() bool {
	for _, o := range PhaseCatalog {
		if o.Phase == p {
			return true
		}
	}
	return false
}

// DefaultTrafficLights is the fixed signal inventory provisioned at startup.
func DefaultTrafficLights() []TrafficLight {
	return []TrafficLight{
		{ID: "TL_001", Name: "Main St & 1st Ave", Location: "Main Street & 1st Avenue", Lat: 40.7128, Lng: -74.0060,
			Status: DeviceOperational, Mode: ModeAutomatic, Phase: PhaseGreenNS},
		{ID: "TL_002", Name: "Oak St & 2nd Ave", Location: "Oak Street & 2nd Avenue", Lat: 40.7130, Lng: -74.0058,
			Status: DeviceMaintenance, Mode: ModeManual, Phase: PhaseRedAll},
		{ID: "TL_003", Name: "Park Ave & 3rd St", Location: "Park Avenue & 3rd Street", Lat: 40.7125, Lng: -74.0065,
			Status: DeviceOperational, Mode: ModeAutomatic, Phase: PhaseYellowNS},
	}
}

var DiagnosticCatalog = []DiagnosticTest{
	{ID: "connectivity", Name: "Network Connectivity", Duration: 30 * time.Second},
	{ID: "performance", Name: "Performance Benchmark", Duration: 120 * time.Second},
	{ID: "security", Name: "Security Scan", Duration: 180 * time.Second},
	{ID: "storage", Name: "Storage Health Check", Duration: 60 * time.Second},
	{ID: "services", Name: "Service Status Check", Duration: 45 * time.Second},
}

var NodeInventory = []Node{
	{ID: "node_001", Name: "Edge Node Alpha", Location: "Downtown Data Center"},
	{ID: "node_002", Name: "Edge Node Beta", Location: "Industrial District"},
	{ID: "node_003", Name: "Edge Node Gamma", Location: "Residential Area"},
}

type ChannelInfo struct {
	ID          Channel `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
}

var ChannelCatalog = []ChannelInfo{
	{ChannelAll, "All Channels", "Broadcast to all available channels"},
	{ChannelTraffic, "Traffic Displays", "Highway and street digital signs"},
	{ChannelMobile, "Mobile Alerts", "Emergency mobile notifications"},
	{ChannelRadio, "Emergency Radio", "Emergency radio frequencies"},
	{ChannelSocial, "Social Media", "Official city social media accounts"},
}

func (c Channel) Valid() bool {
	for _, info := range ChannelCatalog {
		if info.ID == c {
			return true
		}
	}
	return false
}

type PriorityInfo struct {
	Level       Priority `json:"level"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
}

var PriorityCatalog = []PriorityInfo{
	{PriorityLow, "Low Priority", "General information"},
	{PriorityMedium, "Medium Priority", "Important updates"},
	{PriorityHigh, "High Priority", "Urgent notifications"},
	{PriorityCritical, "Critical", "Emergency situations"},
}

func (p Priority) Valid() bool {
	for _, info := range PriorityCatalog {
		if info.Level == p {
			return true
		}
	}
	return false
}

// Template is a canned broadcast body; tokens look like [LOCATION].
type Template struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Fill replaces [KEY] tokens with values[KEY]. Unknown tokens are left as is.
func (t Template) Fill(values map[string]string) string {
	if len(values) == 0 {
		return t.Body
	}
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "["+strings.ToUpper(k)+"]", v)
	}
	return strings.NewReplacer(pairs...).Replace(t.Body)
}

var TemplateCatalog = []Template{
	{"traffic_incident", "Traffic Incident",
		"TRAFFIC ALERT: Major incident on [LOCATION]. Expect delays. Use alternate routes. Emergency services on scene."},
	{"weather_warning", "Weather Warning",
		"WEATHER ALERT: [WEATHER_TYPE] warning in effect for [AREA]. Take necessary precautions. Stay indoors if possible."},
	{"evacuation", "Evacuation Notice",
		"EVACUATION NOTICE: Immediate evacuation required for [AREA] due to [REASON]. Follow designated evacuation routes."},
	{"utility_outage", "Utility Outage",
		"UTILITY ALERT: [UTILITY_TYPE] outage affecting [AREA]. Estimated restoration: [TIME]. Updates to follow."},
	{"public_safety", "Public Safety",
		"PUBLIC SAFETY ALERT: [DESCRIPTION]. Avoid [AREA]. Follow instructions from local authorities."},
}

// DemoAlerts returns the initial feed contents relative to now.
func DemoAlerts(now time.Time) []NewAlert {
	ago := func(d time.Duration) time.Time { return now.Add(-d) }
	resolved := ago(10 * time.Hour)
	return []NewAlert{
		{ID: "1", Title: "Critical Traffic Jam", Severity: SeverityCritical, Category: "Traffic",
			Description: "Severe congestion detected on Highway 101 northbound. Traffic speed reduced to 15 mph. Estimated delay: 45 minutes.",
			Location:    "Highway 101, Mile Marker 23", DeviceID: "TRAFFIC_SENSOR_101_23", EstimatedResolution: "2 hours", CreatedAt: ago(30 * time.Minute)},
		{ID: "2", Title: "Environmental Sensor Offline", Severity: SeverityHigh, Category: "Device",
			Description: "Air quality monitoring station has lost connection. Unable to collect PM2.5 and NO2 readings.",
			Location:    "Downtown Park, Station #7", DeviceID: "ENV_SENSOR_007", EstimatedResolution: "4 hours", CreatedAt: ago(2 * time.Hour)},
		{ID: "3", Title: "High PM2.5 Levels", Severity: SeverityHigh, Category: "Environment",
			Description: "Particulate matter levels have exceeded safe thresholds in the industrial district. Air quality index: 156 (Unhealthy).",
			Location:    "Industrial District, Zone B", DeviceID: "ENV_SENSOR_012", EstimatedResolution: "6 hours", CreatedAt: ago(4 * time.Hour)},
		{ID: "4", Title: "Camera Maintenance Required", Severity: SeverityMedium, Category: "Maintenance",
			Description: "Security camera showing degraded image quality. Lens cleaning and calibration needed.",
			Location:    "Main Street & 5th Avenue", DeviceID: "CAMERA_MS_05", EstimatedResolution: "24 hours", CreatedAt: ago(6 * time.Hour)},
		{ID: "5", Title: "Power Efficiency Alert", Severity: SeverityMedium, Category: "System",
			Description: "Edge computing node showing increased power consumption. Performance optimization recommended.",
			Location:    "Data Center Alpha", DeviceID: "EDGE_NODE_ALPHA_03", EstimatedResolution: "12 hours", CreatedAt: ago(8 * time.Hour)},
		{ID: "6", Title: "Routine Maintenance Complete", Severity: SeverityLow, Category: "Maintenance",
			Description: "Scheduled maintenance on traffic light controller has been successfully completed.",
			Location:    "Oak Street & 2nd Avenue", DeviceID: "TRAFFIC_CTRL_OAK_02", Status: AlertResolved,
			CreatedAt: ago(12 * time.Hour), ResolvedAt: &resolved},
	}
}
