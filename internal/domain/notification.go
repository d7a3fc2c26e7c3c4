package domain

import "time"

// NotificationType is the closed set of events the system notifies about.
type NotificationType string

const (
	NotificationTripStarted          NotificationType = "trip_started"
	NotificationTripCompleted        NotificationType = "trip_completed"
	NotificationPreInspectionIssue   NotificationType = "pre_inspection_issue"
	NotificationPostInspectionIssue  NotificationType = "post_inspection_issue"
	NotificationVehicleIssue         NotificationType = "vehicle_issue"
	NotificationTripDelayed          NotificationType = "trip_delayed"
	NotificationLocationUpdate       NotificationType = "location_update"
	NotificationIssueReportSubmitted NotificationType = "issue_report_submitted"
	NotificationFuelBillSubmitted    NotificationType = "fuel_bill_submitted"
	NotificationChatMessage          NotificationType = "chat_message"
	NotificationEmergency            NotificationType = "emergency"
	NotificationMaintenance          NotificationType = "maintenance"
	NotificationArrivedAtPickup      NotificationType = "arrived_at_pickup"
	NotificationLeftPickup           NotificationType = "left_pickup"
	NotificationArrivedAtDropoff     NotificationType = "arrived_at_dropoff"
	NotificationLeftDropoff          NotificationType = "left_dropoff"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationTripStarted:          {},
	NotificationTripCompleted:        {},
	NotificationPreInspectionIssue:   {},
	NotificationPostInspectionIssue:  {},
	NotificationVehicleIssue:         {},
	NotificationTripDelayed:          {},
	NotificationLocationUpdate:       {},
	NotificationIssueReportSubmitted: {},
	NotificationFuelBillSubmitted:    {},
	NotificationChatMessage:          {},
	NotificationEmergency:            {},
	NotificationMaintenance:          {},
	NotificationArrivedAtPickup:      {},
	NotificationLeftPickup:           {},
	NotificationArrivedAtDropoff:     {},
	NotificationLeftDropoff:          {},
}

// Valid reports whether t belongs to the taxonomy.
func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

// Metadata is the sparse, type-dependent payload of a notification.
// Only the fields relevant to the notification type are set; the rest stay
// nil and are omitted from the stored JSON.
type Metadata struct {
	StartPoint     *string    `json:"start_point,omitempty"`
	EndPoint       *string    `json:"end_point,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	DistanceKm     *float64   `json:"distance_km,omitempty"`
	Issue          *string    `json:"issue,omitempty"`
	ReportTime     *time.Time `json:"report_time,omitempty"`
	InspectionTime *time.Time `json:"inspection_time,omitempty"`
	Reason         *string    `json:"reason,omitempty"`
	DelayTime      *time.Time `json:"delay_time,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	UpdateTime     *time.Time `json:"update_time,omitempty"`
	FuelAmount     *float64   `json:"fuel_amount,omitempty"`
	SubmissionTime *time.Time `json:"submission_time,omitempty"`
	LocationName   *string    `json:"location_name,omitempty"`
	EventTime      *time.Time `json:"event_time,omitempty"`
	MessagePreview *string    `json:"message_preview,omitempty"`
	SentTime       *time.Time `json:"sent_time,omitempty"`
}

// Notification is an immutable record of a domain event. Only IsRead changes
// after creation.
type Notification struct {
	ID             string
	Type           NotificationType
	Message        string
	Metadata       *Metadata
	CreatedAt      time.Time
	IsRead         bool
	TripID         *string
	VehicleID      *string
	DriverID       *string
	FleetManagerID *string
}

// NotificationFilter narrows inbox listings. Recipient fields are OR-ed.
type NotificationFilter struct {
	FleetManagerID *string
	DriverID       *string
	TripID         *string
	UnreadOnly     bool
	Limit          int
}
