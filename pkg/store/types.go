package store

import "time"

// Message roles. The conversation log only ever holds these two.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User is one coached contact, keyed by the transport identifier
// (phone digits for WhatsApp, "discord:<id>" for Discord).
type User struct {
	ID          int64
	Identifier  string
	DisplayName string
	FirstSeen   time.Time
	LastActive  time.Time
}

// Message is one immutable conversation record. ID is the per-user
// ordering key; EventID is set only for transport-delivered inbound.
type Message struct {
	ID        int64
	UserID    int64
	Role      string
	Content   string
	EventID   string
	CreatedAt time.Time
}

// UserSummary is the reporting projection for one user.
type UserSummary struct {
	User
	MessageCount int64
}

// FoodEntry is one detected food mention.
type FoodEntry struct {
	MealType    string
	Description string
	LoggedAt    time.Time
}

// IntakeSummary aggregates tracked intake over a reporting period.
type IntakeSummary struct {
	WaterML      int64
	Food         []FoodEntry
	MessageCount int64
}
