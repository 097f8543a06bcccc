package model

import "time"

// User is a standalone record for an API caller (spec.md §9 "Inheritance
// of domain objects is flattened": User shares only id and a common
// serialization strategy with the other domain records).
type User struct {
	ID          string    `json:"id" msgpack:"id" gorm:"primaryKey"`
	Name        string    `json:"name" msgpack:"name"`
	APIKeyHash  string    `json:"apiKeyHash" msgpack:"apiKeyHash"`
	IsWhite     bool      `json:"isWhite" msgpack:"isWhite"`
	DailyLimit  int       `json:"dailyLimit" msgpack:"dailyLimit"`
	CreatedAt   time.Time `json:"createdAt" msgpack:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" msgpack:"updatedAt"`
}

// BannedWord is a standalone record listing one disallowed prompt
// fragment (spec.md §7 TaskValidation / §9 flattened domain records).
type BannedWord struct {
	ID        string    `json:"id" msgpack:"id" gorm:"primaryKey"`
	Word      string    `json:"word" msgpack:"word"`
	Regex     bool      `json:"regex" msgpack:"regex"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
}
