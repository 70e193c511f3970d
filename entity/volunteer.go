package entity

import "time"

// Volunteer is a completed volunteer registration.
type Volunteer struct {
	Phone     string    `json:"phone" bson:"phone"`
	Name      string    `json:"name" bson:"name"`
	Surname   string    `json:"surname" bson:"surname"`
	Email     string    `json:"email,omitempty" bson:"email,omitempty"`
	Skill     string    `json:"skill" bson:"skill"`
	Area      string    `json:"area" bson:"area"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
