package models

import "time"

// Compartment is an isolated resource container owned by the identity service
type Compartment struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ParentID       string    `json:"parent_id"`
	LifecycleState string    `json:"lifecycle_state,omitempty"`
	TimeCreated    time.Time `json:"time_created,omitempty"`
}

// Group is a named collection of principals used for policy targeting
type Group struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ParentID       string    `json:"parent_id"`
	LifecycleState string    `json:"lifecycle_state,omitempty"`
	TimeCreated    time.Time `json:"time_created,omitempty"`
}

// Policy grants a group permissions within a compartment
type Policy struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ParentID       string    `json:"parent_id"`
	Statements     []string  `json:"statements"`
	LifecycleState string    `json:"lifecycle_state,omitempty"`
	TimeCreated    time.Time `json:"time_created,omitempty"`
}

// Stage identifies a step of the onboarding sequence
type Stage string

const (
	StageCompartment Stage = "compartment"
	StageGroup       Stage = "group"
	StagePolicy      Stage = "policy"
	StageToken       Stage = "token"
	StageCompleted   Stage = "completed"
)

// Provisioned holds whatever the provisioning sequence created.
// On failure, resources from the stages that succeeded remain set.
type Provisioned struct {
	Compartment *Compartment
	Group       *Group
	Policy      *Policy
}

// OnboardingResult is the outcome of a successful onboarding
type OnboardingResult struct {
	Provisioned
	Token *Token
}
