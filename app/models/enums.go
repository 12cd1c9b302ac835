package models

// SourceType defines where a purse contribution came from.
type SourceType string

const (
	SourcePPVTicket   SourceType = "ppv_ticket"
	SourceDirectMeet  SourceType = "direct_meet"
	SourceDirectEvent SourceType = "direct_event"
)

// PurseMode defines how a PPV ticket funds the purse.
type PurseMode string

const (
	PurseModeStatic     PurseMode = "static"
	PurseModePercentage PurseMode = "percentage"
)

// ScopeType defines the level a snapshot row caches totals for.
type ScopeType string

const (
	ScopeMeet  ScopeType = "meet"
	ScopeEvent ScopeType = "event"
	ScopePlace ScopeType = "place"
)

// AccessType defines how a user gained access to a meet broadcast.
type AccessType string

const (
	AccessPPV AccessType = "ppv"
)

// EventGender defines the gender category of a meet event.
type EventGender string

const (
	EventMale   EventGender = "male"
	EventFemale EventGender = "female"
	EventMixed  EventGender = "mixed"
)
