// Package model defines the domain entities shared across every component
// of the matching engine: addresses, geocodes, technicians, clients,
// overrides, proposals, pairings, and the ledger of match/sync runs.
package model

import "time"

// NormalizationMethod is the strongest address-parsing method a
// NormalizedAddress supports.
type NormalizationMethod string

const (
	MethodFullAddress NormalizationMethod = "full_address"
	MethodZipOnly     NormalizationMethod = "zip_only"
	MethodCityState   NormalizationMethod = "city_state"
	MethodRaw         NormalizationMethod = "raw"
)

// GeocodePrecision mirrors the external geocoding provider's location-type
// taxonomy, carried through verbatim.
type GeocodePrecision string

const (
	PrecisionRooftop           GeocodePrecision = "ROOFTOP"
	PrecisionRangeInterpolated GeocodePrecision = "RANGE_INTERPOLATED"
	PrecisionGeometricCenter   GeocodePrecision = "GEOMETRIC_CENTER"
	PrecisionApproximate       GeocodePrecision = "APPROXIMATE"
)

// GeocodeSource identifies how a Geocode came to exist.
type GeocodeSource string

const (
	SourceFullAddress GeocodeSource = "full_address"
	SourceZipOnly     GeocodeSource = "zip_only"
	SourceCityState   GeocodeSource = "city_state"
	SourceManualPin   GeocodeSource = "manual_pin"
	SourceCRMImport   GeocodeSource = "crm_import"
	SourceCSVImport   GeocodeSource = "csv_import"
	SourceHRMImport   GeocodeSource = "hrm_import"
)

// TransportMode is the set of travel modes a Technician can use.
type TransportMode string

const (
	ModeCar     TransportMode = "car"
	ModeTransit TransportMode = "transit"
	ModeBoth    TransportMode = "both"
)

// TravelMode is the concrete mode a travel-time sample was computed under.
type TravelMode string

const (
	TravelDriving TravelMode = "driving"
	TravelTransit TravelMode = "transit"
)

// AvailabilityStatus derives from the Pairing table; it is never written
// independently of a Pairing transition (see the Technician invariant).
type AvailabilityStatus string

const (
	Available AvailabilityStatus = "available"
	Locked    AvailabilityStatus = "locked"
)

// PairingStatus mirrors AvailabilityStatus on the Client side.
type PairingStatus string

const (
	Unpaired PairingStatus = "unpaired"
	Paired   PairingStatus = "paired"
)

// OverrideType is the kind of operator rule recorded for a (client,
// technician) pair.
type OverrideType string

const (
	LockedAssignment OverrideType = "LOCKED_ASSIGNMENT"
	ManualAssignment OverrideType = "MANUAL_ASSIGNMENT"
	BlockPair        OverrideType = "BLOCK_PAIR"
)

// ProposalStatus is the MatchProposal state machine (§4.5).
type ProposalStatus string

const (
	Proposed ProposalStatus = "proposed"
	Approved ProposalStatus = "approved"
	Rejected ProposalStatus = "rejected"
	Expired  ProposalStatus = "expired"
	Deferred ProposalStatus = "deferred"
)

// PairingState is the lifecycle of a durable Pairing row.
type PairingState string

const (
	PairingActive   PairingState = "active"
	PairingInactive PairingState = "inactive"
)

// AssignmentStatus is the outcome recorded for a Client in a match run.
type AssignmentStatus string

const (
	StatusMatched     AssignmentStatus = "matched"
	StatusStandby     AssignmentStatus = "standby"
	StatusNoLocation  AssignmentStatus = "no_location"
	StatusNeedsReview AssignmentStatus = "needs_review"
)

// AssignmentSource distinguishes how an assignment came to be.
type AssignmentSource string

const (
	SourceAuto   AssignmentSource = "AUTO"
	SourceLocked AssignmentSource = "LOCKED"
	SourceManual AssignmentSource = "MANUAL"
)

// EntityType disambiguates id spaces shared by travel-time cache keys and
// the /location REST surface.
type EntityType string

const (
	EntityTechnician EntityType = "technician"
	EntityClient     EntityType = "client"
)

// NormalizedAddress is the output of the Address Normalizer (C1).
type NormalizedAddress struct {
	Original        string
	Street          string
	City            string
	State           string
	Zip             string
	HasStreetNumber bool
	HasStreetName   bool
	HasCity         bool
	HasState        bool
	HasZip          bool
	CanonicalString string
	Method          NormalizationMethod
	QualityScore    float64
}

// Geocode is a value type: immutable per geocoding attempt.
type Geocode struct {
	Lat               float64
	Lng               float64
	Precision         GeocodePrecision
	Confidence        float64
	Source            GeocodeSource
	AddressUsed       string
	UpdatedAt         time.Time
	NeedsVerification bool
}

// Technician is a mobile service worker.
type Technician struct {
	ID                 int64
	DisplayName        string
	AddressLine        string
	City               string
	State              string
	Zip                string
	Geocode            *Geocode
	TransportMode      TransportMode
	IsActive           bool
	AvailabilityStatus AvailabilityStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Client is a stationary service recipient.
type Client struct {
	ID                 int64
	Name               string
	AddressLine        string
	City               string
	State              string
	Zip                string
	Geocode            *Geocode
	PairingStatus      PairingStatus
	PairedTechnicianID *int64
	CRMID              *string
	CoordsStale        bool
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TravelTimeCacheEntry is keyed by (originHash, destHash, originType,
// destType, mode, bucket).
type TravelTimeCacheEntry struct {
	OriginHash             string
	DestHash               string
	OriginType             EntityType
	DestType               EntityType
	Mode                   TravelMode
	Bucket                 string
	DurationSecAvg         float64
	DurationSecMedian      float64
	DurationSecPessimistic float64
	DistanceMeters         *float64
	SampleTimes            []string
	SampleDurations        []float64
	ComputedAt             time.Time
	ExpiresAt              time.Time
}

// Override is an operator rule forcing, allowing, or forbidding a specific
// (Client, Technician) pair.
type Override struct {
	ID            int64
	ClientID      int64
	TechnicianID  int64
	Type          OverrideType
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	CreatedAt     time.Time
}

// MatchProposal is a tentative pairing awaiting operator decision.
type MatchProposal struct {
	ID                int64
	ClientID          int64
	TechnicianID      int64
	TravelTimeMinutes float64
	DistanceMeters    float64
	Status            ProposalStatus
	SimulationRunID   int64
	CreatedAt         time.Time
}

// Pairing is the durable 1:1 assignment produced by a successful approval.
type Pairing struct {
	ID           int64
	ClientID     int64
	TechnicianID int64
	ProposalID   int64
	Status       PairingState
	CreatedAt    time.Time
	EndedAt      *time.Time
}

// MatchRun records one batch matcher invocation's inputs, outcomes, and
// external-resource counters.
type MatchRun struct {
	ID               int64
	StartedAt        time.Time
	EndedAt          *time.Time
	InputClientCount int
	InputTechCount   int
	MatchedCount     int
	LockedCount      int
	AutoCount        int
	BlockedCount     int
	StandbyCount     int
	NoLocationCount  int
	NeedsReviewCount int
	GoogleAPICalls   int
	CacheHits        int
	CacheHitRate     float64
	Metadata         string
}

// Assignment is the per-client outcome a match run produces.
type Assignment struct {
	ClientID          int64
	TechnicianID      *int64
	TravelTimeSeconds float64
	DistanceMiles     float64
	Status            AssignmentStatus
	Mode              TravelMode
	Source            AssignmentSource
	Explain           Explain
}

// Explain carries the transparency record required by the matcher
// contract: why this assignment (or lack of one) happened.
type Explain struct {
	ChosenMode TravelMode
	Bucket     string
	Samples    int
	Flags      []string
}

// MatchingResult is the Matcher's (C5) return value.
type MatchingResult struct {
	Assignments     []Assignment
	GoogleAPICalls  int
	CacheHits       int
	LockedCount      int
	AutoCount        int
	BlockedCount     int
	ManualCount      int
	StandbyCount     int
	NoLocationCount  int
	NeedsReviewCount int
}

// SyncRun records one CRM→canonical synchronization.
type SyncRun struct {
	ID        int64
	Status    string // running, completed, failed
	Upserted  int
	Skipped   int
	Failed    int
	Errors    []string
	StartedAt time.Time
	EndedAt   *time.Time
}

// SchedulingMeta is the singleton sentinel row checked at startup (§6.4).
type SchedulingMeta struct {
	ID                  int
	ProjectName         string
	LastMatchingRunAt   *time.Time
	LastMatchingSummary string
}
