package model

import "time"

// VerificationStatus represents the verification state of a catalog entity.
type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusVerified   VerificationStatus = "verified"
	StatusDisputed   VerificationStatus = "disputed"
)

// EntityType categorizes catalog entities.
type EntityType string

const (
	EntityTypeCharacter EntityType = "character"
	EntityTypeCreator   EntityType = "creator"
)

// TableType selects which entity table a verification or bulk run targets.
type TableType string

const (
	TableCharacters TableType = "characters"
	TableCreators   TableType = "creators"
)

// Valid reports whether t names a known entity table.
func (t TableType) Valid() bool {
	return t == TableCharacters || t == TableCreators
}

// Common field keys produced by source adapters. Adapters normalize
// provider-specific shapes into these keys; the reconciler never sees
// anything else.
const (
	FieldRealName        = "realName"
	FieldBiography       = "biography"
	FieldFirstAppearance = "firstAppearance"
	FieldCreators        = "creators"
	FieldTeams           = "teams"
	FieldAllies          = "allies"
	FieldEnemies         = "enemies"
	FieldPowers          = "powers"
	FieldImageURL        = "imageUrl"
	FieldExternalID      = "externalId"
	FieldPublisher       = "publisher"
	FieldGender          = "gender"
)

// CoreFields is the full normalized field set. The data completeness ratio
// is the fraction of these present in a verified record.
var CoreFields = []string{
	FieldRealName, FieldBiography, FieldFirstAppearance, FieldCreators,
	FieldTeams, FieldAllies, FieldEnemies, FieldPowers,
	FieldImageURL, FieldExternalID, FieldPublisher, FieldGender,
}

// SourceRecord is the normalized output of a single adapter call. It lives
// only for the duration of one verification attempt.
type SourceRecord struct {
	Source     string         `json:"source"`
	Confidence float64        `json:"confidence"`
	Fields     map[string]any `json:"fields"`
}

// Entity is a catalog entity row with its verification state.
type Entity struct {
	ID                  int64                     `json:"id"`
	CanonicalName       string                    `json:"canonical_name"`
	EntityType          EntityType                `json:"entity_type"`
	Status              VerificationStatus        `json:"verification_status"`
	VerifiedFields      map[string]any            `json:"verified_fields,omitempty"`
	DataSourceBreakdown map[string][]string       `json:"data_source_breakdown,omitempty"`
	SourceConflicts     map[string]map[string]any `json:"source_conflicts,omitempty"`
	PrimaryDataSource   string                    `json:"primary_data_source,omitempty"`
	DataCompleteness    float64                   `json:"data_completeness,omitempty"`
	LastVerifiedAt      *time.Time                `json:"last_verified_at,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// VerifiedRecord is the reconciler's write to the entity store: the merged
// fields plus full provenance for one entity.
type VerifiedRecord struct {
	VerifiedFields      map[string]any            `json:"verified_fields"`
	DataSourceBreakdown map[string][]string       `json:"data_source_breakdown"`
	SourceConflicts     map[string]map[string]any `json:"source_conflicts,omitempty"`
	PrimaryDataSource   string                    `json:"primary_data_source"`
	DataCompleteness    float64                   `json:"data_completeness"`
	Status              VerificationStatus        `json:"verification_status"`
	VerifiedAt          time.Time                 `json:"verified_at"`
}

// Disputed reports whether any field-level conflict was recorded.
func (r *VerifiedRecord) Disputed() bool {
	return len(r.SourceConflicts) > 0
}

// VerificationResult is the terminal payload of one verification job.
type VerificationResult struct {
	EntityID      int64              `json:"entity_id"`
	CanonicalName string             `json:"canonical_name"`
	Status        VerificationStatus `json:"status"`
	SourcesUsed   []string           `json:"sources_used"`
	PrimarySource string             `json:"primary_source,omitempty"`
	FieldCount    int                `json:"field_count"`
	ConflictCount int                `json:"conflict_count"`
	Skipped       bool               `json:"skipped,omitempty"`
	SkipReason    string             `json:"skip_reason,omitempty"`
	// AttemptsBySource records how many network attempts each adapter made,
	// including failed ones that contributed no data.
	AttemptsBySource map[string]int `json:"attempts_by_source,omitempty"`
	VerifiedAt       time.Time      `json:"verified_at"`
}
