// Package store persists catalog entities and their verification state.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/longbox-labs/entity-verify/internal/model"
)

// ListFilter specifies criteria for enumerating entities. AfterID is a
// keyset cursor: only rows with id > AfterID are returned, in id order.
type ListFilter struct {
	Status  model.VerificationStatus `json:"status,omitempty"`
	AfterID int64                    `json:"after_id,omitempty"`
	Limit   int                      `json:"limit,omitempty"`
}

// Store defines the persistence interface for the verification pipeline.
// Every method takes the target entity table; passing an unknown table is
// an error, never an interpolation.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, table model.TableType, name string, entityType model.EntityType) (*model.Entity, error)
	GetEntity(ctx context.Context, table model.TableType, id int64) (*model.Entity, error)
	ListEntities(ctx context.Context, table model.TableType, filter ListFilter) ([]model.Entity, error)
	CountEntities(ctx context.Context, table model.TableType, status model.VerificationStatus) (int, error)
	CountByStatus(ctx context.Context, table model.TableType) (map[model.VerificationStatus]int, error)

	// Verification
	UpdateVerification(ctx context.Context, table model.TableType, id int64, rec *model.VerifiedRecord) error

	// Catalog import
	ImportEntities(ctx context.Context, table model.TableType, entityType model.EntityType, names []string) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// tableName maps a TableType to its SQL table, rejecting anything outside
// the known set so table names are never built from caller input.
func tableName(t model.TableType) (string, error) {
	switch t {
	case model.TableCharacters:
		return "characters", nil
	case model.TableCreators:
		return "creators", nil
	default:
		return "", eris.Errorf("store: unknown table type %q", string(t))
	}
}
