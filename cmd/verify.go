package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/internal/store"
)

var (
	verifyEntityID int64
	verifyTable    string
	verifyForce    bool
	verifyBatch    int
	verifyMaxAge   int
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify one entity, or a batch of unverified entities, inline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		table := model.TableType(verifyTable)
		if !table.Valid() {
			return eris.Errorf("unknown table type: %s", verifyTable)
		}

		if verifyBatch > 0 {
			return runVerifyBatch(cmd, env, table)
		}
		if verifyEntityID == 0 {
			return eris.New("either --id or --batch is required")
		}

		entity, err := env.Store.GetEntity(ctx, table, verifyEntityID)
		if err != nil {
			return eris.Wrap(err, "load entity")
		}
		if entity == nil {
			return eris.Errorf("entity not found: %s/%d", table, verifyEntityID)
		}

		result, err := env.Reconciler.VerifyEntity(ctx, model.VerificationJob{
			EntityID:      entity.ID,
			CanonicalName: entity.CanonicalName,
			EntityType:    entity.EntityType,
			TableType:     table,
			ForceRefresh:  verifyForce,
		})
		if err != nil {
			return eris.Wrap(err, "verify entity")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func runVerifyBatch(cmd *cobra.Command, env *verifyEnv, table model.TableType) error {
	ctx := cmd.Context()

	entities, err := env.Store.ListEntities(ctx, table, store.ListFilter{
		Status: model.StatusUnverified,
		Limit:  verifyBatch,
	})
	if err != nil {
		return eris.Wrap(err, "list entities")
	}
	if len(entities) == 0 {
		zap.L().Info("no unverified entities", zap.String("table", string(table)))
		return nil
	}

	var completed, failed int
	for _, e := range entities {
		result, err := env.Reconciler.VerifyEntity(ctx, model.VerificationJob{
			EntityID:      e.ID,
			CanonicalName: e.CanonicalName,
			EntityType:    e.EntityType,
			TableType:     table,
			ForceRefresh:  verifyForce,
			MaxAgeHours:   verifyMaxAge,
		})
		if err != nil {
			failed++
			zap.L().Warn("verification failed",
				zap.Int64("entity_id", e.ID),
				zap.String("name", e.CanonicalName),
				zap.Error(err),
			)
			continue
		}
		completed++
		zap.L().Info("verified",
			zap.Int64("entity_id", e.ID),
			zap.String("name", e.CanonicalName),
			zap.String("status", string(result.Status)),
			zap.Int("fields", result.FieldCount),
		)
	}

	zap.L().Info("batch complete",
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)
	return nil
}

func init() {
	verifyCmd.Flags().Int64Var(&verifyEntityID, "id", 0, "entity ID to verify")
	verifyCmd.Flags().StringVar(&verifyTable, "table", "characters", "table type (characters or creators)")
	verifyCmd.Flags().BoolVar(&verifyForce, "force", false, "refresh even if recently verified")
	verifyCmd.Flags().IntVar(&verifyBatch, "batch", 0, "verify up to N unverified entities")
	verifyCmd.Flags().IntVar(&verifyMaxAge, "max-age-hours", 0, "treat verifications older than this as stale (0 = config default)")
	rootCmd.AddCommand(verifyCmd)
}
