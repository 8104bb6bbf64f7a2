package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/apex-system/rl-engine/pkg/models"
)

// Repository implements the rlservice.Store and lifecycle persistence
// ports over the four C7 collections. All operations are upsert-by-key;
// SaveStrategies is the one full-replace operation and must only be
// called from the single writer the engine lock already serializes.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveStrategies replaces the entire strategies collection with the given
// snapshot (delete-then-insert, per §4.6).
func (r *Repository) SaveStrategies(ctx context.Context, strategies map[string]models.Strategy) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&StrategyRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear strategies: %w", err)
		}
		now := time.Now().UTC()
		records := make([]StrategyRecord, 0, len(strategies))
		for context, s := range strategies {
			detailsJSON, err := json.Marshal(s.ActionDetails)
			if err != nil {
				return fmt.Errorf("failed to marshal action_details for %s: %w", context, err)
			}
			qvaluesJSON, err := json.Marshal(s.QValues)
			if err != nil {
				return fmt.Errorf("failed to marshal q_values for %s: %w", context, err)
			}
			records = append(records, StrategyRecord{
				Context:          context,
				BestAction:       string(s.BestAction),
				BestQValue:       s.BestQValue,
				TotalExperiences: s.TotalExperiences,
				ActionsCount:     s.ActionsCount,
				ActionDetails:    string(detailsJSON),
				QValues:          string(qvaluesJSON),
				CreatedAt:        s.CreatedAt,
				LastUpdated:      s.LastUpdated,
				AlgorithmVersion: s.AlgorithmVersion,
				SavedAt:          now,
			})
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 100).Error
	})
}

// SaveQRow upserts the Q-table row for one context.
func (r *Repository) SaveQRow(ctx context.Context, campaignContext string, row map[models.Action]float64) error {
	qvaluesJSON, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal q_values for %s: %w", campaignContext, err)
	}
	record := QTableRow{
		Context:   campaignContext,
		QValues:   string(qvaluesJSON),
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Save(&record).Error
}

// InsertExperience upserts one active-buffer entry.
func (r *Repository) InsertExperience(ctx context.Context, exp models.Experience) error {
	metadataJSON, err := json.Marshal(exp.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", exp.ID, err)
	}
	record := ActiveExperience{
		ID:          exp.ID,
		Context:     exp.Context,
		Action:      string(exp.Action),
		Reward:      exp.Reward,
		Timestamp:   exp.Timestamp,
		Processed:   exp.Processed,
		ProcessedAt: exp.ProcessedAt,
		Metadata:    string(metadataJSON),
	}
	return r.db.WithContext(ctx).Save(&record).Error
}

// DeleteExperience removes an active-buffer entry by id, used when an
// experience is promoted to history.
func (r *Repository) DeleteExperience(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&ActiveExperience{}).Error
}

// BulkInsertHistory upserts a batch of processed experiences into the
// history collection and removes their active-buffer rows, mirroring the
// in-memory promote() operation.
func (r *Repository) BulkInsertHistory(ctx context.Context, exps []models.Experience) error {
	if len(exps) == 0 {
		return nil
	}
	now := time.Now().UTC()
	records := make([]HistoryExperience, 0, len(exps))
	ids := make([]string, 0, len(exps))
	for _, exp := range exps {
		metadataJSON, err := json.Marshal(exp.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", exp.ID, err)
		}
		records = append(records, HistoryExperience{
			ID:             exp.ID,
			Context:        exp.Context,
			Action:         string(exp.Action),
			Reward:         exp.Reward,
			Timestamp:      exp.Timestamp,
			Processed:      exp.Processed,
			ProcessedAt:    exp.ProcessedAt,
			Metadata:       string(metadataJSON),
			MovedToHistory: now,
		})
		ids = append(ids, exp.ID)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(records, 100).Error; err != nil {
			return fmt.Errorf("failed to bulk insert history: %w", err)
		}
		return tx.Where("id IN ?", ids).Delete(&ActiveExperience{}).Error
	})
}

// CleanupHistory deletes history rows older than the cutoff, mirroring
// prune_history's age-based eviction on the durable side.
func (r *Repository) CleanupHistory(ctx context.Context, before time.Time) error {
	return r.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&HistoryExperience{}).Error
}

// LoadedState is the full in-memory state reconstructed from persistence
// at startup.
type LoadedState struct {
	QTable     map[string]map[models.Action]float64
	Strategies map[string]*models.Strategy
	Active     []models.Experience
	History    []models.Experience
}

// LoadAll reconstructs the in-memory engine state from the four
// collections. A failure on any individual collection is returned to the
// caller, who decides (per §7) whether it is critical enough to abort
// startup.
func (r *Repository) LoadAll(ctx context.Context) (LoadedState, error) {
	state := LoadedState{
		QTable:     make(map[string]map[models.Action]float64),
		Strategies: make(map[string]*models.Strategy),
	}

	var qrows []QTableRow
	if err := r.db.WithContext(ctx).Find(&qrows).Error; err != nil {
		return state, fmt.Errorf("failed to load q_table: %w", err)
	}
	for _, row := range qrows {
		var values map[models.Action]float64
		if err := json.Unmarshal([]byte(row.QValues), &values); err != nil {
			return state, fmt.Errorf("failed to unmarshal q_values for %s: %w", row.Context, err)
		}
		state.QTable[row.Context] = values
	}

	var strategyRows []StrategyRecord
	if err := r.db.WithContext(ctx).Find(&strategyRows).Error; err != nil {
		return state, fmt.Errorf("failed to load strategies: %w", err)
	}
	for _, row := range strategyRows {
		var details map[models.Action]*models.ActionDetail
		if err := json.Unmarshal([]byte(row.ActionDetails), &details); err != nil {
			return state, fmt.Errorf("failed to unmarshal action_details for %s: %w", row.Context, err)
		}
		var qvalues map[models.Action]float64
		if err := json.Unmarshal([]byte(row.QValues), &qvalues); err != nil {
			return state, fmt.Errorf("failed to unmarshal q_values for %s: %w", row.Context, err)
		}
		state.Strategies[row.Context] = &models.Strategy{
			Context:          row.Context,
			BestAction:       models.Action(row.BestAction),
			BestQValue:       row.BestQValue,
			TotalExperiences: row.TotalExperiences,
			ActionsCount:     row.ActionsCount,
			ActionDetails:    details,
			QValues:          qvalues,
			CreatedAt:        row.CreatedAt,
			LastUpdated:      row.LastUpdated,
			AlgorithmVersion: row.AlgorithmVersion,
		}
	}

	var activeRows []ActiveExperience
	if err := r.db.WithContext(ctx).Find(&activeRows).Error; err != nil {
		return state, fmt.Errorf("failed to load experiences_active: %w", err)
	}
	for _, row := range activeRows {
		var metadata map[string]string
		_ = json.Unmarshal([]byte(row.Metadata), &metadata)
		state.Active = append(state.Active, models.Experience{
			ID:          row.ID,
			Context:     row.Context,
			Action:      models.Action(row.Action),
			Reward:      row.Reward,
			Timestamp:   row.Timestamp,
			Processed:   row.Processed,
			ProcessedAt: row.ProcessedAt,
			Metadata:    metadata,
		})
	}

	var historyRows []HistoryExperience
	if err := r.db.WithContext(ctx).Order("timestamp ASC").Find(&historyRows).Error; err != nil {
		return state, fmt.Errorf("failed to load experiences_history: %w", err)
	}
	for _, row := range historyRows {
		var metadata map[string]string
		_ = json.Unmarshal([]byte(row.Metadata), &metadata)
		state.History = append(state.History, models.Experience{
			ID:          row.ID,
			Context:     row.Context,
			Action:      models.Action(row.Action),
			Reward:      row.Reward,
			Timestamp:   row.Timestamp,
			Processed:   row.Processed,
			ProcessedAt: row.ProcessedAt,
			Metadata:    metadata,
		})
	}

	return state, nil
}
