package database

import "time"

// StrategyRecord is the persisted form of a models.Strategy, keyed by its
// normalized context. Nested maps are stored as JSON text since the
// per-action fan-out is small and read back whole (§6 persisted state
// layout).
type StrategyRecord struct {
	Context          string    `json:"_id" gorm:"primaryKey;column:context"`
	BestAction       string    `json:"best_action"`
	BestQValue       float64   `json:"best_q_value"`
	TotalExperiences int       `json:"total_experiences"`
	ActionsCount     int       `json:"actions_count"`
	ActionDetails    string    `json:"action_details" gorm:"type:text"`
	QValues          string    `json:"q_values" gorm:"type:text"`
	CreatedAt        time.Time `json:"created_at"`
	LastUpdated      time.Time `json:"last_updated"`
	AlgorithmVersion string    `json:"algorithm_version"`
	SavedAt          time.Time `json:"saved_at"`
}

func (StrategyRecord) TableName() string { return "strategies" }

// QTableRow is the persisted form of one Q-table context row.
type QTableRow struct {
	Context   string    `json:"_id" gorm:"primaryKey;column:context"`
	QValues   string    `json:"q_values" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QTableRow) TableName() string { return "q_table" }

// ActiveExperience is the persisted form of an active-buffer entry, one row
// per experience id.
type ActiveExperience struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	Context     string     `json:"context" gorm:"index"`
	Action      string     `json:"action"`
	Reward      float64    `json:"reward"`
	Timestamp   time.Time  `json:"timestamp"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at"`
	Metadata    string     `json:"metadata" gorm:"type:text"`
}

func (ActiveExperience) TableName() string { return "experiences_active" }

// HistoryExperience is the persisted form of a processed experience, plus
// the timestamp it was moved out of the active buffer.
type HistoryExperience struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	Context        string     `json:"context" gorm:"index"`
	Action         string     `json:"action"`
	Reward         float64    `json:"reward"`
	Timestamp      time.Time  `json:"timestamp" gorm:"index"`
	Processed      bool       `json:"processed"`
	ProcessedAt    *time.Time `json:"processed_at"`
	Metadata       string     `json:"metadata" gorm:"type:text"`
	MovedToHistory time.Time  `json:"moved_to_history_at"`
}

func (HistoryExperience) TableName() string { return "experiences_history" }
