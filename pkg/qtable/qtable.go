// Package qtable implements the tabular Q-function: a context x action
// mapping to a Q-value, updated with a single-step, terminal-style Bellman
// rule. It is grounded on the teacher's pkg/learning.QLearning table, with
// the discretized-state hashing removed since contexts here are already
// normalized strings and actions are a closed enum rather than an open
// DataLocation set.
package qtable

import "github.com/apex-system/rl-engine/pkg/models"

// QTable maps context -> action -> Q-value. Missing cells read as 0.0; no
// operation on QTable fails.
type QTable struct {
	learningRate float64
	table        map[string]map[models.Action]float64
}

// New creates an empty Q-table with the given learning rate (alpha).
func New(learningRate float64) *QTable {
	return &QTable{
		learningRate: learningRate,
		table:        make(map[string]map[models.Action]float64),
	}
}

// Get returns the stored Q-value for (context, action), or 0.0 if absent.
func (q *QTable) Get(context string, action models.Action) float64 {
	row, ok := q.table[context]
	if !ok {
		return 0.0
	}
	return row[action]
}

// Update applies Q(c,a) <- Q(c,a) + alpha*(r - Q(c,a)), the single-step
// terminal-style update (no bootstrap from a next state, since every
// decision is modelled as immediately terminating). It creates the row/cell
// on demand and returns the new value.
func (q *QTable) Update(context string, action models.Action, reward float64) float64 {
	row, ok := q.table[context]
	if !ok {
		row = make(map[models.Action]float64)
		q.table[context] = row
	}

	current := row[action]
	newQ := current + q.learningRate*(reward-current)
	row[action] = newQ
	return newQ
}

// BestAction returns the argmax over the supplied candidate actions for a
// context, with ties broken by enum order. Returns false if none of the
// candidates have a row entry at all and the context is unseen.
func (q *QTable) BestAction(context string, candidates []models.Action) (models.Action, float64, bool) {
	row, ok := q.table[context]
	if !ok {
		return "", 0, false
	}

	var best models.Action
	bestQ := 0.0
	found := false
	for _, action := range candidates {
		val := row[action]
		if !found || val > bestQ {
			best = action
			bestQ = val
			found = true
		}
	}
	return best, bestQ, found
}

// HasContext reports whether the Q-table holds any values for a context.
func (q *QTable) HasContext(context string) bool {
	row, ok := q.table[context]
	return ok && len(row) > 0
}

// Row returns a copy of the Q-values for a context, for strategy recompute
// and persistence. Returns nil for an unseen context.
func (q *QTable) Row(context string) map[models.Action]float64 {
	row, ok := q.table[context]
	if !ok {
		return nil
	}
	out := make(map[models.Action]float64, len(row))
	for a, v := range row {
		out[a] = v
	}
	return out
}

// Snapshot returns a deep copy of the entire table, for persistence.
func (q *QTable) Snapshot() map[string]map[models.Action]float64 {
	out := make(map[string]map[models.Action]float64, len(q.table))
	for ctx, row := range q.table {
		rowCopy := make(map[models.Action]float64, len(row))
		for a, v := range row {
			rowCopy[a] = v
		}
		out[ctx] = rowCopy
	}
	return out
}

// Load replaces the table contents from persistence.
func (q *QTable) Load(data map[string]map[models.Action]float64) {
	q.table = make(map[string]map[models.Action]float64, len(data))
	for ctx, row := range data {
		rowCopy := make(map[models.Action]float64, len(row))
		for a, v := range row {
			rowCopy[a] = v
		}
		q.table[ctx] = rowCopy
	}
}
