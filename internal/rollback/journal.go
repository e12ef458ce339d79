package rollback

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/logging"
)

// ActionRollback labels marker records.
const ActionRollback = "Rollback"

// DefaultMaxHistory bounds the journal when no limit is configured.
const DefaultMaxHistory = 100

// ChangeRecord pairs a forward action with the commands that undo it.
type ChangeRecord struct {
	ID               string      `json:"id"`
	Timestamp        string      `json:"timestamp"`
	Action           string      `json:"action"`
	Description      string      `json:"description"`
	PreviousState    SystemState `json:"previous_state"`
	NewState         SystemState `json:"new_state"`
	RollbackCommands []string    `json:"rollback_commands"`
	AppliedCommands  []string    `json:"applied_commands"`

	// RolledBackID is set on marker records to the id they undid.
	RolledBackID string `json:"rolled_back_id,omitempty"`
}

// IsMarker reports whether the record was produced by a rollback.
func (r ChangeRecord) IsMarker() bool {
	return r.RolledBackID != "" || r.Action == ActionRollback
}

// Observer is told about journal events. Metrics and the audit trail hang
// off this.
type Observer interface {
	ChangeRecorded(rec ChangeRecord)
	RolledBack(marker ChangeRecord, undone ChangeRecord)
	RollbackFailed(rec ChangeRecord, err error)
	SaveFailed(err error)
}

// Journal is the bounded, persisted change history. It has a single owner
// and does no locking of its own.
type Journal struct {
	history    []ChangeRecord
	maxHistory int

	store     Store
	executor  *Executor
	clock     clock.Clock
	logger    *logging.Logger
	observers []Observer

	lastMillis int64
}

// Option configures a Journal.
type Option func(*Journal)

func WithMaxHistory(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.maxHistory = n
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(j *Journal) { j.clock = c }
}

func WithLogger(l *logging.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

func WithExecutor(e *Executor) Option {
	return func(j *Journal) { j.executor = e }
}

func WithObserver(o Observer) Option {
	return func(j *Journal) {
		if o != nil {
			j.observers = append(j.observers, o)
		}
	}
}

// NewJournal creates an empty journal backed by store. Call Load to read
// the persisted history.
func NewJournal(store Store, opts ...Option) *Journal {
	j := &Journal{
		history:    []ChangeRecord{},
		maxHistory: DefaultMaxHistory,
		store:      store,
		clock:      clock.Default,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = logging.WithComponent("journal")
	}
	if j.executor == nil {
		j.executor = NewExecutor(nil, j.logger)
	}
	return j
}

// Load replaces the in-memory history with the persisted one. On error the
// history is left untouched and the caller decides whether to go on.
func (j *Journal) Load() error {
	history, err := j.store.Load()
	if err != nil {
		return err
	}
	if len(history) > j.maxHistory {
		history = history[:j.maxHistory]
	}
	j.history = history
	for _, rec := range history {
		if ms, ok := parseID(rec.ID); ok && ms > j.lastMillis {
			j.lastMillis = ms
		}
	}
	j.logger.Info("history loaded", "path", j.store.Path(), "entries", len(history))
	return nil
}

// History returns the records, newest first. The slice is a copy; the
// records share no mutable state with the journal.
func (j *Journal) History() []ChangeRecord {
	out := make([]ChangeRecord, len(j.history))
	for i, rec := range j.history {
		out[i] = rec.clone()
	}
	return out
}

// Len returns the number of records.
func (j *Journal) Len() int { return len(j.history) }

// MaxHistory returns the bound.
func (j *Journal) MaxHistory() int { return j.maxHistory }

// Clock is the clock stamping ids, records and snapshots.
func (j *Journal) Clock() clock.Clock { return j.clock }

// Find returns the record with id and its position from the front.
func (j *Journal) Find(id string) (ChangeRecord, int, bool) {
	for i, rec := range j.history {
		if rec.ID == id {
			return rec.clone(), i, true
		}
	}
	return ChangeRecord{}, -1, false
}

// RecordChange journals a forward mutation that has already happened.
// Explicit commands come first in the undo list; generated ones follow
// unless already present. Persistence is best effort.
func (j *Journal) RecordChange(action, description string, previous, next SystemState, explicit []string) ChangeRecord {
	rec := ChangeRecord{
		ID:               j.nextID(),
		Timestamp:        j.clock.Now().UTC().Format(time.RFC3339),
		Action:           action,
		Description:      description,
		PreviousState:    previous.Clone(),
		NewState:         next.Clone(),
		RollbackCommands: MergeCommands(explicit, ComputeInverse(previous, next)),
		AppliedCommands:  []string{},
	}

	j.pushFront(rec)
	j.persist()

	j.logger.Info("change recorded", "id", rec.ID, "action", action, "undo_commands", len(rec.RollbackCommands))
	for _, o := range j.observers {
		o.ChangeRecorded(rec.clone())
	}
	return rec.clone()
}

// RollbackLast undoes the newest record and returns the marker that
// replaces it. When an undo command fails the record goes back to the
// front with the commands that did run in AppliedCommands, and no marker
// is created.
func (j *Journal) RollbackLast(ctx context.Context, mode Mode) (ChangeRecord, error) {
	if len(j.history) == 0 {
		return ChangeRecord{}, ErrNoChanges
	}
	return j.rollbackAt(ctx, 0, mode)
}

// RollbackToID undoes every record from the front down to and including
// id. Markers produced along the way stay at the front and are not undone
// themselves. It stops at the first failure and returns the markers created
// so far, newest first.
func (j *Journal) RollbackToID(ctx context.Context, id string, mode Mode) ([]ChangeRecord, error) {
	_, index, ok := j.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIDNotFound, id)
	}

	markers := make([]ChangeRecord, 0, index+1)
	for i := 0; i <= index; i++ {
		// i markers now sit in front of the next record to undo.
		marker, err := j.rollbackAt(ctx, i, mode)
		if err != nil {
			return reverse(markers), err
		}
		markers = append(markers, marker)
	}
	return reverse(markers), nil
}

// ClearHistory drops every record and persists the empty list.
func (j *Journal) ClearHistory() {
	n := len(j.history)
	j.history = []ChangeRecord{}
	j.persist()
	j.logger.Info("history cleared", "removed", n)
}

func (j *Journal) rollbackAt(ctx context.Context, pos int, mode Mode) (ChangeRecord, error) {
	rec := j.history[pos]
	j.history = append(j.history[:pos:pos], j.history[pos+1:]...)

	if err := j.executor.Run(ctx, &rec, mode); err != nil {
		j.insertAt(pos, rec)
		j.persist()
		for _, o := range j.observers {
			o.RollbackFailed(rec.clone(), err)
		}
		return ChangeRecord{}, err
	}

	marker := ChangeRecord{
		ID:               j.nextID(),
		Timestamp:        j.clock.Now().UTC().Format(time.RFC3339),
		Action:           ActionRollback,
		Description:      fmt.Sprintf("Rolled back %s: %s", rec.ID, rec.Description),
		PreviousState:    rec.NewState.Clone(),
		NewState:         rec.PreviousState.Clone(),
		RollbackCommands: []string{},
		AppliedCommands:  append([]string{}, rec.AppliedCommands...),
		RolledBackID:     rec.ID,
	}
	j.pushFront(marker)
	j.persist()

	j.logger.Info("change rolled back", "id", rec.ID, "marker", marker.ID, "mode", mode.String(), "applied", len(marker.AppliedCommands))
	for _, o := range j.observers {
		o.RolledBack(marker.clone(), rec.clone())
	}
	return marker.clone(), nil
}

func (j *Journal) pushFront(rec ChangeRecord) {
	j.insertAt(0, rec)
	if len(j.history) > j.maxHistory {
		evicted := j.history[j.maxHistory:]
		for _, e := range evicted {
			j.logger.Debug("evicting record", "id", e.ID)
		}
		j.history = j.history[:j.maxHistory]
	}
}

func (j *Journal) insertAt(pos int, rec ChangeRecord) {
	j.history = append(j.history, ChangeRecord{})
	copy(j.history[pos+1:], j.history[pos:])
	j.history[pos] = rec
}

func (j *Journal) persist() {
	if j.store == nil {
		return
	}
	if err := j.store.Save(j.history); err != nil {
		j.logger.Error("failed to save history", "path", j.store.Path(), "error", err)
		for _, o := range j.observers {
			o.SaveFailed(err)
		}
	}
}

// nextID derives chg_<millis> from the clock, bumping past the last id
// issued so ids stay unique and ordered within one millisecond.
func (j *Journal) nextID() string {
	ms := j.clock.Now().UnixMilli()
	if ms <= j.lastMillis {
		ms = j.lastMillis + 1
	}
	j.lastMillis = ms
	return "chg_" + strconv.FormatInt(ms, 10)
}

func parseID(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, "chg_")
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(rest, 10, 64)
	return ms, err == nil
}

func (r ChangeRecord) clone() ChangeRecord {
	c := r
	c.PreviousState = r.PreviousState.Clone()
	c.NewState = r.NewState.Clone()
	c.RollbackCommands = append([]string{}, r.RollbackCommands...)
	c.AppliedCommands = append([]string{}, r.AppliedCommands...)
	return c
}

func reverse(recs []ChangeRecord) []ChangeRecord {
	for i, k := 0, len(recs)-1; i < k; i, k = i+1, k-1 {
		recs[i], recs[k] = recs[k], recs[i]
	}
	return recs
}
