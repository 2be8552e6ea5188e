package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/models"
	"github.com/noah-isme/sma-clearance-api/pkg/events"
)

// DefaultPollInterval is used when Run is given a non-positive interval.
const DefaultPollInterval = 15 * time.Second

// ItemSource returns the server's current view of a student's approval items.
type ItemSource interface {
	FetchApprovalItems(ctx context.Context, studentID string, semester models.Semester) ([]models.ApprovalItem, error)
}

// PollTicket marks the logical time a poll was dispatched.
type PollTicket struct {
	seq uint64
}

// Reconciler keeps a client-held collection of approval items consistent with local
// optimistic writes and periodic server snapshots. Items are indexed by ItemKey, so the
// collection never holds two items for the same key.
type Reconciler struct {
	mu          sync.Mutex
	items       []models.ApprovalItem
	index       map[models.ItemKey]int
	drafts      map[models.ItemKey]models.Submission
	localSeq    map[models.ItemKey]uint64
	clock       uint64
	lastApplied uint64
	available   bool
	lastErr     error

	hub     *events.Hub
	metrics *MetricsService
	logger  *zap.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerHub publishes status changes on an existing hub instead of a private one.
func WithReconcilerHub(hub *events.Hub) ReconcilerOption {
	return func(r *Reconciler) {
		if hub != nil {
			r.hub = hub
		}
	}
}

// WithReconcilerMetrics counts applied snapshots.
func WithReconcilerMetrics(metrics *MetricsService) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = metrics }
}

// NewReconciler creates an empty collection.
func NewReconciler(logger *zap.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		index:    make(map[models.ItemKey]int),
		drafts:   make(map[models.ItemKey]models.Submission),
		localSeq: make(map[models.ItemKey]uint64),
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.hub == nil {
		r.hub = events.NewHub(logger)
	}
	return r
}

// Subscribe registers a consumer of batched status-changed notifications.
func (r *Reconciler) Subscribe(buffer int) *events.Subscription {
	return r.hub.Subscribe(buffer)
}

// Unsubscribe removes a consumer registered with Subscribe.
func (r *Reconciler) Unsubscribe(sub *events.Subscription) {
	r.hub.Unsubscribe(sub)
}

// BeginPoll must be called before a snapshot request is dispatched. Local writes made after
// this call take precedence over the snapshot it returns.
func (r *Reconciler) BeginPoll() PollTicket {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	return PollTicket{seq: r.clock}
}

// ApplySnapshot merges a polled snapshot and returns the keys whose status changed. A snapshot
// dispatched before the last applied one is discarded and applied is false.
func (r *Reconciler) ApplySnapshot(ticket PollTicket, incoming []models.ApprovalItem) (changed []models.ItemKey, applied bool) {
	r.mu.Lock()
	if ticket.seq < r.lastApplied {
		r.mu.Unlock()
		r.logger.Debug("discarding superseded snapshot", zap.Uint64("ticket", ticket.seq), zap.Uint64("last_applied", r.lastApplied))
		return nil, false
	}
	r.lastApplied = ticket.seq
	r.available = true
	r.lastErr = nil

	for _, item := range incoming {
		key := item.Key()
		if seq, ok := r.localSeq[key]; ok {
			if seq > ticket.seq {
				continue
			}
			delete(r.localSeq, key)
		}
		if r.merge(item, false) {
			changed = append(changed, key)
		}
	}
	r.mu.Unlock()

	r.metrics.RecordMerge()
	r.publish(changed)
	return changed, true
}

// ApplyLocal records an optimistic write made right after a transition. It wins over any
// poll that was dispatched before it. It reports whether the status changed.
func (r *Reconciler) ApplyLocal(item models.ApprovalItem) bool {
	key := item.Key()
	r.mu.Lock()
	r.clock++
	r.localSeq[key] = r.clock
	if item.Submission != nil && item.Status != models.ApprovalPending {
		delete(r.drafts, key)
	}
	changed := r.merge(item, true)
	r.mu.Unlock()

	if changed {
		r.publish([]models.ItemKey{key})
	}
	return changed
}

// SetDraft keeps an unsent submission for the item. Drafts are never touched by merges.
func (r *Reconciler) SetDraft(key models.ItemKey, submission models.Submission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if submission == nil {
		delete(r.drafts, key)
		return
	}
	r.drafts[key] = submission
}

// Draft returns the unsent submission for the item, if any.
func (r *Reconciler) Draft(key models.ItemKey) (models.Submission, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[key]
	return draft, ok
}

// Items returns a copy of the collection in insertion order.
func (r *Reconciler) Items() []models.ApprovalItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ApprovalItem(nil), r.items...)
}

// Available reports whether the last poll succeeded. The collection keeps its prior state
// while unavailable.
func (r *Reconciler) Available() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available, r.lastErr
}

// Poll fetches one snapshot from the source and merges it.
func (r *Reconciler) Poll(ctx context.Context, source ItemSource, studentID string, semester models.Semester) ([]models.ItemKey, error) {
	ticket := r.BeginPoll()
	items, err := source.FetchApprovalItems(ctx, studentID, semester)
	if err != nil {
		r.mu.Lock()
		r.available = false
		r.lastErr = err
		r.mu.Unlock()
		r.logger.Warn("approval items not available", zap.String("student_id", studentID), zap.String("semester", string(semester)), zap.Error(err))
		return nil, err
	}
	changed, _ := r.ApplySnapshot(ticket, items)
	return changed, nil
}

// Run polls immediately and then on every tick until the context ends. A slow poll delays
// the next one rather than overlapping it.
func (r *Reconciler) Run(ctx context.Context, source ItemSource, studentID string, semester models.Semester, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	_, _ = r.Poll(ctx, source, studentID, semester)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = r.Poll(ctx, source, studentID, semester)
		}
	}
}

// merge must be called with the lock held.
func (r *Reconciler) merge(incoming models.ApprovalItem, local bool) bool {
	key := incoming.Key()
	idx, ok := r.index[key]
	if !ok {
		r.index[key] = len(r.items)
		r.items = append(r.items, incoming)
		return true
	}

	held := &r.items[idx]
	if incoming.Version < held.Version {
		return false
	}
	if held.Status == models.ApprovalApproved && incoming.Status != "" && incoming.Status != models.ApprovalApproved {
		r.logger.Debug("ignoring regression of approved item", zap.String("entity_id", key.EntityID), zap.String("status", string(incoming.Status)), zap.Bool("local", local))
		return false
	}
	before := held.Status
	overlayPresent(held, incoming)
	return held.Status != before
}

// overlayPresent copies the fields that are set on incoming onto held.
func overlayPresent(held *models.ApprovalItem, incoming models.ApprovalItem) {
	if incoming.ID != "" {
		held.ID = incoming.ID
	}
	if incoming.EntityName != "" {
		held.EntityName = incoming.EntityName
	}
	if incoming.Status != "" {
		held.Status = incoming.Status
	}
	if incoming.Submission != nil {
		held.Submission = incoming.Submission
	}
	if incoming.Remarks != nil {
		held.Remarks = incoming.Remarks
	}
	if incoming.ApproverRef != nil {
		held.ApproverRef = incoming.ApproverRef
	}
	if incoming.Version > held.Version {
		held.Version = incoming.Version
	}
	if incoming.RejectionCount > held.RejectionCount {
		held.RejectionCount = incoming.RejectionCount
	}
	if incoming.RequestedAt != nil {
		held.RequestedAt = incoming.RequestedAt
	}
	switch {
	case incoming.DecidedAt != nil:
		held.DecidedAt = incoming.DecidedAt
	case incoming.Status == models.ApprovalRequested || incoming.Status == models.ApprovalPending:
		held.DecidedAt = nil
	}
	if !incoming.UpdatedAt.IsZero() {
		held.UpdatedAt = incoming.UpdatedAt
	}
}

func (r *Reconciler) publish(changed []models.ItemKey) {
	if len(changed) == 0 {
		return
	}
	type scope struct {
		student  string
		semester models.Semester
	}
	batches := make(map[scope][]string)
	for _, key := range changed {
		s := scope{student: key.StudentID, semester: key.Semester}
		batches[s] = append(batches[s], key.EntityID)
	}
	scopes := make([]scope, 0, len(batches))
	for s := range batches {
		scopes = append(scopes, s)
	}
	sort.Slice(scopes, func(i, j int) bool {
		if scopes[i].student != scopes[j].student {
			return scopes[i].student < scopes[j].student
		}
		return scopes[i].semester < scopes[j].semester
	})
	for _, s := range scopes {
		r.hub.Publish(events.StatusChanged{StudentID: s.student, Semester: string(s.semester), EntityIDs: batches[s]})
	}
}
