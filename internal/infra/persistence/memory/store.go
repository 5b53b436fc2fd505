// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments and as the transactional
// engine underneath the durable backends.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mocacore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// User aliases domain.User for in-memory persistence operations.
	User = domain.User
	// Session aliases domain.Session.
	Session = domain.Session
	// SectionResult aliases domain.SectionResult.
	SectionResult = domain.SectionResult
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitFunc receives the changes of a transaction that passed rule
// evaluation. A non-nil error aborts the commit and leaves state untouched.
type CommitFunc func(ctx context.Context, changes []Change) error

type memoryState struct {
	users    map[string]User
	sessions map[string]Session
	results  map[string]SectionResult
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Users    map[string]User          `json:"users"`
	Sessions map[string]Session       `json:"sessions"`
	Results  map[string]SectionResult `json:"results"`
}

func newMemoryState() memoryState {
	return memoryState{
		users:    make(map[string]User),
		sessions: make(map[string]Session),
		results:  make(map[string]SectionResult),
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		users:    make(map[string]User, len(s.users)),
		sessions: make(map[string]Session, len(s.sessions)),
		results:  make(map[string]SectionResult, len(s.results)),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = cloneSession(v)
	}
	for k, v := range s.results {
		out.results[k] = cloneResult(v)
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cp := state.clone()
	return Snapshot{Users: cp.users, Sessions: cp.sessions, Results: cp.results}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Users {
		state.users[k] = v
	}
	for k, v := range s.Sessions {
		state.sessions[k] = normalizeSession(cloneSession(v))
	}
	for k, v := range s.Results {
		state.results[k] = cloneResult(v)
	}
	return state
}

// normalizeSession fills maps missing from partially written documents.
func normalizeSession(s Session) Session {
	if s.SectionScores == nil {
		s.SectionScores = map[string]float64{}
	}
	if s.SubsectionScores == nil {
		s.SubsectionScores = map[string]map[string]float64{}
	}
	if s.CompletedSections == nil {
		s.CompletedSections = []string{}
	}
	return s
}

func cloneSession(s Session) Session {
	if s.SectionScores != nil {
		scores := make(map[string]float64, len(s.SectionScores))
		for k, v := range s.SectionScores {
			scores[k] = v
		}
		s.SectionScores = scores
	}
	if s.SubsectionScores != nil {
		subs := make(map[string]map[string]float64, len(s.SubsectionScores))
		for bucket, inner := range s.SubsectionScores {
			cp := make(map[string]float64, len(inner))
			for k, v := range inner {
				cp[k] = v
			}
			subs[bucket] = cp
		}
		s.SubsectionScores = subs
	}
	if s.CompletedSections != nil {
		s.CompletedSections = append([]string{}, s.CompletedSections...)
	}
	if s.EndTime != nil {
		t := *s.EndTime
		s.EndTime = &t
	}
	return s
}

func cloneResult(r SectionResult) SectionResult {
	if r.MaxScore != nil {
		v := *r.MaxScore
		r.MaxScore = &v
	}
	if r.Details != nil {
		r.Details = append(json.RawMessage(nil), r.Details...)
	}
	return r
}

// Store provides an in-memory transactional store for the core domain.
// Transactions are serialized: one writer holds the lock from the first read
// inside fn until the new state is swapped in.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	commit CommitFunc
}

// Option configures a Store.
type Option func(*Store)

// WithCommitHook registers fn to run after rule evaluation and before the
// transactional state becomes visible. Durable backends persist here.
func WithCommitHook(fn CommitFunc) Option {
	return func(s *Store) { s.commit = fn }
}

// WithClock overrides the time provider.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, domain.TransientError{Op: "begin transaction", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, domain.TransientError{Op: "commit transaction", Err: err}
	}
	if s.commit != nil && len(tx.changes) > 0 {
		if err := s.commit(ctx, tx.changes); err != nil {
			return Result{}, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetUser returns a user by ID from committed state.
func (s *Store) GetUser(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	return u, ok
}

// GetSession returns a session by ID from committed state.
func (s *Store) GetSession(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.state.sessions[id]
	if !ok {
		return Session{}, false
	}
	return cloneSession(sess), true
}

// ListUsers returns all users from committed state.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsers(&s.state)
}

// ListSessions returns all sessions from committed state.
func (s *Store) ListSessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSessions(&s.state, func(Session) bool { return true })
}

// ListSessionResults returns the results recorded against a session.
func (s *Store) ListSessionResults(sessionID string) []SectionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listResults(&s.state, func(r SectionResult) bool { return r.SessionID == sessionID })
}

func listUsers(state *memoryState) []User {
	out := make([]User, 0, len(state.users))
	for _, u := range state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return lessByCreation(out[i].Base, out[j].Base) })
	return out
}

func listSessions(state *memoryState, keep func(Session) bool) []Session {
	out := make([]Session, 0, len(state.sessions))
	for _, sess := range state.sessions {
		if keep(sess) {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessByCreation(out[i].Base, out[j].Base) })
	return out
}

func listResults(state *memoryState, keep func(SectionResult) bool) []SectionResult {
	out := make([]SectionResult, 0)
	for _, r := range state.results {
		if keep(r) {
			out = append(out, cloneResult(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return lessByCreation(out[i].Base, out[j].Base)
	})
	return out
}

func lessByCreation(a, b domain.Base) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListUsers returns all users in the snapshot.
func (v transactionView) ListUsers() []User { return listUsers(v.state) }

// ListSessions returns all sessions in the snapshot.
func (v transactionView) ListSessions() []Session {
	return listSessions(v.state, func(Session) bool { return true })
}

// ListResults returns every section result in the snapshot.
func (v transactionView) ListResults() []SectionResult {
	return listResults(v.state, func(SectionResult) bool { return true })
}

// ListUserSessions returns the sessions owned by a user.
func (v transactionView) ListUserSessions(userID string) []Session {
	return listSessions(v.state, func(s Session) bool { return s.UserID == userID })
}

// ListSessionResults returns the results recorded for a session.
func (v transactionView) ListSessionResults(sessionID string) []SectionResult {
	return listResults(v.state, func(r SectionResult) bool { return r.SessionID == sessionID })
}

// FindUser retrieves a user by ID.
func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

// FindUserByEmail retrieves a user by email address.
func (v transactionView) FindUserByEmail(email string) (User, bool) {
	for _, u := range v.state.users {
		if u.Email == email {
			return u, true
		}
	}
	return User{}, false
}

// FindSession retrieves a session by ID.
func (v transactionView) FindSession(id string) (Session, bool) {
	s, ok := v.state.sessions[id]
	if !ok {
		return Session{}, false
	}
	return cloneSession(s), true
}

// FindResult retrieves a section result by ID.
func (v transactionView) FindResult(id string) (SectionResult, bool) {
	r, ok := v.state.results[id]
	if !ok {
		return SectionResult{}, false
	}
	return cloneResult(r), true
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindUser exposes user lookup within the transaction scope.
func (tx *transaction) FindUser(id string) (User, bool) {
	return newTransactionView(&tx.state).FindUser(id)
}

// FindSession exposes session lookup within the transaction scope.
func (tx *transaction) FindSession(id string) (Session, bool) {
	return newTransactionView(&tx.state).FindSession(id)
}

// FindResultByKey finds the result a session recorded under an idempotency key.
func (tx *transaction) FindResultByKey(sessionID, key string) (SectionResult, bool) {
	if key == "" {
		return SectionResult{}, false
	}
	for _, r := range tx.state.results {
		if r.SessionID == sessionID && r.IdempotencyKey == key {
			return cloneResult(r), true
		}
	}
	return SectionResult{}, false
}

// CreateUser stores a new user. Emails are unique.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = tx.store.newID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, fmt.Errorf("user %q already exists", u.ID)
	}
	if _, taken := newTransactionView(&tx.state).FindUserByEmail(u.Email); taken {
		return User{}, fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, u.Email)
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, EntityID: u.ID, After: u})
	return u, nil
}

// UpdateUser mutates an existing user.
func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if current.Email != before.Email {
		if other, taken := newTransactionView(&tx.state).FindUserByEmail(current.Email); taken && other.ID != id {
			return User{}, fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, current.Email)
		}
	}
	tx.state.users[id] = current
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, EntityID: id, Before: before, After: current})
	return current, nil
}

// DeleteUser removes a user. Sessions must be removed first.
func (tx *transaction) DeleteUser(id string) error {
	current, ok := tx.state.users[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	for _, sess := range tx.state.sessions {
		if sess.UserID == id {
			return fmt.Errorf("user %q still referenced by session %q", id, sess.ID)
		}
	}
	delete(tx.state.users, id)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionDelete, EntityID: id, Before: current})
	return nil
}

// CreateSession stores a new session with zeroed aggregates.
func (tx *transaction) CreateSession(s Session) (Session, error) {
	if s.ID == "" {
		s.ID = tx.store.newID()
	}
	if _, exists := tx.state.sessions[s.ID]; exists {
		return Session{}, fmt.Errorf("session %q already exists", s.ID)
	}
	if _, ok := tx.state.users[s.UserID]; !ok {
		return Session{}, domain.NotFoundError{Entity: domain.EntityUser, ID: s.UserID}
	}
	s = normalizeSession(cloneSession(s))
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	if s.StartTime.IsZero() {
		s.StartTime = tx.now
	}
	s.Version = 1
	tx.state.sessions[s.ID] = s
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionCreate, EntityID: s.ID, After: cloneSession(s)})
	return cloneSession(s), nil
}

// UpdateSession mutates a session and bumps its version.
func (tx *transaction) UpdateSession(id string, mutator func(*Session) error) (Session, error) {
	current, ok := tx.state.sessions[id]
	if !ok {
		return Session{}, domain.NotFoundError{Entity: domain.EntitySession, ID: id}
	}
	before := cloneSession(current)
	current = cloneSession(current)
	if err := mutator(&current); err != nil {
		return Session{}, err
	}
	current.ID = id
	current.UserID = before.UserID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	current = normalizeSession(current)
	tx.state.sessions[id] = cloneSession(current)
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionUpdate, EntityID: id, Before: before, After: cloneSession(current)})
	return current, nil
}

// DeleteSession removes a session. Its results must be removed first.
func (tx *transaction) DeleteSession(id string) error {
	current, ok := tx.state.sessions[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySession, ID: id}
	}
	for _, r := range tx.state.results {
		if r.SessionID == id {
			return fmt.Errorf("session %q still referenced by result %q", id, r.ID)
		}
	}
	delete(tx.state.sessions, id)
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionDelete, EntityID: id, Before: cloneSession(current)})
	return nil
}

// CreateResult stores an immutable section result.
func (tx *transaction) CreateResult(r SectionResult) (SectionResult, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.results[r.ID]; exists {
		return SectionResult{}, fmt.Errorf("section result %q already exists", r.ID)
	}
	if _, ok := tx.state.sessions[r.SessionID]; !ok {
		return SectionResult{}, domain.NotFoundError{Entity: domain.EntitySession, ID: r.SessionID}
	}
	if prior, dup := tx.FindResultByKey(r.SessionID, r.IdempotencyKey); dup {
		return SectionResult{}, fmt.Errorf("%w: key %q already recorded as %q", domain.ErrIdempotencyConflict, r.IdempotencyKey, prior.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.results[r.ID] = cloneResult(r)
	tx.recordChange(Change{Entity: domain.EntityResult, Action: domain.ActionCreate, EntityID: r.ID, After: cloneResult(r)})
	return cloneResult(r), nil
}

// DeleteResult removes a section result. Only cascading deletes call this.
func (tx *transaction) DeleteResult(id string) error {
	current, ok := tx.state.results[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityResult, ID: id}
	}
	delete(tx.state.results, id)
	tx.recordChange(Change{Entity: domain.EntityResult, Action: domain.ActionDelete, EntityID: id, Before: current})
	return nil
}
