package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	DeleteUser(id string) error
	CreateSession(Session) (Session, error)
	UpdateSession(id string, mutator func(*Session) error) (Session, error)
	DeleteSession(id string) error
	CreateResult(SectionResult) (SectionResult, error)
	DeleteResult(id string) error
	FindUser(id string) (User, bool)
	FindSession(id string) (Session, bool)
	FindResultByKey(sessionID, key string) (SectionResult, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListUsers() []User
	ListSessions() []Session
	ListResults() []SectionResult
	ListUserSessions(userID string) []Session
	ListSessionResults(sessionID string) []SectionResult
	FindUser(id string) (User, bool)
	FindUserByEmail(email string) (User, bool)
	FindSession(id string) (Session, bool)
	FindResult(id string) (SectionResult, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetUser(id string) (User, bool)
	GetSession(id string) (Session, bool)
	ListUsers() []User
	ListSessions() []Session
	ListSessionResults(sessionID string) []SectionResult
	Close() error
}
