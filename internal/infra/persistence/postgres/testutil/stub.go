// Package testutil provides an in-process database/sql driver that speaks
// just enough of the postgres store's dialect: collection DDL, id/payload
// upserts (optionally guarded by the stored version), deletes by id and
// full-table reads.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
)

// Document is one stored id/payload row.
type Document struct {
	ID      string
	Payload []byte
}

// StubConn is the single connection shared by every sql.DB handle of a stub.
// The Fail* toggles inject errors at the matching step.
type StubConn struct {
	mu     sync.Mutex
	tables map[string]map[string][]byte

	Execs      []string
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
	RowsErr    error
}

var (
	stubSeq   atomic.Int64
	createRe  = regexp.MustCompile(`(?is)^\s*CREATE TABLE IF NOT EXISTS\s+(\w+)`)
	upsertRe  = regexp.MustCompile(`(?is)^\s*INSERT INTO\s+(\w+)\s*\(\s*id\s*,\s*payload\s*\)`)
	deleteRe  = regexp.MustCompile(`(?is)^\s*DELETE FROM\s+(\w+)\s+WHERE\s+id\s*=`)
	selectRe  = regexp.MustCompile(`(?is)^\s*SELECT\s+id\s*,\s*payload\s+FROM\s+(\w+)`)
	errNoImpl = errors.New("not implemented")
)

// NewStubDB registers a fresh driver instance and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{tables: make(map[string]map[string][]byte)}
	name := fmt.Sprintf("mocacore-stubpg-%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Seed stores a row as if an earlier process had written it.
func (c *StubConn) Seed(table, id string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table(table)[id] = append([]byte(nil), payload...)
}

// Documents returns the rows of table ordered by id.
func (c *StubConn) Documents(table string) []Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs := make([]Document, 0, len(c.tables[table]))
	for id, payload := range c.tables[table] {
		docs = append(docs, Document{ID: id, Payload: payload})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (c *StubConn) table(name string) map[string][]byte {
	t, ok := c.tables[name]
	if !ok {
		t = make(map[string][]byte)
		c.tables[name] = t
	}
	return t
}

type stubDriver struct {
	conn *StubConn
}

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn. Every statement goes through the context variants.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, errNoImpl }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Writes are applied immediately;
// rollback is not modelled.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("begin fail")
	}
	return stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("exec fail")
	}
	switch {
	case createRe.MatchString(query):
		c.table(createRe.FindStringSubmatch(query)[1])
	case upsertRe.MatchString(query):
		name := upsertRe.FindStringSubmatch(query)[1]
		if c.FailTables[name] {
			return nil, fmt.Errorf("exec fail for %s", name)
		}
		if len(args) != 2 && len(args) != 3 {
			return nil, fmt.Errorf("upsert %s: want 2 or 3 args, got %d", name, len(args))
		}
		id, payload, err := documentArgs(args)
		if err != nil {
			return nil, fmt.Errorf("upsert %s: %w", name, err)
		}
		if len(args) == 3 {
			if stored, ok := c.table(name)[id]; ok && storedVersion(stored) != args[2].Value {
				return driver.RowsAffected(0), nil
			}
		}
		c.table(name)[id] = payload
	case deleteRe.MatchString(query):
		name := deleteRe.FindStringSubmatch(query)[1]
		if len(args) != 1 {
			return nil, fmt.Errorf("delete %s: want 1 arg, got %d", name, len(args))
		}
		id, _ := args[0].Value.(string)
		delete(c.table(name), id)
	default:
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
	return driver.RowsAffected(1), nil
}

func documentArgs(args []driver.NamedValue) (string, []byte, error) {
	id, ok := args[0].Value.(string)
	if !ok {
		return "", nil, fmt.Errorf("id is %T", args[0].Value)
	}
	switch v := args[1].Value.(type) {
	case []byte:
		return id, append([]byte(nil), v...), nil
	case string:
		return id, []byte(v), nil
	default:
		return "", nil, fmt.Errorf("payload is %T", v)
	}
}

// storedVersion reads the version field of a stored payload as the driver
// value type of an int64 argument.
func storedVersion(payload []byte) any {
	var doc struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil
	}
	return doc.Version
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	m := selectRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	if c.FailTables[m[1]] {
		return nil, fmt.Errorf("query fail for %s", m[1])
	}
	return &stubRows{docs: c.Documents(m[1]), err: c.RowsErr}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("commit fail")
	}
	return nil
}

func (stubTx) Rollback() error { return nil }

type stubRows struct {
	docs []Document
	idx  int
	err  error
}

func (*stubRows) Columns() []string { return []string{"id", "payload"} }
func (*stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.docs) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	dest[0] = r.docs[r.idx].ID
	dest[1] = r.docs[r.idx].Payload
	r.idx++
	return nil
}
