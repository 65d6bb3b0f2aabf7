package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// FieldType is a schema field type tag.
type FieldType string

const (
	String  FieldType = "string"
	Number  FieldType = "number"
	Boolean FieldType = "boolean"
	Object  FieldType = "object"
	Array   FieldType = "array"
)

// Schema maps field names to their expected types. Fields not listed in the
// schema are stored untyped; fields listed are validated on insert and update.
type Schema map[string]FieldType

var (
	// ErrTableExists is returned by CreateTable for a duplicate table name.
	ErrTableExists = errors.New("table already exists")

	// ErrTableNotFound is returned for operations on an unknown table.
	ErrTableNotFound = errors.New("table does not exist")
)

// SchemaError reports a field whose value does not match the table schema.
type SchemaError struct {
	Table    string
	Field    string
	Expected FieldType
	Actual   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %q: field %q expected %s, got %s", e.Table, e.Field, e.Expected, e.Actual)
}

// Record is a stored row. Data holds the caller-supplied fields; a zero
// ExpiresAt means the record never expires.
type Record struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

func (r *Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// OrderDirection selects the sort direction for Query.OrderBy.
type OrderDirection string

const (
	Asc  OrderDirection = "ASC"
	Desc OrderDirection = "DESC"
)

// Query filters, orders and paginates a table scan. Where is an exact-match
// conjunction over dot-path fields. A zero Limit means no limit.
type Query struct {
	Where          map[string]any
	OrderBy        string
	OrderDirection OrderDirection
	Limit          int
	Offset         int
}

// TableStats is diagnostic information about one table.
type TableStats struct {
	Table          string `json:"table"`
	TotalRecords   int    `json:"totalRecords"`
	ActiveRecords  int    `json:"activeRecords"`
	ExpiredRecords int    `json:"expiredRecords"`
	MemoryUsage    string `json:"memoryUsage"`
}

// MemDB is a schema-checked in-memory table store with TTL expiry.
// It holds no durable state and is safe for concurrent use. Expiry is
// checked lazily on every read; CleanupExpired sweeps the backlog.
type MemDB struct {
	mu      sync.RWMutex
	tables  map[string]map[string]*Record
	schemas map[string]Schema
	order   map[string][]string // insertion order per table, keeps scans stable

	now func() time.Time
}

// NewMemDB creates an empty store.
func NewMemDB() *MemDB {
	return &MemDB{
		tables:  make(map[string]map[string]*Record),
		schemas: make(map[string]Schema),
		order:   make(map[string][]string),
		now:     time.Now,
	}
}

// CreateTable registers a table with its schema.
func (db *MemDB) CreateTable(name string, schema Schema) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.tables[name]; ok {
		return fmt.Errorf("%w: %q", ErrTableExists, name)
	}

	db.tables[name] = make(map[string]*Record)
	db.schemas[name] = schema
	db.order[name] = nil
	return nil
}

// DropTable removes a table and all of its records.
func (db *MemDB) DropTable(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.tables, name)
	delete(db.schemas, name)
	delete(db.order, name)
}

// ListTables returns all table names in lexicographic order.
func (db *MemDB) ListTables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Insert validates data against the table schema and stores it. A positive
// ttlHours (fractional allowed) sets an absolute expiry instant of now+ttl;
// zero means the record never expires. Returns the generated record id.
func (db *MemDB) Insert(table string, data map[string]any, ttlHours float64) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, ok := db.tables[table]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}
	if err := validate(table, data, db.schemas[table]); err != nil {
		return "", err
	}

	now := db.now()
	rec := &Record{
		ID:        uuid.NewString(),
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ttlHours > 0 {
		rec.ExpiresAt = now.Add(time.Duration(ttlHours * float64(time.Hour)))
	}

	rows[rec.ID] = rec
	db.order[table] = append(db.order[table], rec.ID)
	return rec.ID, nil
}

// FindByID returns the record or nil when it is absent or expired.
// An expired record is evicted as a side effect.
func (db *MemDB) FindByID(table, id string) (*Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, ok := db.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}

	rec, ok := rows[id]
	if !ok {
		return nil, nil
	}
	if rec.expired(db.now()) {
		db.evict(table, id)
		return nil, nil
	}

	cp := *rec
	return &cp, nil
}

// Find scans the table, excluding expired records, applying the query's
// where conjunction, ordering, offset and limit in that order.
func (db *MemDB) Find(table string, q Query) ([]*Record, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, ok := db.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}

	now := db.now()
	var out []*Record
	for _, id := range db.order[table] {
		rec := rows[id]
		if rec == nil || rec.expired(now) {
			continue
		}
		if !matches(rec.Data, q.Where) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}

	if q.OrderBy != "" {
		desc := q.OrderDirection == Desc
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(dotValue(out[i].Data, q.OrderBy), dotValue(out[j].Data, q.OrderBy))
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			out = nil
		} else {
			out = out[q.Offset:]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

// Update shallow-merges fields into the record's data, revalidates the merged
// result and bumps UpdatedAt. Returns false when the record is absent or
// expired (expired records are evicted).
func (db *MemDB) Update(table, id string, fields map[string]any) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, ok := db.tables[table]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}

	rec, ok := rows[id]
	if !ok {
		return false, nil
	}
	if rec.expired(db.now()) {
		db.evict(table, id)
		return false, nil
	}

	merged := make(map[string]any, len(rec.Data)+len(fields))
	for k, v := range rec.Data {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	if err := validate(table, merged, db.schemas[table]); err != nil {
		return false, err
	}

	rec.Data = merged
	rec.UpdatedAt = db.now()
	return true, nil
}

// Delete removes a record unconditionally. Returns false when absent.
func (db *MemDB) Delete(table, id string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, ok := db.tables[table]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}
	if _, ok := rows[id]; !ok {
		return false, nil
	}
	db.evict(table, id)
	return true, nil
}

// Count returns the number of records Find would return for the query.
func (db *MemDB) Count(table string, q Query) (int, error) {
	recs, err := db.Find(table, q)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// CleanupExpired sweeps every table and removes expired records,
// returning the total number evicted.
func (db *MemDB) CleanupExpired() int {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now()
	evicted := 0
	for table, rows := range db.tables {
		for id, rec := range rows {
			if rec.expired(now) {
				db.evict(table, id)
				evicted++
			}
		}
	}
	return evicted
}

// Stats returns diagnostic counts and a human-readable size estimate for a
// table. The size is derived from the serialized records and is not
// load-bearing.
func (db *MemDB) Stats(table string) (TableStats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, ok := db.tables[table]
	if !ok {
		return TableStats{}, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}

	now := db.now()
	st := TableStats{Table: table, TotalRecords: len(rows)}
	all := make([]*Record, 0, len(rows))
	for _, rec := range rows {
		all = append(all, rec)
		if rec.expired(now) {
			st.ExpiredRecords++
		} else {
			st.ActiveRecords++
		}
	}

	b, err := json.Marshal(all)
	if err != nil {
		b = nil
	}
	st.MemoryUsage = humanize.Bytes(uint64(len(b)))
	return st, nil
}

// evict removes a record from the table map and the insertion-order index.
// Callers must hold the write lock.
func (db *MemDB) evict(table, id string) {
	delete(db.tables[table], id)
	ids := db.order[table]
	for i, v := range ids {
		if v == id {
			db.order[table] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

func validate(table string, data map[string]any, schema Schema) error {
	for field, want := range schema {
		v, ok := data[field]
		if !ok || v == nil {
			continue
		}
		got := typeOf(v)
		if got != want {
			return &SchemaError{Table: table, Field: field, Expected: want, Actual: string(got)}
		}
	}
	return nil
}

func typeOf(v any) FieldType {
	switch v.(type) {
	case string:
		return String
	case bool:
		return Boolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return Number
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return Array
	default:
		return Object
	}
}

func matches(data map[string]any, where map[string]any) bool {
	for path, want := range where {
		if compare(dotValue(data, path), want) != 0 {
			return false
		}
	}
	return true
}

// dotValue resolves a dot-path ("plan.name") against nested maps.
func dotValue(data map[string]any, path string) any {
	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// compare orders two values naturally: numerically when both are numeric,
// lexicographically otherwise.
func compare(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
