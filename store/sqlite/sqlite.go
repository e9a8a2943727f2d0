/*
Package sqlite provides a SQLite-backed implementation of the ledger storage interfaces.

PURPOSE:
  Implements every persistence interface the Engine needs using a single
  SQLite database file. The postgres package mirrors it for shared
  deployments.

INTERFACES IMPLEMENTED:
  provenance.Store:           Batches, products, checkpoints
  provenance.EventLog:        Append-only event log with a monotonic cursor
  provenance.DirectoryWriter: Actor → role table
  provenance.DocumentStore:   Content-addressed certificate documents

APPEND-ONLY ENFORCEMENT:
  - checkpoints rows are only ever INSERTed, keyed by (product_id, seq)
  - events rows are only ever INSERTed; seq is AUTOINCREMENT so it is
    never reused, even after a delete
  - product updates go through provenance.CheckProductUpdate before any
    UPDATE is issued, inside the same SQL transaction as the read

KEY TABLES:
  batches:     One row per batch, certification columns inline
  products:    One row per product, customer details inline
  checkpoints: Ordered custody log per product
  actors:      Role directory
  events:      Ledger event log
  documents:   Certificate documents by sha256

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, which also
  keeps ":memory:" databases shared across calls. The Engine's per-entity
  locks sit above this; the mutex only protects the connection.

IDS:
  Batch and product ids are uint64 and stored as INTEGER (int64). The
  conversion is bijective so ids above MaxInt64 round-trip, but SQL
  ordering on them is not meaningful; listings are sorted in Go.

USAGE:
  store, err := sqlite.New("./data/provenance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := provenance.NewEngine(store, store, store)

SEE ALSO:
  - provenance/store.go: Interface definitions
  - provenance/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/provenance-ledger/provenance"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		price INTEGER NOT NULL,
		manufacturer_name TEXT NOT NULL,
		manufacturer_details TEXT NOT NULL,
		longitude TEXT NOT NULL,
		latitude TEXT NOT NULL,
		category TEXT NOT NULL,
		manufacturer TEXT NOT NULL,
		is_certified INTEGER NOT NULL DEFAULT 0,
		authority_name TEXT,
		digital_signature TEXT,
		document_hash TEXT,
		certified_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batches_manufacturer
		ON batches(manufacturer);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		batch_id INTEGER NOT NULL REFERENCES batches(id),
		manufacturer TEXT NOT NULL,
		logistics_partner TEXT NOT NULL DEFAULT '',
		customer TEXT NOT NULL DEFAULT '',
		customer_name TEXT NOT NULL DEFAULT '',
		customer_address TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		customer_email TEXT NOT NULL DEFAULT '',
		delivery_status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_batch
		ON products(batch_id);

	-- Custody log: insert-only, ordered by seq within a product
	CREATE TABLE IF NOT EXISTS checkpoints (
		product_id INTEGER NOT NULL REFERENCES products(id),
		seq INTEGER NOT NULL,
		location TEXT NOT NULL,
		longitude TEXT NOT NULL,
		latitude TEXT NOT NULL,
		check_in_time INTEGER NOT NULL,
		check_out_time INTEGER NOT NULL,
		PRIMARY KEY (product_id, seq)
	);

	CREATE TABLE IF NOT EXISTS actors (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		actor TEXT NOT NULL,
		batch_id INTEGER NOT NULL DEFAULT 0,
		product_id INTEGER NOT NULL DEFAULT 0,
		payload_json TEXT,
		at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		hash TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BATCHES (provenance.Store interface)
// =============================================================================

func (s *Store) CreateBatch(ctx context.Context, b provenance.Batch) (provenance.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO batches
		(id, name, price, manufacturer_name, manufacturer_details, longitude, latitude,
		 category, manufacturer, is_certified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		int64(b.ID),
		b.Name,
		b.Price,
		b.ManufacturerName,
		b.ManufacturerDetails,
		b.Location.Longitude,
		b.Location.Latitude,
		b.Category,
		string(b.Manufacturer),
		now(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return provenance.Batch{}, provenance.DuplicateBatch(b.ID)
		}
		return provenance.Batch{}, fmt.Errorf("failed to insert batch: %w", err)
	}

	b.Certification = nil
	b.IsCertified = false
	return b, nil
}

// CertifyBatch sets the certification columns only while is_certified is 0,
// so two racing certifiers cannot both win.
func (s *Store) CertifyBatch(ctx context.Context, id provenance.BatchID, cert provenance.Certification) (provenance.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE batches
		SET is_certified = 1, authority_name = ?, digital_signature = ?, document_hash = ?, certified_by = ?
		WHERE id = ? AND is_certified = 0
	`
	res, err := s.db.ExecContext(ctx, query,
		cert.AuthorityName,
		cert.DigitalSignature,
		cert.DocumentHash,
		string(cert.CertifiedBy),
		int64(id),
	)
	if err != nil {
		return provenance.Batch{}, fmt.Errorf("failed to certify batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return provenance.Batch{}, err
	}

	b, err := getBatch(ctx, s.db, id)
	if err != nil {
		return provenance.Batch{}, err
	}
	if n == 0 {
		return provenance.Batch{}, provenance.ErrAlreadyCertified
	}
	return b, nil
}

func (s *Store) GetBatch(ctx context.Context, id provenance.BatchID) (provenance.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getBatch(ctx, s.db, id)
}

func getBatch(ctx context.Context, q queryer, id provenance.BatchID) (provenance.Batch, error) {
	query := `
		SELECT id, name, price, manufacturer_name, manufacturer_details, longitude, latitude,
		       category, manufacturer, is_certified, authority_name, digital_signature,
		       document_hash, certified_by
		FROM batches WHERE id = ?
	`
	var (
		b            provenance.Batch
		rawID        int64
		manufacturer string
		certified    bool
	)
	var authority, signature, hash, certifier sql.NullString
	err := q.QueryRowContext(ctx, query, int64(id)).Scan(
		&rawID, &b.Name, &b.Price, &b.ManufacturerName, &b.ManufacturerDetails,
		&b.Location.Longitude, &b.Location.Latitude, &b.Category, &manufacturer,
		&certified, &authority, &signature, &hash, &certifier,
	)
	if err == sql.ErrNoRows {
		return provenance.Batch{}, provenance.BatchNotFound(id)
	}
	if err != nil {
		return provenance.Batch{}, fmt.Errorf("failed to load batch: %w", err)
	}

	b.ID = provenance.BatchID(rawID)
	b.Manufacturer = provenance.ActorID(manufacturer)
	b.IsCertified = certified
	if certified {
		b.Certification = &provenance.Certification{
			AuthorityName:    authority.String,
			DigitalSignature: signature.String,
			DocumentHash:     hash.String,
			CertifiedBy:      provenance.ActorID(certifier.String),
		}
	}
	return b, nil
}

func (s *Store) ListBatchIDs(ctx context.Context) ([]provenance.BatchID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := listIDs(ctx, s.db, "SELECT id FROM batches")
	if err != nil {
		return nil, err
	}
	ids := make([]provenance.BatchID, len(raw))
	for i, id := range raw {
		ids[i] = provenance.BatchID(id)
	}
	return ids, nil
}

// =============================================================================
// PRODUCTS (provenance.Store interface)
// =============================================================================

func (s *Store) CreateProduct(ctx context.Context, p provenance.Product) (provenance.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := getBatch(ctx, sqlTx, p.BatchID); err != nil {
		return provenance.Product{}, err
	}

	query := `
		INSERT INTO products
		(id, batch_id, manufacturer, logistics_partner, customer, customer_name, customer_address,
		 customer_phone, customer_email, delivery_status, created_at)
		VALUES (?, ?, ?, '', '', ?, ?, ?, ?, ?, ?)
	`
	_, err = sqlTx.ExecContext(ctx, query,
		int64(p.ID),
		int64(p.BatchID),
		string(p.Manufacturer),
		p.CustomerDetails.Name,
		p.CustomerDetails.Address,
		p.CustomerDetails.Phone,
		p.CustomerDetails.Email,
		string(provenance.StatusCreated),
		now(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return provenance.Product{}, provenance.DuplicateProduct(p.ID)
		}
		return provenance.Product{}, fmt.Errorf("failed to insert product: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return provenance.Product{}, err
	}

	p.LogisticsPartner = ""
	p.Customer = ""
	p.DeliveryStatus = provenance.StatusCreated
	p.Checkpoints = []provenance.Checkpoint{}
	return p, nil
}

// UpdateProduct loads, mutates, checks and writes back inside one SQL
// transaction. New checkpoints are inserted; existing rows are never touched.
func (s *Store) UpdateProduct(ctx context.Context, id provenance.ProductID, fn provenance.ProductMutator) (provenance.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	before, err := getProduct(ctx, sqlTx, id)
	if err != nil {
		return provenance.Product{}, err
	}
	after := before.Clone()
	if err := fn(&after); err != nil {
		return provenance.Product{}, err
	}
	if err := provenance.CheckProductUpdate(before, after); err != nil {
		return provenance.Product{}, err
	}

	query := `
		UPDATE products
		SET logistics_partner = ?, customer = ?, customer_name = ?, customer_address = ?,
		    customer_phone = ?, customer_email = ?, delivery_status = ?
		WHERE id = ?
	`
	_, err = sqlTx.ExecContext(ctx, query,
		string(after.LogisticsPartner),
		string(after.Customer),
		after.CustomerDetails.Name,
		after.CustomerDetails.Address,
		after.CustomerDetails.Phone,
		after.CustomerDetails.Email,
		string(after.DeliveryStatus),
		int64(id),
	)
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to update product: %w", err)
	}
	for i := len(before.Checkpoints); i < len(after.Checkpoints); i++ {
		if err := insertCheckpoint(ctx, sqlTx, id, i, after.Checkpoints[i]); err != nil {
			return provenance.Product{}, err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return provenance.Product{}, err
	}
	return after, nil
}

func (s *Store) AppendCheckpoint(ctx context.Context, id provenance.ProductID, cp provenance.Checkpoint) (provenance.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	p, err := getProduct(ctx, sqlTx, id)
	if err != nil {
		return provenance.Product{}, err
	}
	if err := insertCheckpoint(ctx, sqlTx, id, len(p.Checkpoints), cp); err != nil {
		return provenance.Product{}, err
	}
	if err := sqlTx.Commit(); err != nil {
		return provenance.Product{}, err
	}

	p.Checkpoints = append(p.Checkpoints, cp)
	return p, nil
}

func insertCheckpoint(ctx context.Context, q queryer, id provenance.ProductID, seq int, cp provenance.Checkpoint) error {
	query := `
		INSERT INTO checkpoints
		(product_id, seq, location, longitude, latitude, check_in_time, check_out_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		int64(id), seq, cp.Location, cp.Longitude, cp.Latitude, cp.CheckInTime, cp.CheckOutTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id provenance.ProductID) (provenance.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q queryer, id provenance.ProductID) (provenance.Product, error) {
	query := `
		SELECT id, batch_id, manufacturer, logistics_partner, customer, customer_name,
		       customer_address, customer_phone, customer_email, delivery_status
		FROM products WHERE id = ?
	`
	var (
		p                                   provenance.Product
		rawID, rawBatch                     int64
		manufacturer, partner, customer, st string
	)
	err := q.QueryRowContext(ctx, query, int64(id)).Scan(
		&rawID, &rawBatch, &manufacturer, &partner, &customer,
		&p.CustomerDetails.Name, &p.CustomerDetails.Address, &p.CustomerDetails.Phone, &p.CustomerDetails.Email,
		&st,
	)
	if err == sql.ErrNoRows {
		return provenance.Product{}, provenance.ProductNotFound(id)
	}
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to load product: %w", err)
	}
	p.ID = provenance.ProductID(rawID)
	p.BatchID = provenance.BatchID(rawBatch)
	p.Manufacturer = provenance.ActorID(manufacturer)
	p.LogisticsPartner = provenance.ActorID(partner)
	p.Customer = provenance.ActorID(customer)
	p.DeliveryStatus = provenance.DeliveryStatus(st)

	p.Checkpoints, err = loadCheckpoints(ctx, q, id)
	if err != nil {
		return provenance.Product{}, err
	}
	return p, nil
}

func loadCheckpoints(ctx context.Context, q queryer, id provenance.ProductID) ([]provenance.Checkpoint, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT location, longitude, latitude, check_in_time, check_out_time
		FROM checkpoints WHERE product_id = ? ORDER BY seq
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []provenance.Checkpoint{}
	for rows.Next() {
		var cp provenance.Checkpoint
		if err := rows.Scan(&cp.Location, &cp.Longitude, &cp.Latitude, &cp.CheckInTime, &cp.CheckOutTime); err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

func (s *Store) ListProductIDs(ctx context.Context) ([]provenance.ProductID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := listIDs(ctx, s.db, "SELECT id FROM products")
	if err != nil {
		return nil, err
	}
	ids := make([]provenance.ProductID, len(raw))
	for i, id := range raw {
		ids[i] = provenance.ProductID(id)
	}
	return ids, nil
}

func listIDs(ctx context.Context, q queryer, query string) ([]uint64, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// =============================================================================
// EVENT LOG (provenance.EventLog interface)
// =============================================================================

func (s *Store) AppendEvent(ctx context.Context, e provenance.Event) (provenance.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return provenance.Event{}, fmt.Errorf("failed to encode event payload: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, actor, batch_id, product_id, payload_json, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		string(e.Type),
		string(e.Actor),
		int64(e.BatchID),
		int64(e.ProductID),
		string(payloadJSON),
		e.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return provenance.Event{}, fmt.Errorf("failed to append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return provenance.Event{}, err
	}
	e.Seq = uint64(seq)
	return e, nil
}

// EventsSince returns events with seq > after in order. limit <= 0 means all.
func (s *Store) EventsSince(ctx context.Context, after uint64, limit int) ([]provenance.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, type, actor, batch_id, product_id, payload_json, at
		FROM events WHERE seq > ? ORDER BY seq LIMIT ?
	`, int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	events := []provenance.Event{}
	for rows.Next() {
		var (
			e                provenance.Event
			seq, batch, prod int64
			typ, actor, at   string
			payloadJSON      sql.NullString
		)
		if err := rows.Scan(&seq, &e.ID, &typ, &actor, &batch, &prod, &payloadJSON, &at); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Type = provenance.EventType(typ)
		e.Actor = provenance.ActorID(actor)
		e.BatchID = provenance.BatchID(batch)
		e.ProductID = provenance.ProductID(prod)
		if payloadJSON.Valid && payloadJSON.String != "null" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload of event %d: %w", seq, err)
			}
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("failed to decode timestamp of event %d: %w", seq, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// DIRECTORY (provenance.DirectoryWriter interface)
// =============================================================================

func (s *Store) ResolveRole(ctx context.Context, actor provenance.ActorID) (provenance.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var role string
	err := s.db.QueryRowContext(ctx, "SELECT role FROM actors WHERE id = ?", string(actor)).Scan(&role)
	if err == sql.ErrNoRows {
		return "", &provenance.NotFoundError{Kind: provenance.KindActor, ID: string(actor)}
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}
	return provenance.Role(role), nil
}

// AssignRole registers an actor. Re-registering with the same role is a no-op.
func (s *Store) AssignRole(ctx context.Context, actor provenance.ActorID, role provenance.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", provenance.ErrInvalidInput, role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "INSERT INTO actors (id, role, created_at) VALUES (?, ?, ?)",
		string(actor), string(role), now())
	if err == nil {
		return nil
	}
	if !isUniqueConstraintError(err) {
		return fmt.Errorf("failed to register actor: %w", err)
	}

	var existing string
	if err := s.db.QueryRowContext(ctx, "SELECT role FROM actors WHERE id = ?", string(actor)).Scan(&existing); err != nil {
		return err
	}
	if provenance.Role(existing) == role {
		return nil
	}
	return &provenance.DuplicateIDError{Kind: provenance.KindActor, ID: string(actor)}
}

// =============================================================================
// DOCUMENTS (provenance.DocumentStore interface)
// =============================================================================

func (s *Store) UploadDocument(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", provenance.ErrInvalidInput)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO documents (hash, data, created_at) VALUES (?, ?, ?)",
		hash, data, now())
	if err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}
	return hash, nil
}

// Document returns the stored bytes for hash.
func (s *Store) Document(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM documents WHERE hash = ?", hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", hash, provenance.ErrNotFound)
	}
	return data, err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). The event sequence keeps counting.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"checkpoints", "products", "batches", "events", "actors", "documents"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
