// Package postgres implements the ledger storage interfaces on PostgreSQL
// through a pgx connection pool. It mirrors store/sqlite table for table;
// concurrency comes from row locks (SELECT ... FOR UPDATE) instead of a
// process-wide mutex, so several server processes can share one database.
package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/provenance-ledger/provenance"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// eventsAppendLock is the advisory lock key serializing event appends.
// Without it a later seq could commit first and a reader's cursor would
// skip the earlier one.
const eventsAppendLock int64 = 0x70726f76

// Store implements provenance.Store, EventLog, DirectoryWriter and
// DocumentStore for PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pool for databaseURL and creates the schema.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	s := New(pool)
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. Call CreateTables before use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateTables creates the necessary database tables
func (s *Store) CreateTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS batches (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			price BIGINT NOT NULL,
			manufacturer_name TEXT NOT NULL,
			manufacturer_details TEXT NOT NULL,
			longitude TEXT NOT NULL,
			latitude TEXT NOT NULL,
			category TEXT NOT NULL,
			manufacturer TEXT NOT NULL,
			is_certified BOOLEAN NOT NULL DEFAULT FALSE,
			authority_name TEXT NOT NULL DEFAULT '',
			digital_signature TEXT NOT NULL DEFAULT '',
			document_hash TEXT NOT NULL DEFAULT '',
			certified_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_batches_manufacturer ON batches (manufacturer);

		CREATE TABLE IF NOT EXISTS products (
			id BIGINT PRIMARY KEY,
			batch_id BIGINT NOT NULL REFERENCES batches(id),
			manufacturer TEXT NOT NULL,
			logistics_partner TEXT NOT NULL DEFAULT '',
			customer TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			customer_address TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			customer_email TEXT NOT NULL DEFAULT '',
			delivery_status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_products_batch ON products (batch_id);

		CREATE TABLE IF NOT EXISTS checkpoints (
			product_id BIGINT NOT NULL REFERENCES products(id),
			seq INTEGER NOT NULL,
			location TEXT NOT NULL,
			longitude TEXT NOT NULL,
			latitude TEXT NOT NULL,
			check_in_time BIGINT NOT NULL,
			check_out_time BIGINT NOT NULL,
			PRIMARY KEY (product_id, seq)
		);

		CREATE TABLE IF NOT EXISTS actors (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS events (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			actor TEXT NOT NULL,
			batch_id BIGINT NOT NULL DEFAULT 0,
			product_id BIGINT NOT NULL DEFAULT 0,
			payload JSONB,
			at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS documents (
			hash TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// =============================================================================
// BATCHES
// =============================================================================

func (s *Store) CreateBatch(ctx context.Context, b provenance.Batch) (provenance.Batch, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO batches
		(id, name, price, manufacturer_name, manufacturer_details, longitude, latitude, category, manufacturer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		int64(b.ID), b.Name, b.Price, b.ManufacturerName, b.ManufacturerDetails,
		b.Location.Longitude, b.Location.Latitude, b.Category, string(b.Manufacturer),
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return provenance.Batch{}, provenance.DuplicateBatch(b.ID)
		}
		return provenance.Batch{}, fmt.Errorf("failed to insert batch: %w", err)
	}
	b.Certification = nil
	b.IsCertified = false
	return b, nil
}

func (s *Store) CertifyBatch(ctx context.Context, id provenance.BatchID, cert provenance.Certification) (provenance.Batch, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE batches
		SET is_certified = TRUE, authority_name = $1, digital_signature = $2, document_hash = $3, certified_by = $4
		WHERE id = $5 AND NOT is_certified
	`, cert.AuthorityName, cert.DigitalSignature, cert.DocumentHash, string(cert.CertifiedBy), int64(id))
	if err != nil {
		return provenance.Batch{}, fmt.Errorf("failed to certify batch: %w", err)
	}
	b, err := getBatch(ctx, s.pool, id, false)
	if err != nil {
		return provenance.Batch{}, err
	}
	if tag.RowsAffected() == 0 {
		return provenance.Batch{}, provenance.ErrAlreadyCertified
	}
	return b, nil
}

func (s *Store) GetBatch(ctx context.Context, id provenance.BatchID) (provenance.Batch, error) {
	return getBatch(ctx, s.pool, id, false)
}

func getBatch(ctx context.Context, q dbtx, id provenance.BatchID, forShare bool) (provenance.Batch, error) {
	query := `
		SELECT id, name, price, manufacturer_name, manufacturer_details, longitude, latitude,
		       category, manufacturer, is_certified, authority_name, digital_signature,
		       document_hash, certified_by
		FROM batches WHERE id = $1
	`
	if forShare {
		query += " FOR SHARE"
	}

	var (
		b                                     provenance.Batch
		rawID                                 int64
		manufacturer                          string
		authority, signature, hash, certifier string
	)
	err := q.QueryRow(ctx, query, int64(id)).Scan(
		&rawID, &b.Name, &b.Price, &b.ManufacturerName, &b.ManufacturerDetails,
		&b.Location.Longitude, &b.Location.Latitude, &b.Category, &manufacturer,
		&b.IsCertified, &authority, &signature, &hash, &certifier,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return provenance.Batch{}, provenance.BatchNotFound(id)
		}
		return provenance.Batch{}, fmt.Errorf("failed to load batch: %w", err)
	}
	b.ID = provenance.BatchID(rawID)
	b.Manufacturer = provenance.ActorID(manufacturer)
	if b.IsCertified {
		b.Certification = &provenance.Certification{
			AuthorityName:    authority,
			DigitalSignature: signature,
			DocumentHash:     hash,
			CertifiedBy:      provenance.ActorID(certifier),
		}
	}
	return b, nil
}

func (s *Store) ListBatchIDs(ctx context.Context) ([]provenance.BatchID, error) {
	raw, err := listIDs(ctx, s.pool, "SELECT id FROM batches")
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
// PRODUCTS
// =============================================================================

func (s *Store) CreateProduct(ctx context.Context, p provenance.Product) (provenance.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := getBatch(ctx, tx, p.BatchID, true); err != nil {
		return provenance.Product{}, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO products
		(id, batch_id, manufacturer, customer_name, customer_address, customer_phone, customer_email, delivery_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		int64(p.ID), int64(p.BatchID), string(p.Manufacturer),
		p.CustomerDetails.Name, p.CustomerDetails.Address, p.CustomerDetails.Phone, p.CustomerDetails.Email,
		string(provenance.StatusCreated),
	)
	if err != nil {
		switch pgCode(err) {
		case codeUniqueViolation:
			return provenance.Product{}, provenance.DuplicateProduct(p.ID)
		case codeForeignKeyViolation:
			return provenance.Product{}, provenance.BatchNotFound(p.BatchID)
		}
		return provenance.Product{}, fmt.Errorf("failed to insert product: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return provenance.Product{}, err
	}

	p.LogisticsPartner = ""
	p.Customer = ""
	p.DeliveryStatus = provenance.StatusCreated
	p.Checkpoints = []provenance.Checkpoint{}
	return p, nil
}

// UpdateProduct locks the product row for the duration of the mutator, so
// two processes racing on the same product serialize here.
func (s *Store) UpdateProduct(ctx context.Context, id provenance.ProductID, fn provenance.ProductMutator) (provenance.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := getProduct(ctx, tx, id, true)
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

	_, err = tx.Exec(ctx, `
		UPDATE products
		SET logistics_partner = $1, customer = $2, customer_name = $3, customer_address = $4,
		    customer_phone = $5, customer_email = $6, delivery_status = $7
		WHERE id = $8
	`,
		string(after.LogisticsPartner), string(after.Customer),
		after.CustomerDetails.Name, after.CustomerDetails.Address, after.CustomerDetails.Phone, after.CustomerDetails.Email,
		string(after.DeliveryStatus), int64(id),
	)
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to update product: %w", err)
	}
	for i := len(before.Checkpoints); i < len(after.Checkpoints); i++ {
		if err := insertCheckpoint(ctx, tx, id, i, after.Checkpoints[i]); err != nil {
			return provenance.Product{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return provenance.Product{}, err
	}
	return after, nil
}

func (s *Store) AppendCheckpoint(ctx context.Context, id provenance.ProductID, cp provenance.Checkpoint) (provenance.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := getProduct(ctx, tx, id, true)
	if err != nil {
		return provenance.Product{}, err
	}
	if err := insertCheckpoint(ctx, tx, id, len(p.Checkpoints), cp); err != nil {
		return provenance.Product{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return provenance.Product{}, err
	}
	p.Checkpoints = append(p.Checkpoints, cp)
	return p, nil
}

func insertCheckpoint(ctx context.Context, q dbtx, id provenance.ProductID, seq int, cp provenance.Checkpoint) error {
	_, err := q.Exec(ctx, `
		INSERT INTO checkpoints (product_id, seq, location, longitude, latitude, check_in_time, check_out_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, int64(id), seq, cp.Location, cp.Longitude, cp.Latitude, cp.CheckInTime, cp.CheckOutTime)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id provenance.ProductID) (provenance.Product, error) {
	return getProduct(ctx, s.pool, id, false)
}

func getProduct(ctx context.Context, q dbtx, id provenance.ProductID, forUpdate bool) (provenance.Product, error) {
	query := `
		SELECT id, batch_id, manufacturer, logistics_partner, customer, customer_name,
		       customer_address, customer_phone, customer_email, delivery_status
		FROM products WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		p                                   provenance.Product
		rawID, rawBatch                     int64
		manufacturer, partner, customer, st string
	)
	err := q.QueryRow(ctx, query, int64(id)).Scan(
		&rawID, &rawBatch, &manufacturer, &partner, &customer,
		&p.CustomerDetails.Name, &p.CustomerDetails.Address, &p.CustomerDetails.Phone, &p.CustomerDetails.Email,
		&st,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return provenance.Product{}, provenance.ProductNotFound(id)
		}
		return provenance.Product{}, fmt.Errorf("failed to load product: %w", err)
	}
	p.ID = provenance.ProductID(rawID)
	p.BatchID = provenance.BatchID(rawBatch)
	p.Manufacturer = provenance.ActorID(manufacturer)
	p.LogisticsPartner = provenance.ActorID(partner)
	p.Customer = provenance.ActorID(customer)
	p.DeliveryStatus = provenance.DeliveryStatus(st)

	rows, err := q.Query(ctx, `
		SELECT location, longitude, latitude, check_in_time, check_out_time
		FROM checkpoints WHERE product_id = $1 ORDER BY seq
	`, int64(id))
	if err != nil {
		return provenance.Product{}, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	defer rows.Close()

	p.Checkpoints = []provenance.Checkpoint{}
	for rows.Next() {
		var cp provenance.Checkpoint
		if err := rows.Scan(&cp.Location, &cp.Longitude, &cp.Latitude, &cp.CheckInTime, &cp.CheckOutTime); err != nil {
			return provenance.Product{}, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		p.Checkpoints = append(p.Checkpoints, cp)
	}
	return p, rows.Err()
}

func (s *Store) ListProductIDs(ctx context.Context) ([]provenance.ProductID, error) {
	raw, err := listIDs(ctx, s.pool, "SELECT id FROM products")
	if err != nil {
		return nil, err
	}
	ids := make([]provenance.ProductID, len(raw))
	for i, id := range raw {
		ids[i] = provenance.ProductID(id)
	}
	return ids, nil
}

func listIDs(ctx context.Context, q dbtx, query string) ([]uint64, error) {
	rows, err := q.Query(ctx, query)
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
// EVENT LOG
// =============================================================================

func (s *Store) AppendEvent(ctx context.Context, e provenance.Event) (provenance.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return provenance.Event{}, fmt.Errorf("failed to serialize payload: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return provenance.Event{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Held until commit, so seq is drawn and committed in the same order.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventsAppendLock); err != nil {
		return provenance.Event{}, fmt.Errorf("failed to lock event log: %w", err)
	}

	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO events (id, type, actor, batch_id, product_id, payload, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`,
		e.ID, string(e.Type), string(e.Actor), int64(e.BatchID), int64(e.ProductID), payload, e.At,
	).Scan(&seq)
	if err != nil {
		return provenance.Event{}, fmt.Errorf("failed to append event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return provenance.Event{}, fmt.Errorf("failed to commit event: %w", err)
	}
	e.Seq = uint64(seq)
	return e, nil
}

// EventsSince returns events with seq > after. limit <= 0 means no limit.
func (s *Store) EventsSince(ctx context.Context, after uint64, limit int) ([]provenance.Event, error) {
	query := `
		SELECT seq, id, type, actor, batch_id, product_id, payload, at
		FROM events WHERE seq > $1 ORDER BY seq
	`
	args := []any{int64(after)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []provenance.Event{}
	for rows.Next() {
		var (
			e                provenance.Event
			seq, batch, prod int64
			typ, actor       string
			payload          []byte
			at               time.Time
		)
		if err := rows.Scan(&seq, &e.ID, &typ, &actor, &batch, &prod, &payload, &at); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to deserialize payload: %w", err)
			}
		}
		e.Seq = uint64(seq)
		e.Type = provenance.EventType(typ)
		e.Actor = provenance.ActorID(actor)
		e.BatchID = provenance.BatchID(batch)
		e.ProductID = provenance.ProductID(prod)
		e.At = at.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) ResolveRole(ctx context.Context, actor provenance.ActorID) (provenance.Role, error) {
	var role string
	err := s.pool.QueryRow(ctx, "SELECT role FROM actors WHERE id = $1", string(actor)).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &provenance.NotFoundError{Kind: provenance.KindActor, ID: string(actor)}
		}
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}
	return provenance.Role(role), nil
}

func (s *Store) AssignRole(ctx context.Context, actor provenance.ActorID, role provenance.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", provenance.ErrInvalidInput, role)
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO actors (id, role) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING",
		string(actor), string(role))
	if err != nil {
		return fmt.Errorf("failed to register actor: %w", err)
	}

	existing, err := s.ResolveRole(ctx, actor)
	if err != nil {
		return err
	}
	if existing != role {
		return &provenance.DuplicateIDError{Kind: provenance.KindActor, ID: string(actor)}
	}
	return nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func (s *Store) UploadDocument(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", provenance.ErrInvalidInput)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	_, err := s.pool.Exec(ctx,
		"INSERT INTO documents (hash, data) VALUES ($1, $2) ON CONFLICT (hash) DO NOTHING",
		hash, data)
	if err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}
	return hash, nil
}

func (s *Store) Document(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, "SELECT data FROM documents WHERE hash = $1", hash).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", hash, provenance.ErrNotFound)
	}
	return data, err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data. The event sequence is not restarted.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE checkpoints, products, batches, events, actors, documents")
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
