package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/provenance-ledger/provenance"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEngine(t *testing.T, store *Store) *provenance.Engine {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.AssignRole(ctx, "acme", provenance.RoleManufacturer))
	require.NoError(t, store.AssignRole(ctx, "dhl", provenance.RoleCourier))
	require.NoError(t, store.AssignRole(ctx, "ups", provenance.RoleCourier))
	require.NoError(t, store.AssignRole(ctx, "iso", provenance.RoleCertificationAuthority))
	require.NoError(t, store.AssignRole(ctx, "alice", provenance.RoleCustomer))

	engine := provenance.NewEngine(store, store, store)
	engine.Documents = store
	return engine
}

func TestSQLite_BatchRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := provenance.Batch{
		ID:                  1,
		Name:                "Laptop",
		Price:               500,
		ManufacturerName:    "ABC Corp",
		ManufacturerDetails: "Leading Electronics Manufacturer",
		Location:            provenance.Location{Longitude: "77.5946", Latitude: "12.9716"},
		Category:            "Electronics",
		Manufacturer:        "acme",
	}
	_, err := store.CreateBatch(ctx, in)
	require.NoError(t, err)

	got, err := store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = store.CreateBatch(ctx, in)
	assert.ErrorIs(t, err, provenance.ErrDuplicateID)

	_, err = store.GetBatch(ctx, 2)
	assert.ErrorIs(t, err, provenance.ErrUnknownBatch)
}

func TestSQLite_LargeIDsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const big = provenance.BatchID(1<<63 + 5)
	_, err := store.CreateBatch(ctx, provenance.Batch{ID: big, Manufacturer: "acme"})
	require.NoError(t, err)
	_, err = store.CreateBatch(ctx, provenance.Batch{ID: 3, Manufacturer: "acme"})
	require.NoError(t, err)

	got, err := store.GetBatch(ctx, big)
	require.NoError(t, err)
	assert.Equal(t, big, got.ID)

	ids, err := store.ListBatchIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []provenance.BatchID{3, big}, ids)
}

func TestSQLite_ProductLifecycleThroughEngine(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	_, err := engine.AddBatch(ctx, "acme", provenance.NewBatch{ID: 1, Name: "Laptop", Price: 500})
	require.NoError(t, err)
	_, err = engine.AddProduct(ctx, "acme", provenance.NewProduct{ID: 1, BatchID: 1, Customer: provenance.CustomerDetails{Name: "Alice", Email: "alice@example.com"}})
	require.NoError(t, err)

	_, err = engine.AssignCourier(ctx, "dhl", 1)
	require.NoError(t, err)
	_, err = engine.AssignCourier(ctx, "ups", 1)
	require.ErrorIs(t, err, provenance.ErrAlreadyAssigned)

	c1 := provenance.Checkpoint{Location: "Warehouse", Longitude: "77.59", Latitude: "12.97", CheckInTime: 100, CheckOutTime: 200}
	c2 := provenance.Checkpoint{Location: "Hub", CheckInTime: 300, CheckOutTime: 400}
	_, err = engine.AddCheckpoint(ctx, "dhl", 1, c1)
	require.NoError(t, err)
	_, err = engine.AddCheckpoint(ctx, "dhl", 1, c2)
	require.NoError(t, err)
	_, err = engine.MarkAsDelivered(ctx, "dhl", 1, "delivered")
	require.NoError(t, err)
	_, err = engine.AssignToCustomer(ctx, "acme", 1, "alice")
	require.NoError(t, err)

	p, err := store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, provenance.ActorID("dhl"), p.LogisticsPartner)
	assert.Equal(t, provenance.ActorID("alice"), p.Customer)
	assert.Equal(t, provenance.StatusDelivered, p.DeliveryStatus)
	assert.Equal(t, []provenance.Checkpoint{c1, c2}, p.Checkpoints)
	assert.Equal(t, "alice@example.com", p.CustomerDetails.Email)

	_, err = engine.MarkAsDelivered(ctx, "dhl", 1, "in-transit")
	assert.ErrorIs(t, err, provenance.ErrInvalidTransition)
}

func TestSQLite_UpdateProductRejectsIllegalSuccessor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.CreateBatch(ctx, provenance.Batch{ID: 1, Manufacturer: "acme"})
	require.NoError(t, err)
	_, err = store.CreateProduct(ctx, provenance.Product{ID: 1, BatchID: 1, Manufacturer: "acme"})
	require.NoError(t, err)

	_, err = store.UpdateProduct(ctx, 1, func(p *provenance.Product) error {
		p.LogisticsPartner = "dhl"
		p.DeliveryStatus = provenance.StatusDelivered
		return nil
	})
	require.NoError(t, err)

	_, err = store.UpdateProduct(ctx, 1, func(p *provenance.Product) error {
		p.DeliveryStatus = provenance.StatusInTransit
		return nil
	})
	assert.ErrorIs(t, err, provenance.ErrInvalidTransition)

	_, err = store.UpdateProduct(ctx, 1, func(p *provenance.Product) error {
		p.LogisticsPartner = "ups"
		return nil
	})
	assert.ErrorIs(t, err, provenance.ErrAlreadyAssigned)

	p, err := store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, provenance.ActorID("dhl"), p.LogisticsPartner)
	assert.Equal(t, provenance.StatusDelivered, p.DeliveryStatus)
}

func TestSQLite_CreateProductNeedsBatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateProduct(context.Background(), provenance.Product{ID: 1, BatchID: 9, Manufacturer: "acme"})
	assert.ErrorIs(t, err, provenance.ErrUnknownBatch)
}

func TestSQLite_CertifyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.CreateBatch(ctx, provenance.Batch{ID: 1, Manufacturer: "acme"})
	require.NoError(t, err)

	b, err := store.CertifyBatch(ctx, 1, provenance.Certification{AuthorityName: "ISO", DocumentHash: "QmHash", CertifiedBy: "iso"})
	require.NoError(t, err)
	assert.True(t, b.IsCertified)
	assert.Equal(t, provenance.ActorID("iso"), b.Certification.CertifiedBy)

	_, err = store.CertifyBatch(ctx, 1, provenance.Certification{AuthorityName: "Other"})
	assert.ErrorIs(t, err, provenance.ErrAlreadyCertified)

	_, err = store.CertifyBatch(ctx, 2, provenance.Certification{})
	assert.ErrorIs(t, err, provenance.ErrNotFound)
}

func TestSQLite_ConcurrentCourierClaims(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store)
	ctx := context.Background()

	_, err := engine.AddBatch(ctx, "acme", provenance.NewBatch{ID: 1, Name: "Laptop"})
	require.NoError(t, err)
	_, err = engine.AddProduct(ctx, "acme", provenance.NewProduct{ID: 1, BatchID: 1})
	require.NoError(t, err)

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, store.AssignRole(ctx, provenance.ActorID(fmt.Sprintf("c%d", i)), provenance.RoleCourier))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.AssignCourier(ctx, provenance.ActorID(fmt.Sprintf("c%d", i)), 1)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, provenance.ErrAlreadyAssigned)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSQLite_EventLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := store.AppendEvent(ctx, provenance.Event{ID: "e1", Type: provenance.EventBatchCreated, Actor: "acme", BatchID: 1, At: at, Payload: map[string]string{"name": "Laptop"}})
	require.NoError(t, err)
	second, err := store.AppendEvent(ctx, provenance.Event{Type: provenance.EventProductAdded, Actor: "acme", BatchID: 1, ProductID: 7, At: at})
	require.NoError(t, err)
	assert.Less(t, first.Seq, second.Seq)
	assert.NotEmpty(t, second.ID)

	events, err := store.EventsSince(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Laptop", events[0].Payload["name"])
	assert.Equal(t, at, events[0].At)
	assert.Equal(t, provenance.ProductID(7), events[1].ProductID)

	tail, err := store.EventsSince(ctx, first.Seq, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, provenance.EventProductAdded, tail[0].Type)
}

func TestSQLite_EventLogRejectsCorruptTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO events (id, type, actor, at) VALUES ('bad', 'BatchCreated', 'acme', 'yesterday')`)
	require.NoError(t, err)

	_, err = store.EventsSince(ctx, 0, 0)
	assert.ErrorContains(t, err, "failed to decode timestamp of event")
}

func TestSQLite_DirectoryAndDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AssignRole(ctx, "acme", provenance.RoleManufacturer))
	require.NoError(t, store.AssignRole(ctx, "acme", provenance.RoleManufacturer))
	assert.ErrorIs(t, store.AssignRole(ctx, "acme", provenance.RoleCustomer), provenance.ErrDuplicateID)

	_, err := store.ResolveRole(ctx, "nobody")
	assert.ErrorIs(t, err, provenance.ErrNotFound)

	hash, err := store.UploadDocument(ctx, []byte("%PDF"))
	require.NoError(t, err)
	again, err := store.UploadDocument(ctx, []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	data, err := store.Document(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := New(path)
	require.NoError(t, err)
	_, err = store.CreateBatch(ctx, provenance.Batch{ID: 1, Name: "Laptop", Manufacturer: "acme"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	b, err := reopened.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Laptop", b.Name)
}

func TestSQLite_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.CreateBatch(ctx, provenance.Batch{ID: 1, Manufacturer: "acme"})
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	ids, err := store.ListBatchIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
