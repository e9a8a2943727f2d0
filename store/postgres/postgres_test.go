package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/provenance-ledger/provenance"
)

// Integration tests run only when PROVENANCE_TEST_POSTGRES_URL points at a
// disposable database. Every test truncates all tables.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("PROVENANCE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("Integration test requires PostgreSQL database (set PROVENANCE_TEST_POSTGRES_URL)")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Connect(ctx, url)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx))
	t.Cleanup(store.Close)
	return store
}

func TestPgCode(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation})
	assert.Equal(t, codeUniqueViolation, pgCode(err))
	assert.Equal(t, "", pgCode(errors.New("plain")))
	assert.Equal(t, "", pgCode(nil))
}

func TestPostgres_LedgerLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AssignRole(ctx, "acme", provenance.RoleManufacturer))
	require.NoError(t, store.AssignRole(ctx, "dhl", provenance.RoleCourier))
	require.NoError(t, store.AssignRole(ctx, "iso", provenance.RoleCertificationAuthority))
	engine := provenance.NewEngine(store, store, store)
	engine.Documents = store

	_, err := engine.AddBatch(ctx, "acme", provenance.NewBatch{ID: 1, Name: "Laptop", Price: 500, Longitude: "77.5946", Latitude: "12.9716"})
	require.NoError(t, err)
	_, err = engine.AddBatch(ctx, "acme", provenance.NewBatch{ID: 1, Name: "Again"})
	require.ErrorIs(t, err, provenance.ErrDuplicateID)

	_, err = engine.AddProduct(ctx, "acme", provenance.NewProduct{ID: 1, BatchID: 1})
	require.NoError(t, err)
	_, err = engine.AddProduct(ctx, "acme", provenance.NewProduct{ID: 2, BatchID: 99})
	require.ErrorIs(t, err, provenance.ErrUnknownBatch)

	_, err = engine.AssignCourier(ctx, "dhl", 1)
	require.NoError(t, err)
	_, err = engine.AddCheckpoint(ctx, "dhl", 1, provenance.Checkpoint{Location: "Warehouse", CheckInTime: 1, CheckOutTime: 2})
	require.NoError(t, err)
	_, err = engine.MarkAsDelivered(ctx, "dhl", 1, "delivered")
	require.NoError(t, err)

	b, err := engine.CertifyBatchWithDocument(ctx, "iso", 1, "ISO", "0xsig", []byte("%PDF"))
	require.NoError(t, err)
	_, err = engine.CertifyBatch(ctx, "iso", 1, provenance.CertificationInput{AuthorityName: "Other"})
	require.ErrorIs(t, err, provenance.ErrAlreadyCertified)

	data, err := store.Document(ctx, b.Certification.DocumentHash)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	p, err := store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, provenance.StatusDelivered, p.DeliveryStatus)
	assert.Len(t, p.Checkpoints, 1)

	events, err := store.EventsSince(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 6)
	assert.Equal(t, provenance.EventBatchCreated, events[0].Type)
	assert.Equal(t, provenance.EventBatchCertified, events[5].Type)
}

func TestPostgres_TailingReaderSeesEveryEvent(t *testing.T) {
	// GIVEN: Writers appending concurrently while a reader tails the log
	store := newTestStore(t)
	ctx := context.Background()
	const writers, perWriter = 8, 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := store.AppendEvent(ctx, provenance.Event{
					Type: provenance.EventCheckpointAdded, ProductID: provenance.ProductID(w + 1), At: time.Now(),
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// WHEN: The reader advances its cursor to whatever it last saw
	var cursor uint64
	seen := 0
	tail := func() {
		page, err := store.EventsSince(ctx, cursor, 0)
		require.NoError(t, err)
		for _, e := range page {
			cursor = e.Seq
			seen++
		}
	}
	for {
		select {
		case <-done:
			tail()
			// THEN: No event committed behind the cursor was skipped
			assert.Equal(t, writers*perWriter, seen)
			return
		default:
			tail()
		}
	}
}
