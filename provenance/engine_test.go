package provenance_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/provenance-ledger/provenance"
	"github.com/warp/provenance-ledger/provenance/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	manufacturer provenance.ActorID = "acme"
	courierA     provenance.ActorID = "courier-a"
	courierB     provenance.ActorID = "courier-b"
	authority    provenance.ActorID = "iso-cert"
	customer     provenance.ActorID = "alice"
)

type fixture struct {
	engine *provenance.Engine
	store  *store.Memory
	events *store.Events
	dir    *store.Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := store.NewDirectory(
		provenance.RoleAssignment{Actor: manufacturer, Role: provenance.RoleManufacturer},
		provenance.RoleAssignment{Actor: courierA, Role: provenance.RoleCourier},
		provenance.RoleAssignment{Actor: courierB, Role: provenance.RoleCourier},
		provenance.RoleAssignment{Actor: authority, Role: provenance.RoleCertificationAuthority},
		provenance.RoleAssignment{Actor: customer, Role: provenance.RoleCustomer},
	)
	mem := store.NewMemory()
	events := store.NewEvents()
	engine := provenance.NewEngine(mem, dir, events)
	engine.Documents = store.NewDocuments()
	return &fixture{engine: engine, store: mem, events: events, dir: dir}
}

func laptopBatch(id provenance.BatchID) provenance.NewBatch {
	return provenance.NewBatch{
		ID:                  id,
		Name:                "Laptop",
		Price:               500,
		ManufacturerName:    "ABC Corp",
		ManufacturerDetails: "Leading Electronics Manufacturer",
		Longitude:           "77.5946",
		Latitude:            "12.9716",
		Category:            "Electronics",
	}
}

func (f *fixture) seedProduct(t *testing.T, batchID provenance.BatchID, productID provenance.ProductID) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.store.GetBatch(ctx, batchID); err != nil {
		_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(batchID))
		require.NoError(t, err)
	}
	_, err := f.engine.AddProduct(ctx, manufacturer, provenance.NewProduct{
		ID:      productID,
		BatchID: batchID,
		Customer: provenance.CustomerDetails{
			Name:  "Alice",
			Email: "alice@example.com",
		},
	})
	require.NoError(t, err)
}

func (f *fixture) eventTypes(t *testing.T) []provenance.EventType {
	t.Helper()
	events, err := f.events.EventsSince(context.Background(), 0, 0)
	require.NoError(t, err)
	types := make([]provenance.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

// =============================================================================
// BATCH TESTS
// =============================================================================

func TestAddBatch_RoundTripsFieldsVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(1))
	require.NoError(t, err)

	b, err := f.store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, provenance.BatchID(1), b.ID)
	assert.Equal(t, "Laptop", b.Name)
	assert.Equal(t, int64(500), b.Price)
	assert.Equal(t, "ABC Corp", b.ManufacturerName)
	assert.Equal(t, "Leading Electronics Manufacturer", b.ManufacturerDetails)
	assert.Equal(t, "77.5946", b.Location.Longitude)
	assert.Equal(t, "12.9716", b.Location.Latitude)
	assert.Equal(t, "Electronics", b.Category)
	assert.Equal(t, manufacturer, b.Manufacturer)
	assert.False(t, b.IsCertified)
	assert.Nil(t, b.Certification)
}

func TestAddBatch_DuplicateID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(1))
	require.NoError(t, err)

	other := laptopBatch(1)
	other.Name = "Phone"
	_, err = f.engine.AddBatch(ctx, manufacturer, other)
	assert.ErrorIs(t, err, provenance.ErrDuplicateID)

	b, err := f.store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Laptop", b.Name, "first batch must be untouched")
	assert.Equal(t, []provenance.EventType{provenance.EventBatchCreated}, f.eventTypes(t))
}

func TestAddBatch_CustomerIsUnauthorized_StoreUnchanged(t *testing.T) {
	// GIVEN: A customer-role actor
	// WHEN: It tries to create a batch
	// THEN: Unauthorized, and no batch with that id exists afterwards
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AddBatch(ctx, customer, laptopBatch(7))
	require.ErrorIs(t, err, provenance.ErrUnauthorized)

	var unauth *provenance.UnauthorizedError
	require.ErrorAs(t, err, &unauth)
	assert.Equal(t, customer, unauth.Actor)
	assert.Equal(t, provenance.OpCreateBatch, unauth.Operation)

	_, err = f.store.GetBatch(ctx, 7)
	assert.ErrorIs(t, err, provenance.ErrNotFound)
	ids, err := f.store.ListBatchIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, f.eventTypes(t), "no event on failure")
}

func TestAddBatch_UnknownActorIsUnauthorized(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.AddBatch(context.Background(), "mallory", laptopBatch(1))
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)
}

func TestAddBatch_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	negative := laptopBatch(1)
	negative.Price = -1
	_, err := f.engine.AddBatch(ctx, manufacturer, negative)
	assert.ErrorIs(t, err, provenance.ErrInvalidInput)

	badCoords := laptopBatch(2)
	badCoords.Longitude = "east"
	_, err = f.engine.AddBatch(ctx, manufacturer, badCoords)
	assert.ErrorIs(t, err, provenance.ErrInvalidInput)

	_, err = f.engine.AddBatch(ctx, manufacturer, laptopBatch(0))
	assert.ErrorIs(t, err, provenance.ErrInvalidInput)
}

func TestRoleDenialComesBeforeInputErrors(t *testing.T) {
	// GIVEN: A product claimed by courierA
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)

	// WHEN: The wrong role sends malformed input
	bad := laptopBatch(0)
	bad.Price = -1
	bad.Longitude = "east"
	_, err = f.engine.AddBatch(ctx, customer, bad)
	// THEN: Unauthorized, and no batch appears
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)
	ids, err := f.store.ListBatchIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []provenance.BatchID{1}, ids)

	_, err = f.engine.AddProduct(ctx, courierA, provenance.NewProduct{ID: 0, BatchID: 1})
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	_, err = f.engine.AddCheckpoint(ctx, courierB, 1, provenance.Checkpoint{Location: "X", Longitude: "999", Latitude: "0"})
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	_, err = f.engine.MarkAsDelivered(ctx, courierB, 1, "lost")
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	// AND: The rightful caller still gets the input error
	_, err = f.engine.AddCheckpoint(ctx, courierA, 1, provenance.Checkpoint{Location: "X", Longitude: "999", Latitude: "0"})
	assert.ErrorIs(t, err, provenance.ErrInvalidInput)
}

// =============================================================================
// CERTIFICATION TESTS
// =============================================================================

func TestCertifyBatch_SingleShot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(1))
	require.NoError(t, err)

	cert := provenance.CertificationInput{AuthorityName: "ISO", DigitalSignature: "0xsig", DocumentHash: "QmHash"}
	b, err := f.engine.CertifyBatch(ctx, authority, 1, cert)
	require.NoError(t, err)
	assert.True(t, b.IsCertified)
	require.NotNil(t, b.Certification)
	assert.Equal(t, "QmHash", b.Certification.DocumentHash)

	_, err = f.engine.CertifyBatch(ctx, authority, 1, provenance.CertificationInput{AuthorityName: "Other"})
	assert.ErrorIs(t, err, provenance.ErrAlreadyCertified)
	assert.True(t, provenance.IsContention(err))

	b, err = f.store.GetBatch(ctx, 1)
	require.NoError(t, err)
	assert.True(t, b.IsCertified)
	assert.Equal(t, "ISO", b.Certification.AuthorityName, "first certification stands")
}

func TestCertifyBatch_RequiresAuthority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(1))
	require.NoError(t, err)

	_, err = f.engine.CertifyBatch(ctx, manufacturer, 1, provenance.CertificationInput{AuthorityName: "Self"})
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	_, err = f.engine.CertifyBatch(ctx, authority, 99, provenance.CertificationInput{})
	assert.ErrorIs(t, err, provenance.ErrNotFound)
}

func TestCertifyBatch_ConcurrentAuthorities_OneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(1))
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.CertifyBatch(ctx, authority, 1, provenance.CertificationInput{AuthorityName: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, provenance.ErrAlreadyCertified)
	}
	assert.Equal(t, 1, wins)
}

func TestCertifyBatchWithDocument_StoresContentHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(1))
	require.NoError(t, err)

	b, err := f.engine.CertifyBatchWithDocument(ctx, authority, 1, "ISO", "0xsig", []byte("%PDF certificate"))
	require.NoError(t, err)
	require.NotNil(t, b.Certification)
	assert.Len(t, b.Certification.DocumentHash, 64)

	data, err := f.engine.Documents.Document(ctx, b.Certification.DocumentHash)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF certificate"), data)
}

func TestCertifyBatchWithDocument_DeniedCallerUploadsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(1))
	require.NoError(t, err)

	_, err = f.engine.CertifyBatchWithDocument(ctx, courierA, 1, "Fake", "0x", []byte("doc"))
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	sum := sha256.Sum256([]byte("doc"))
	_, err = f.engine.Documents.Document(ctx, hex.EncodeToString(sum[:]))
	assert.ErrorIs(t, err, provenance.ErrNotFound)
}

// =============================================================================
// PRODUCT TESTS
// =============================================================================

func TestAddProduct_UnknownBatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.AddProduct(context.Background(), manufacturer, provenance.NewProduct{ID: 1, BatchID: 42})
	assert.ErrorIs(t, err, provenance.ErrUnknownBatch)
	assert.ErrorIs(t, err, provenance.ErrNotFound)
}

func TestAddProduct_InitialState(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 10)

	p, err := f.store.GetProduct(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, provenance.BatchID(1), p.BatchID)
	assert.Equal(t, manufacturer, p.Manufacturer)
	assert.Equal(t, provenance.StatusCreated, p.DeliveryStatus)
	assert.Empty(t, p.LogisticsPartner)
	assert.Empty(t, p.Customer)
	assert.Empty(t, p.Checkpoints)
	assert.Equal(t, "alice@example.com", p.CustomerDetails.Email)
}

func TestAddProduct_DuplicateAndRole(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 10)
	ctx := context.Background()

	_, err := f.engine.AddProduct(ctx, manufacturer, provenance.NewProduct{ID: 10, BatchID: 1})
	assert.ErrorIs(t, err, provenance.ErrDuplicateID)

	_, err = f.engine.AddProduct(ctx, courierA, provenance.NewProduct{ID: 11, BatchID: 1})
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)
}

// =============================================================================
// COURIER ASSIGNMENT TESTS
// =============================================================================

func TestAssignCourier_ConcurrentClaims_ExactlyOneWinner(t *testing.T) {
	// GIVEN: A fresh product and N distinct couriers
	// WHEN: All claim it at once
	// THEN: One succeeds, N-1 get AlreadyAssigned, partner is the winner
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()

	const n = 20
	couriers := make([]provenance.ActorID, n)
	for i := range couriers {
		couriers[i] = provenance.ActorID(fmt.Sprintf("courier-%02d", i))
		require.NoError(t, f.dir.AssignRole(ctx, couriers[i], provenance.RoleCourier))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := range couriers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.AssignCourier(ctx, couriers[i], 1)
		}(i)
	}
	close(start)
	wg.Wait()

	var winner provenance.ActorID
	for i, err := range errs {
		if err == nil {
			require.Empty(t, winner, "more than one winner")
			winner = couriers[i]
			continue
		}
		assert.ErrorIs(t, err, provenance.ErrAlreadyAssigned)
	}
	require.NotEmpty(t, winner)

	p, err := f.store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, winner, p.LogisticsPartner)
	assert.Equal(t, provenance.StatusCreated, p.DeliveryStatus, "assignment leaves status unchanged")
}

func TestAssignCourier_AlreadyAssignedRegardlessOfRole(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()

	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)

	_, err = f.engine.AssignCourier(ctx, customer, 1)
	assert.ErrorIs(t, err, provenance.ErrAlreadyAssigned)

	_, err = f.engine.AssignCourier(ctx, courierA, 1)
	assert.ErrorIs(t, err, provenance.ErrAlreadyAssigned, "re-claim by the winner is not a no-op")
}

func TestAssignCourier_RequiresCourierRole(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)

	_, err := f.engine.AssignCourier(context.Background(), manufacturer, 1)
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	_, err = f.engine.AssignCourier(context.Background(), courierA, 404)
	assert.ErrorIs(t, err, provenance.ErrNotFound)
}

// =============================================================================
// CHECKPOINT TESTS
// =============================================================================

func TestAddCheckpoint_PreservesInsertionOrder(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)

	c1 := provenance.Checkpoint{Location: "Warehouse", Longitude: "77.59", Latitude: "12.97", CheckInTime: 100, CheckOutTime: 200}
	c2 := provenance.Checkpoint{Location: "Hub", Longitude: "78.01", Latitude: "13.10", CheckInTime: 300, CheckOutTime: 400}

	p, err := f.engine.AddCheckpoint(ctx, courierA, 1, c1)
	require.NoError(t, err)
	assert.Equal(t, provenance.StatusInTransit, p.DeliveryStatus, "first checkpoint starts transit")

	_, err = f.engine.AddCheckpoint(ctx, courierA, 1, c2)
	require.NoError(t, err)

	p, err = f.store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []provenance.Checkpoint{c1, c2}, p.Checkpoints)
}

func TestAddCheckpoint_OnlyAssignedCourier(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	cp := provenance.Checkpoint{Location: "Dock", CheckInTime: 1, CheckOutTime: 2}

	_, err := f.engine.AddCheckpoint(ctx, courierA, 1, cp)
	assert.ErrorIs(t, err, provenance.ErrUnauthorized, "no courier assigned yet")

	_, err = f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)

	_, err = f.engine.AddCheckpoint(ctx, courierB, 1, cp)
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	p, err := f.store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, p.Checkpoints)
}

func TestAddCheckpoint_PermissiveByDefault(t *testing.T) {
	// Out-of-order times and post-delivery checkpoints are accepted unless
	// the engine is configured otherwise.
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)

	_, err = f.engine.AddCheckpoint(ctx, courierA, 1, provenance.Checkpoint{Location: "Backwards", CheckInTime: 500, CheckOutTime: 100})
	require.NoError(t, err)

	_, err = f.engine.MarkAsDelivered(ctx, courierA, 1, "delivered")
	require.NoError(t, err)

	_, err = f.engine.AddCheckpoint(ctx, courierA, 1, provenance.Checkpoint{Location: "After", CheckInTime: 600, CheckOutTime: 700})
	require.NoError(t, err)

	p, err := f.store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, p.Checkpoints, 2)
	assert.Equal(t, provenance.StatusDelivered, p.DeliveryStatus)
}

func TestAddCheckpoint_StrictTimes(t *testing.T) {
	f := newFixture(t)
	f.engine.Config.StrictCheckpointTimes = true
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)

	_, err = f.engine.AddCheckpoint(ctx, courierA, 1, provenance.Checkpoint{Location: "Backwards", CheckInTime: 500, CheckOutTime: 100})
	assert.ErrorIs(t, err, provenance.ErrInvalidInput)

	_, err = f.engine.AddCheckpoint(ctx, courierA, 1, provenance.Checkpoint{Location: "Instant", CheckInTime: 500, CheckOutTime: 500})
	assert.NoError(t, err)
}

func TestAddCheckpoint_SealOnDelivery(t *testing.T) {
	f := newFixture(t)
	f.engine.Config.SealOnDelivery = true
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)
	_, err = f.engine.MarkAsDelivered(ctx, courierA, 1, "delivered")
	require.NoError(t, err)

	_, err = f.engine.AddCheckpoint(ctx, courierA, 1, provenance.Checkpoint{Location: "After"})
	assert.ErrorIs(t, err, provenance.ErrInvalidTransition)
}

// =============================================================================
// DELIVERY STATUS TESTS
// =============================================================================

func TestMarkAsDelivered_Monotonic(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)

	p, err := f.engine.MarkAsDelivered(ctx, courierA, 1, "in-transit")
	require.NoError(t, err)
	assert.Equal(t, provenance.StatusInTransit, p.DeliveryStatus)

	p, err = f.engine.MarkAsDelivered(ctx, courierA, 1, "delivered")
	require.NoError(t, err)
	assert.Equal(t, provenance.StatusDelivered, p.DeliveryStatus)

	_, err = f.engine.MarkAsDelivered(ctx, courierA, 1, "in-transit")
	assert.ErrorIs(t, err, provenance.ErrInvalidTransition)

	_, err = f.engine.MarkAsDelivered(ctx, courierA, 1, "delivered")
	assert.ErrorIs(t, err, provenance.ErrInvalidTransition)

	p, err = f.store.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, provenance.StatusDelivered, p.DeliveryStatus)
}

func TestMarkAsDelivered_CannotRequestCreated(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)

	_, err = f.engine.MarkAsDelivered(ctx, courierA, 1, "created")
	assert.ErrorIs(t, err, provenance.ErrInvalidTransition)

	_, err = f.engine.MarkAsDelivered(ctx, courierA, 1, "lost")
	assert.ErrorIs(t, err, provenance.ErrInvalidInput)
}

func TestMarkAsDelivered_OnlyAssignedCourier(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)

	_, err = f.engine.MarkAsDelivered(ctx, courierB, 1, "delivered")
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	_, err = f.engine.MarkAsDelivered(ctx, manufacturer, 1, "delivered")
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)
}

// =============================================================================
// CUSTOMER ASSIGNMENT TESTS
// =============================================================================

func TestAssignToCustomer_ByManufacturer(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()

	p, err := f.engine.AssignToCustomer(ctx, manufacturer, 1, customer)
	require.NoError(t, err)
	assert.Equal(t, customer, p.Customer)

	_, err = f.engine.AssignToCustomer(ctx, manufacturer, 1, customer)
	assert.ErrorIs(t, err, provenance.ErrAlreadyAssigned)
}

func TestAssignToCustomer_SelfClaimAndRules(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	f.seedProduct(t, 1, 2)
	ctx := context.Background()
	require.NoError(t, f.dir.AssignRole(ctx, "bob", provenance.RoleCustomer))

	_, err := f.engine.AssignToCustomer(ctx, customer, 1, "bob")
	assert.ErrorIs(t, err, provenance.ErrUnauthorized, "customers cannot assign others")

	_, err = f.engine.AssignToCustomer(ctx, manufacturer, 1, courierA)
	assert.ErrorIs(t, err, provenance.ErrUnauthorized, "assignee must be a customer")

	_, err = f.engine.AssignToCustomer(ctx, courierA, 1, customer)
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	p, err := f.engine.AssignToCustomer(ctx, customer, 2, customer)
	require.NoError(t, err)
	assert.Equal(t, customer, p.Customer)
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestEvents_OnePerMutationInCommitOrder(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()

	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)
	_, err = f.engine.AssignCourier(ctx, courierB, 1)
	require.Error(t, err)
	_, err = f.engine.AddCheckpoint(ctx, courierA, 1, provenance.Checkpoint{Location: "Warehouse"})
	require.NoError(t, err)
	_, err = f.engine.MarkAsDelivered(ctx, courierA, 1, "delivered")
	require.NoError(t, err)
	_, err = f.engine.CertifyBatch(ctx, authority, 1, provenance.CertificationInput{AuthorityName: "ISO"})
	require.NoError(t, err)

	assert.Equal(t, []provenance.EventType{
		provenance.EventBatchCreated,
		provenance.EventProductAdded,
		provenance.EventProductAssignedToCourier,
		provenance.EventCheckpointAdded,
		provenance.EventProductDelivered,
		provenance.EventBatchCertified,
	}, f.eventTypes(t))

	events, err := f.events.EventsSince(ctx, 0, 0)
	require.NoError(t, err)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.At.IsZero())
	}
	assert.Equal(t, "alice@example.com", events[1].Payload["customerEmail"])
	assert.Equal(t, "Delivered", events[4].Payload["deliveryStatus"])
}

// =============================================================================
// END-TO-END
// =============================================================================

func TestEndToEnd_LaptopDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	query := provenance.NewQueryService(f.store, f.dir)

	_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(1))
	require.NoError(t, err)
	_, err = f.engine.AddProduct(ctx, manufacturer, provenance.NewProduct{ID: 1, BatchID: 1})
	require.NoError(t, err)

	p, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)
	assert.Equal(t, courierA, p.LogisticsPartner)

	_, err = f.engine.AssignCourier(ctx, courierB, 1)
	require.ErrorIs(t, err, provenance.ErrAlreadyAssigned)

	_, err = f.engine.AddCheckpoint(ctx, courierA, 1, provenance.Checkpoint{Location: "Warehouse", CheckInTime: 1700000000, CheckOutTime: 1700003600})
	require.NoError(t, err)
	_, err = f.engine.MarkAsDelivered(ctx, courierA, 1, "delivered")
	require.NoError(t, err)

	view, err := query.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, provenance.StatusDelivered, view.DeliveryStatus)
	assert.Len(t, view.Checkpoints, 1)
	assert.Equal(t, "Warehouse", view.Checkpoints[0].Location)
	assert.Equal(t, courierA, view.LogisticsPartner)
	assert.Equal(t, "Laptop", view.Batch.Name)
}
