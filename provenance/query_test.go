package provenance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/provenance-ledger/provenance"
)

func TestQuery_ProductViewMirrorsCertification(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	ctx := context.Background()
	query := provenance.NewQueryService(f.store, f.dir)

	view, err := query.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.False(t, view.IsCertified)
	assert.Nil(t, view.Certification)

	_, err = f.engine.CertifyBatch(ctx, authority, 1, provenance.CertificationInput{AuthorityName: "ISO", DocumentHash: "QmHash"})
	require.NoError(t, err)

	view, err = query.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.True(t, view.IsCertified)
	require.NotNil(t, view.Certification)
	assert.Equal(t, "QmHash", view.Certification.DocumentHash)
}

func TestQuery_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	query := provenance.NewQueryService(f.store, f.dir)

	_, err := query.GetBatch(ctx, 9)
	assert.ErrorIs(t, err, provenance.ErrNotFound)
	_, err = query.GetProduct(ctx, 9)
	assert.ErrorIs(t, err, provenance.ErrNotFound)
	_, err = query.GetCheckpoints(ctx, 9)
	assert.ErrorIs(t, err, provenance.ErrNotFound)
	_, err = query.ProductsInBatch(ctx, 9)
	assert.ErrorIs(t, err, provenance.ErrNotFound)
}

func TestQuery_ListingsAndBatchMembership(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 1, 3)
	f.seedProduct(t, 1, 1)
	f.seedProduct(t, 2, 2)
	ctx := context.Background()
	query := provenance.NewQueryService(f.store, f.dir)

	batches, err := query.ListBatchIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []provenance.BatchID{1, 2}, batches)

	products, err := query.ListProductIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []provenance.ProductID{1, 2, 3}, products)

	inBatch, err := query.ProductsInBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []provenance.ProductID{1, 3}, inBatch)

	details, err := query.GetCustomerDetails(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Alice", details.Name)
}

func TestQuery_EmptyBatchHasNoProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.AddBatch(ctx, manufacturer, laptopBatch(1))
	require.NoError(t, err)

	ids, err := provenance.NewQueryService(f.store, f.dir).ProductsInBatch(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestQuery_Visibility(t *testing.T) {
	// GIVEN: Two products, one claimed by courier A and sold to alice
	// WHEN: Each party asks for their products and batches
	// THEN: Each sees only what they take part in
	f := newFixture(t)
	f.seedProduct(t, 1, 1)
	f.seedProduct(t, 2, 2)
	ctx := context.Background()
	query := provenance.NewQueryService(f.store, f.dir)

	_, err := f.engine.AssignCourier(ctx, courierA, 1)
	require.NoError(t, err)
	_, err = f.engine.AssignToCustomer(ctx, manufacturer, 1, customer)
	require.NoError(t, err)

	mine, err := query.ProductsVisibleTo(ctx, manufacturer)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	mine, err = query.ProductsVisibleTo(ctx, courierA)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, provenance.ProductID(1), mine[0].ID)

	mine, err = query.ProductsVisibleTo(ctx, courierB)
	require.NoError(t, err)
	assert.Empty(t, mine)

	mine, err = query.ProductsVisibleTo(ctx, customer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Laptop", mine[0].Batch.Name)

	batches, err := query.BatchesVisibleTo(ctx, manufacturer, provenance.RoleManufacturer)
	require.NoError(t, err)
	assert.Len(t, batches, 2)

	batches, err = query.BatchesVisibleTo(ctx, "globex", provenance.RoleManufacturer)
	require.NoError(t, err)
	assert.Empty(t, batches)

	batches, err = query.BatchesVisibleTo(ctx, courierB, provenance.RoleCourier)
	require.NoError(t, err)
	assert.Len(t, batches, 2)

	batches, err = query.BatchesVisibleTo(ctx, customer, provenance.RoleCustomer)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, provenance.BatchID(1), batches[0].ID)
}

func TestQuery_AuthorizeRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	query := provenance.NewQueryService(f.store, f.dir)

	// Every registered role may read
	for _, actor := range []provenance.ActorID{manufacturer, courierA, authority, customer} {
		assert.NoError(t, query.AuthorizeRead(ctx, actor), actor)
	}

	// Anonymous and unregistered callers may not
	err := query.AuthorizeRead(ctx, "")
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)

	err = query.AuthorizeRead(ctx, "mallory")
	assert.ErrorIs(t, err, provenance.ErrUnauthorized)
	var denied *provenance.UnauthorizedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, provenance.OpRead, denied.Operation)
}
