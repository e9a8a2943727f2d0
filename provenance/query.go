/*
query.go - Read-only projections over the Store

PURPOSE:
  Lookups by id, full listings, and per-actor visibility filters. Nothing
  here writes. No pagination: intended for small-to-moderate ledgers.

  Callers gate reads with AuthorizeRead: any actor holding a role may
  read, unknown actors may not.

VISIBILITY:
  Products: visible to their manufacturer, their logistics partner, and
            (once assigned) their customer.
  Batches:  manufacturers see their own; couriers and certification
            authorities see all; customers see the batches of products
            assigned to them.

SEE ALSO:
  - store.go: the underlying reads
*/
package provenance

import (
	"context"
	"fmt"
	"sort"
)

type QueryService struct {
	Store     Store
	Directory Directory
	Guard     Guard
}

func NewQueryService(store Store, directory Directory) *QueryService {
	return &QueryService{Store: store, Directory: directory, Guard: DefaultGuard}
}

// AuthorizeRead checks that actor holds a role. An empty actor or one the
// Directory doesn't know is denied with an UnauthorizedError.
func (q *QueryService) AuthorizeRead(ctx context.Context, actor ActorID) error {
	var role Role
	if q.Directory != nil && actor != "" {
		r, err := q.Directory.ResolveRole(ctx, actor)
		switch {
		case err == nil:
			role = r
		case !IsNotFound(err):
			return fmt.Errorf("failed to resolve role for %q: %w", actor, err)
		}
	}
	g := q.Guard
	if g == nil {
		g = DefaultGuard
	}
	return g.Authorize(AccessRequest{Actor: actor, Role: role, Operation: OpRead})
}

func (q *QueryService) GetBatch(ctx context.Context, id BatchID) (Batch, error) {
	return q.Store.GetBatch(ctx, id)
}

// GetProduct returns the product with its batch's certification mirrored in.
func (q *QueryService) GetProduct(ctx context.Context, id ProductID) (ProductView, error) {
	p, err := q.Store.GetProduct(ctx, id)
	if err != nil {
		return ProductView{}, err
	}
	return q.view(ctx, p)
}

func (q *QueryService) view(ctx context.Context, p Product) (ProductView, error) {
	b, err := q.Store.GetBatch(ctx, p.BatchID)
	if err != nil {
		return ProductView{}, err
	}
	return ProductView{
		Product:       p,
		Batch:         b,
		Certification: b.Certification,
		IsCertified:   b.IsCertified,
	}, nil
}

func (q *QueryService) ListBatchIDs(ctx context.Context) ([]BatchID, error) {
	return q.Store.ListBatchIDs(ctx)
}

func (q *QueryService) ListProductIDs(ctx context.Context) ([]ProductID, error) {
	return q.Store.ListProductIDs(ctx)
}

func (q *QueryService) GetCheckpoints(ctx context.Context, id ProductID) ([]Checkpoint, error) {
	p, err := q.Store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Checkpoints, nil
}

func (q *QueryService) GetCustomerDetails(ctx context.Context, id ProductID) (CustomerDetails, error) {
	p, err := q.Store.GetProduct(ctx, id)
	if err != nil {
		return CustomerDetails{}, err
	}
	return p.CustomerDetails, nil
}

// ProductsInBatch returns the ids of products that reference the batch.
func (q *QueryService) ProductsInBatch(ctx context.Context, id BatchID) ([]ProductID, error) {
	if _, err := q.Store.GetBatch(ctx, id); err != nil {
		return nil, err
	}
	products, err := q.allProducts(ctx)
	if err != nil {
		return nil, err
	}
	ids := []ProductID{}
	for _, p := range products {
		if p.BatchID == id {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

// ProductsVisibleTo filters all products down to those the actor takes part in.
func (q *QueryService) ProductsVisibleTo(ctx context.Context, actor ActorID) ([]ProductView, error) {
	products, err := q.allProducts(ctx)
	if err != nil {
		return nil, err
	}
	views := []ProductView{}
	for _, p := range products {
		if !ProductVisibleTo(p, actor) {
			continue
		}
		v, err := q.view(ctx, p)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// ProductVisibleTo reports whether actor is a party to p.
func ProductVisibleTo(p Product, actor ActorID) bool {
	if actor == "" {
		return false
	}
	return p.Manufacturer == actor || p.LogisticsPartner == actor || p.Customer == actor
}

// BatchesVisibleTo applies the batch visibility rules for the given role.
func (q *QueryService) BatchesVisibleTo(ctx context.Context, actor ActorID, role Role) ([]Batch, error) {
	ids, err := q.Store.ListBatchIDs(ctx)
	if err != nil {
		return nil, err
	}

	var customerBatches map[BatchID]bool
	if role == RoleCustomer {
		products, err := q.allProducts(ctx)
		if err != nil {
			return nil, err
		}
		customerBatches = make(map[BatchID]bool)
		for _, p := range products {
			if p.Customer == actor {
				customerBatches[p.BatchID] = true
			}
		}
	}

	batches := []Batch{}
	for _, id := range ids {
		b, err := q.Store.GetBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		switch role {
		case RoleCourier, RoleCertificationAuthority:
			batches = append(batches, b)
		case RoleManufacturer:
			if b.Manufacturer == actor {
				batches = append(batches, b)
			}
		case RoleCustomer:
			if customerBatches[b.ID] {
				batches = append(batches, b)
			}
		}
	}
	return batches, nil
}

func (q *QueryService) allProducts(ctx context.Context) ([]Product, error) {
	ids, err := q.Store.ListProductIDs(ctx)
	if err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(ids))
	for _, id := range ids {
		p, err := q.Store.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}
