// Package app assembles the entity modules: for each record type the primary
// store, search index, indexed repository and HTTP handler.
package app

import (
	"fmt"

	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
	"github.com/AksahyDwivedi/pharmacy/internal/domain/pharmacy"
	v1 "github.com/AksahyDwivedi/pharmacy/internal/infrastructure/http/v1"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/http/v1/handlers"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/indexing"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/search/bleveindex"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/storage/memstore"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/storage/postgres"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/storage/postgres/record_repo"
	"github.com/AksahyDwivedi/pharmacy/internal/metadata"
)

// Deps holds the infrastructure shared by every module.
type Deps struct {
	// TxManager selects the PostgreSQL store; nil keeps records in memory.
	TxManager *postgres.TxManager
	Indexes   *bleveindex.Provider
	Mirror    domain.Mirror
}

// Module is one wired entity.
type Module struct {
	Def     metadata.EntityDef
	Target  indexing.Target
	Handler v1.EntityRouteHandler
}

type entry struct {
	name   string
	path   string
	table  string
	label  string
	record any
	build  func(def metadata.EntityDef, deps Deps) (Module, error)
}

func newEntry[T entity.Record](name, table, label string, newFn func() T) entry {
	return entry{
		name:   name,
		path:   name,
		table:  table,
		label:  label,
		record: newFn(),
		build: func(def metadata.EntityDef, deps Deps) (Module, error) {
			return buildModule(def, deps, newFn)
		},
	}
}

// entries lists the served entities.
func entries() []entry {
	return []entry{
		newEntry("customers", "customers", "Customers", func() *pharmacy.Customer { return new(pharmacy.Customer) }),
		newEntry("suppliers", "suppliers", "Suppliers", func() *pharmacy.Supplier { return new(pharmacy.Supplier) }),
		newEntry("medicines", "medicines", "Medicines", func() *pharmacy.Medicine { return new(pharmacy.Medicine) }),
		newEntry("medicine-batches", "medicine_batches", "Medicine batches", func() *pharmacy.MedicineBatch { return new(pharmacy.MedicineBatch) }),
		newEntry("prescriptions", "prescriptions", "Prescriptions", func() *pharmacy.Prescription { return new(pharmacy.Prescription) }),
		newEntry("purchases", "purchases", "Purchases", func() *pharmacy.Purchase { return new(pharmacy.Purchase) }),
		newEntry("purchase-items", "purchase_items", "Purchase items", func() *pharmacy.PurchaseItem { return new(pharmacy.PurchaseItem) }),
		newEntry("sales", "sales", "Sales", func() *pharmacy.Sale { return new(pharmacy.Sale) }),
		newEntry("sale-items", "sale_items", "Sale items", func() *pharmacy.SaleItem { return new(pharmacy.SaleItem) }),
		newEntry("payments", "payments", "Payments", func() *pharmacy.Payment { return new(pharmacy.Payment) }),
		newEntry("supplier-payments", "supplier_payments", "Supplier payments", func() *pharmacy.SupplierPayment { return new(pharmacy.SupplierPayment) }),
	}
}

// NewRegistry returns the metadata registry of every served entity.
func NewRegistry() *metadata.Registry {
	reg := metadata.NewRegistry()
	for _, e := range entries() {
		def := metadata.Inspect(e.record, e.name, e.path, e.table)
		def.Label = e.label
		reg.Register(def)
	}
	return reg
}

// BuildModules wires every entity registered in reg, keyed by entity name.
func BuildModules(reg *metadata.Registry, deps Deps) (map[string]Module, error) {
	modules := make(map[string]Module)
	for _, e := range entries() {
		def, ok := reg.Get(e.name)
		if !ok {
			continue
		}
		m, err := e.build(def, deps)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", e.name, err)
		}
		modules[e.name] = m
	}
	return modules, nil
}

// Routes converts modules into router modules.
func Routes(modules map[string]Module) map[string]v1.EntityModule {
	routes := make(map[string]v1.EntityModule, len(modules))
	for name, m := range modules {
		routes[name] = v1.EntityModule{Def: m.Def, Handler: m.Handler}
	}
	return routes
}

// RegisterTargets adds every module to the reconciler.
func RegisterTargets(r *indexing.Reconciler, modules map[string]Module) {
	for _, m := range modules {
		r.Register(m.Target)
	}
}

func buildModule[T entity.Record](def metadata.EntityDef, deps Deps, newFn func() T) (Module, error) {
	idx, err := deps.Indexes.Open(def)
	if err != nil {
		return Module{}, err
	}

	cfg := domain.IndexedRepositoryConfig[T]{
		EntityName: def.Name,
		Index:      bleveindex.New(idx, def, newFn),
		Mirror:     deps.Mirror,
	}
	if deps.TxManager != nil {
		cfg.Store = record_repo.New(def, deps.TxManager, newFn)
		cfg.TxManager = deps.TxManager
	} else {
		cfg.Store = memstore.New(def.Name, newFn)
	}

	repo := domain.NewIndexedRepository(cfg)
	return Module{
		Def:     def,
		Target:  repo,
		Handler: handlers.NewEntityHandler(handlers.NewBaseHandler(), repo, newFn),
	}, nil
}
