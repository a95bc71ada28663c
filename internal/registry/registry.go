package registry

import (
	"fmt"

	"qbsync-server/internal/domain"
)

// LineSpec describes one repeating line element inside a transaction return.
type LineSpec struct {
	Tag       string
	Fields    []string
	RefFields []string
}

// Spec declares everything the request builder, response parser, and
// reconciler need to know about one entity type. Adding an entity type to the
// sync is a single registration, not a new conditional branch.
type Spec struct {
	Type    domain.EntityType
	IDField string

	QueryRq string
	QueryRs string
	Ret     string
	AddRq   string
	Add     string
	AddRs   string
	ModRq   string
	Mod     string
	ModRs   string

	MaxReturned int
	Fields      []string
	RefFields   []string
	Lines       []LineSpec

	// FullRefresh marks list queries that return the complete record set, so
	// the reconciler can detect deletions once the final page lands.
	FullRefresh bool
	Mutable     bool

	DefaultParams domain.TaskParams
}

func (s Spec) SupportsMutation() bool {
	return s.Mutable
}

// DiffFields is the comparison set for the diff engine: scalar fields plus
// reference fields resolved to their display name. References are compared by
// FullName because the two systems assign different internal identifiers to
// the same referenced entity.
func (s Spec) DiffFields() []string {
	out := make([]string, 0, len(s.Fields)+len(s.RefFields))
	out = append(out, s.Fields...)
	for _, ref := range s.RefFields {
		out = append(out, ref+".FullName")
	}
	return out
}

// NewTask seeds a query task for this entity type with its default filters.
func (s Spec) NewTask() *domain.Task {
	return &domain.Task{
		EntityType:  s.Type,
		RequestID:   1,
		Params:      s.DefaultParams,
		FullRefresh: s.FullRefresh,
	}
}

// newSpec fills in the regular qbXML tag names derived from the type tag.
func newSpec(t domain.EntityType, idField string) Spec {
	tag := string(t)
	return Spec{
		Type:    t,
		IDField: idField,
		QueryRq: tag + "QueryRq",
		QueryRs: tag + "QueryRs",
		Ret:     tag + "Ret",
		AddRq:   tag + "AddRq",
		Add:     tag + "Add",
		AddRs:   tag + "AddRs",
		ModRq:   tag + "ModRq",
		Mod:     tag + "Mod",
		ModRs:   tag + "ModRs",
	}
}

// Registry maps entity-type tags to their specs, preserving registration
// order because the session task queue is built in this order.
type Registry struct {
	specs map[domain.EntityType]Spec
	order []domain.EntityType
}

func New() *Registry {
	return &Registry{specs: make(map[domain.EntityType]Spec)}
}

func (r *Registry) Register(spec Spec) error {
	if _, exists := r.specs[spec.Type]; exists {
		return fmt.Errorf("entity type %q already registered", spec.Type)
	}
	if spec.MaxReturned <= 0 {
		return fmt.Errorf("entity type %q: MaxReturned must be positive", spec.Type)
	}
	r.specs[spec.Type] = spec
	r.order = append(r.order, spec.Type)
	return nil
}

func (r *Registry) Lookup(t domain.EntityType) (Spec, bool) {
	spec, ok := r.specs[t]
	return spec, ok
}

func (r *Registry) Types() []domain.EntityType {
	out := make([]domain.EntityType, len(r.order))
	copy(out, r.order)
	return out
}

// TaskTemplate builds the fresh task queue seeded into every new session.
func (r *Registry) TaskTemplate() []*domain.Task {
	tasks := make([]*domain.Task, 0, len(r.order))
	for _, t := range r.order {
		spec := r.specs[t]
		tasks = append(tasks, spec.NewTask())
	}
	return tasks
}

// mustRegister is for static registration tables, where a rejected spec is a
// programming error that must not silently drop an entity type.
func mustRegister(r *Registry, spec Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Default registers the entity types this deployment synchronizes, in queue
// order. Page sizes and filters follow the connector's production settings.
func Default() *Registry {
	r := New()

	item := newSpec(domain.EntityItemInventory, "ListID")
	item.MaxReturned = 100
	item.Fields = []string{"Name", "FullName", "IsActive", "SalesDesc", "SalesPrice", "PurchaseDesc", "PurchaseCost", "ManufacturerPartNumber", "QuantityOnHand"}
	item.RefFields = []string{"ParentRef", "SalesTaxCodeRef", "IncomeAccountRef", "COGSAccountRef", "AssetAccountRef"}
	item.FullRefresh = true
	item.Mutable = true
	mustRegister(r, item)

	customer := newSpec(domain.EntityCustomer, "ListID")
	customer.MaxReturned = 50
	customer.Fields = []string{"Name", "FullName", "CompanyName", "FirstName", "LastName", "Email", "Phone", "IsActive", "Sublevel"}
	customer.RefFields = []string{"ParentRef", "CustomerTypeRef", "TermsRef", "SalesRepRef"}
	customer.FullRefresh = true
	customer.DefaultParams = domain.TaskParams{FromModifiedDate: "1980-01-01"}
	mustRegister(r, customer)

	vendor := newSpec(domain.EntityVendor, "ListID")
	vendor.MaxReturned = 50
	vendor.Fields = []string{"Name", "FullName", "CompanyName", "FirstName", "LastName", "Email", "Phone", "IsActive"}
	vendor.RefFields = []string{"TermsRef"}
	vendor.FullRefresh = true
	vendor.DefaultParams = domain.TaskParams{FromModifiedDate: "1980-01-01"}
	mustRegister(r, vendor)

	invoice := newSpec(domain.EntityInvoice, "TxnID")
	invoice.MaxReturned = 10
	invoice.Fields = []string{"RefNumber", "TxnDate", "DueDate", "Subtotal", "Memo"}
	invoice.RefFields = []string{"CustomerRef"}
	invoice.Lines = []LineSpec{{
		Tag:       "InvoiceLineRet",
		Fields:    []string{"Desc", "Quantity", "Rate", "Amount"},
		RefFields: []string{"ItemRef"},
	}}
	invoice.DefaultParams = domain.TaskParams{FromModifiedDate: "1980-01-01", IncludeLineItems: true}
	mustRegister(r, invoice)

	bill := newSpec(domain.EntityBill, "TxnID")
	bill.MaxReturned = 50
	bill.Fields = []string{"RefNumber", "TxnDate", "DueDate", "AmountDue", "Memo"}
	bill.RefFields = []string{"VendorRef"}
	bill.Lines = []LineSpec{
		{Tag: "ExpenseLineRet", Fields: []string{"Amount", "Memo"}, RefFields: []string{"AccountRef"}},
		{Tag: "ItemLineRet", Fields: []string{"Desc", "Quantity", "Cost", "Amount"}, RefFields: []string{"ItemRef"}},
	}
	bill.DefaultParams = domain.TaskParams{IncludeLineItems: true}
	mustRegister(r, bill)

	payment := newSpec(domain.EntityReceivePayment, "TxnID")
	payment.MaxReturned = 50
	payment.Fields = []string{"RefNumber", "TxnDate", "TotalAmount", "Memo"}
	payment.RefFields = []string{"CustomerRef"}
	payment.Lines = []LineSpec{{
		Tag:    "AppliedToTxnRet",
		Fields: []string{"TxnID", "PaymentAmount"},
	}}
	payment.DefaultParams = domain.TaskParams{IncludeLineItems: true}
	mustRegister(r, payment)

	creditMemo := newSpec(domain.EntityCreditMemo, "TxnID")
	creditMemo.MaxReturned = 50
	creditMemo.Fields = []string{"RefNumber", "TxnDate", "DueDate", "Subtotal", "Memo"}
	creditMemo.RefFields = []string{"CustomerRef"}
	creditMemo.Lines = []LineSpec{{
		Tag:       "CreditMemoLineRet",
		Fields:    []string{"Desc", "Quantity", "Rate", "Amount"},
		RefFields: []string{"ItemRef"},
	}}
	creditMemo.DefaultParams = domain.TaskParams{IncludeLineItems: true}
	mustRegister(r, creditMemo)

	journal := newSpec(domain.EntityJournalEntry, "TxnID")
	journal.MaxReturned = 10
	journal.Fields = []string{"RefNumber", "TxnDate", "Memo"}
	journal.Lines = []LineSpec{
		{Tag: "JournalDebitLine", Fields: []string{"Amount", "Memo"}, RefFields: []string{"AccountRef", "EntityRef"}},
		{Tag: "JournalCreditLine", Fields: []string{"Amount", "Memo"}, RefFields: []string{"AccountRef", "EntityRef"}},
	}
	journal.DefaultParams = domain.TaskParams{IncludeLineItems: true}
	mustRegister(r, journal)

	return r
}
