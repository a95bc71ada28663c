package domain

// EntityType identifies one QuickBooks record family (list or transaction).
type EntityType string

const (
	EntityItemInventory  EntityType = "ItemInventory"
	EntityCustomer       EntityType = "Customer"
	EntityVendor         EntityType = "Vendor"
	EntityInvoice        EntityType = "Invoice"
	EntityBill           EntityType = "Bill"
	EntityReceivePayment EntityType = "ReceivePayment"
	EntityCreditMemo     EntityType = "CreditMemo"
	EntityJournalEntry   EntityType = "JournalEntry"
)

// Record is one business object in its desktop-side form. Fields holds
// flattened qbXML values; nested references are stored under keys like
// "IncomeAccountRef.FullName". A record created locally but not yet
// round-tripped through QuickBooks has an empty ID and is matched by Name
// until the ListID/TxnID is assigned.
type Record struct {
	ID           string              `json:"id"`
	EditSequence string              `json:"edit_sequence,omitempty"`
	TimeModified string              `json:"time_modified,omitempty"`
	Fields       map[string]string   `json:"fields"`
	Lines        []map[string]string `json:"lines,omitempty"`
}

func NewRecord() *Record {
	return &Record{Fields: make(map[string]string)}
}

func (r *Record) Name() string {
	if v := r.Fields["Name"]; v != "" {
		return v
	}
	return r.Fields["FullName"]
}

// IsPlaceholder reports whether the record has not yet been assigned a
// desktop-side identifier.
func (r *Record) IsPlaceholder() bool {
	return r.ID == ""
}

func (r *Record) Clone() *Record {
	c := &Record{
		ID:           r.ID,
		EditSequence: r.EditSequence,
		TimeModified: r.TimeModified,
		Fields:       make(map[string]string, len(r.Fields)),
	}
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	if r.Lines != nil {
		c.Lines = make([]map[string]string, 0, len(r.Lines))
		for _, line := range r.Lines {
			lc := make(map[string]string, len(line))
			for k, v := range line {
				lc[k] = v
			}
			c.Lines = append(c.Lines, lc)
		}
	}
	return c
}

// ChangeSet maps field name to the value that should be pushed to the other
// side. An empty change-set means no mutation is needed.
type ChangeSet map[string]string

// Conflict surfaces a field that changed on both sides since the last sync.
// The engine never resolves these automatically; whichever side is reconciled
// second wins, and the conflict is logged with both values.
type Conflict struct {
	Field    string `json:"field"`
	Cached   string `json:"cached"`
	Observed string `json:"observed"`
}
