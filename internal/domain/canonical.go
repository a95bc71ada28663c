package domain

// Canonical records are the reconciled, system-neutral form handed to the
// cloud-side upsert layer. ExternalKey is always the desktop identifier; it
// is stored on the cloud record so later lookups match on it directly.

type CanonicalPartner struct {
	ExternalKey string `json:"external_key" validate:"required"`
	Name        string `json:"name" validate:"required"`
	CompanyName string `json:"company_name,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string `json:"phone,omitempty"`
	Street      string `json:"street,omitempty"`
	Street2     string `json:"street2,omitempty"`
	City        string `json:"city,omitempty"`
	Zip         string `json:"zip,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
	PaymentTerm string `json:"payment_term,omitempty"`
	IsSupplier  bool   `json:"is_supplier"`
	IsActive    bool   `json:"is_active"`

	// Extras carries operator-mapped field values (target field -> value)
	// beyond the built-in mapping.
	Extras map[string]string `json:"extras,omitempty"`
}

type CanonicalProduct struct {
	ExternalKey  string  `json:"external_key" validate:"required"`
	Code         string  `json:"code" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	SalesDesc    string  `json:"sales_desc,omitempty"`
	SalesPrice   float64 `json:"sales_price"`
	PurchaseDesc string  `json:"purchase_desc,omitempty"`
	PurchaseCost float64 `json:"purchase_cost"`
	QtyOnHand    float64 `json:"qty_on_hand"`

	Extras map[string]string `json:"extras,omitempty"`
}

type CanonicalLine struct {
	ItemName    string  `json:"item_name,omitempty"`
	AccountName string  `json:"account_name,omitempty"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
	Memo        string  `json:"memo,omitempty"`
	Debit       float64 `json:"debit,omitempty"`
	Credit      float64 `json:"credit,omitempty"`
	EntityName  string  `json:"entity_name,omitempty"`
}

type CanonicalTransaction struct {
	ExternalKey string          `json:"external_key" validate:"required"`
	Kind        EntityType      `json:"kind" validate:"required"`
	RefNumber   string          `json:"ref_number,omitempty"`
	TxnDate     string          `json:"txn_date,omitempty"`
	DueDate     string          `json:"due_date,omitempty"`
	PartnerName string          `json:"partner_name,omitempty"`
	Memo        string          `json:"memo,omitempty"`
	Total       float64         `json:"total"`
	JournalName string          `json:"journal_name,omitempty"`
	Lines       []CanonicalLine `json:"lines,omitempty"`

	Extras map[string]string `json:"extras,omitempty"`
}
