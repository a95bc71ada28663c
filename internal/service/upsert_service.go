package service

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"qbsync-server/internal/domain"
	"qbsync-server/internal/odoo"
	"qbsync-server/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// UpsertService lands reconciled desktop records on the cloud side. Every
// operation is an idempotent ensure: look the record up by its external key,
// fall back to a name match, create only when neither finds it, and write
// updates only when a managed field actually differs.
type UpsertService struct {
	client    *odoo.Client
	crosswalk repository.CrosswalkRepository
	validate  *validator.Validate

	mu       sync.Mutex
	refCache map[string]int
}

func NewUpsertService(client *odoo.Client, crosswalk repository.CrosswalkRepository) *UpsertService {
	return &UpsertService{
		client:    client,
		crosswalk: crosswalk,
		validate:  validator.New(),
		refCache:  make(map[string]int),
	}
}

// PushRecords lands one page of records. A failure on one record is logged
// and does not abort the rest of the page; the count of records landed is
// returned so callers can report partial pages.
func (s *UpsertService) PushRecords(entityType domain.EntityType, records []*domain.Record) int {
	pushed := 0
	for _, rec := range records {
		if err := s.pushRecord(entityType, rec); err != nil {
			log.Error().Err(err).
				Str("entity_type", string(entityType)).
				Str("id", rec.ID).
				Str("name", rec.Name()).
				Msg("failed to push record")
			continue
		}
		pushed++
	}
	return pushed
}

func (s *UpsertService) pushRecord(entityType domain.EntityType, rec *domain.Record) error {
	switch entityType {
	case domain.EntityCustomer:
		if isJobRecord(rec) {
			log.Debug().Str("name", rec.Name()).Msg("skipping job sub-record")
			return nil
		}
		p := toPartner(rec, false)
		p.Extras = s.mappedExtras(entityType, rec)
		_, err := s.EnsurePartner(p)
		return err
	case domain.EntityVendor:
		p := toPartner(rec, true)
		p.Extras = s.mappedExtras(entityType, rec)
		_, err := s.EnsurePartner(p)
		return err
	case domain.EntityItemInventory:
		p := toProduct(rec)
		p.Extras = s.mappedExtras(entityType, rec)
		_, err := s.EnsureProduct(p)
		return err
	case domain.EntityInvoice, domain.EntityBill, domain.EntityCreditMemo:
		txn := toTransaction(entityType, rec)
		txn.Extras = s.mappedExtras(entityType, rec)
		_, err := s.EnsureTransaction(txn)
		return err
	default:
		// Payments and journal entries are pulled for the snapshot only.
		log.Debug().Str("entity_type", string(entityType)).Msg("entity type is not pushed")
		return nil
	}
}

// isJobRecord reports whether a customer record is a job nested under a real
// customer. Jobs share the parent's ledger identity and are never pushed as
// partners of their own.
func isJobRecord(rec *domain.Record) bool {
	if rec.Fields["ParentRef.FullName"] != "" {
		return true
	}
	if lvl := rec.Fields["Sublevel"]; lvl != "" && lvl != "0" {
		return true
	}
	return false
}

func toPartner(rec *domain.Record, isSupplier bool) *domain.CanonicalPartner {
	return &domain.CanonicalPartner{
		ExternalKey: rec.ID,
		Name:        rec.Name(),
		CompanyName: rec.Fields["CompanyName"],
		FirstName:   rec.Fields["FirstName"],
		LastName:    rec.Fields["LastName"],
		Email:       rec.Fields["Email"],
		Phone:       rec.Fields["Phone"],
		PaymentTerm: rec.Fields["TermsRef.FullName"],
		IsSupplier:  isSupplier,
		IsActive:    rec.Fields["IsActive"] != "false",
	}
}

func toProduct(rec *domain.Record) *domain.CanonicalProduct {
	return &domain.CanonicalProduct{
		ExternalKey:  rec.ID,
		Code:         rec.Name(),
		Name:         rec.Name(),
		SalesDesc:    rec.Fields["SalesDesc"],
		SalesPrice:   parseAmount(rec.Fields["SalesPrice"]),
		PurchaseDesc: rec.Fields["PurchaseDesc"],
		PurchaseCost: parseAmount(rec.Fields["PurchaseCost"]),
		QtyOnHand:    parseAmount(rec.Fields["QuantityOnHand"]),
	}
}

func toTransaction(entityType domain.EntityType, rec *domain.Record) *domain.CanonicalTransaction {
	partner := rec.Fields["CustomerRef.FullName"]
	if partner == "" {
		partner = rec.Fields["VendorRef.FullName"]
	}
	// A transaction booked against a job carries "Customer:Job"; the job
	// shares the customer's ledger identity, so point it at the parent.
	if parent, _, found := strings.Cut(partner, ":"); found {
		partner = parent
	}
	total := parseAmount(rec.Fields["Subtotal"])
	if total == 0 {
		total = parseAmount(rec.Fields["AmountDue"])
	}

	txn := &domain.CanonicalTransaction{
		ExternalKey: rec.ID,
		Kind:        entityType,
		RefNumber:   rec.Fields["RefNumber"],
		TxnDate:     rec.Fields["TxnDate"],
		DueDate:     rec.Fields["DueDate"],
		PartnerName: partner,
		Memo:        rec.Fields["Memo"],
		Total:       total,
	}

	for _, line := range rec.Lines {
		rate := parseAmount(line["Rate"])
		if rate == 0 {
			rate = parseAmount(line["Cost"])
		}
		txn.Lines = append(txn.Lines, domain.CanonicalLine{
			ItemName:    line["ItemRef.FullName"],
			AccountName: line["AccountRef.FullName"],
			Description: line["Desc"],
			Quantity:    parseAmount(line["Quantity"]),
			Rate:        rate,
			Amount:      parseAmount(line["Amount"]),
			Memo:        line["Memo"],
		})
	}
	return txn
}

// mappedExtras applies the operator's field-mapping rules to a record's raw
// fields, yielding extra model values to land alongside the built-in mapping.
func (s *UpsertService) mappedExtras(entityType domain.EntityType, rec *domain.Record) map[string]string {
	rules := s.crosswalk.FieldRules(string(entityType))
	if len(rules) == 0 {
		return nil
	}

	out := make(map[string]string, len(rules))
	for field, rule := range rules {
		value := rec.Fields[field]
		if value == "" {
			continue
		}
		switch rule.Transform {
		case "trim":
			value = strings.TrimSpace(value)
		case "upper":
			value = strings.ToUpper(value)
		case "lower":
			value = strings.ToLower(value)
		}
		out[rule.Target] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// EnsurePartner creates or updates one res.partner and returns its id.
func (s *UpsertService) EnsurePartner(p *domain.CanonicalPartner) (int, error) {
	if err := s.validate.Struct(p); err != nil {
		return 0, fmt.Errorf("partner %s failed validation: %w", p.ExternalKey, err)
	}

	values := map[string]interface{}{
		"name":  p.Name,
		"ref":   p.ExternalKey,
		"email": p.Email,
		"phone": p.Phone,
	}
	if p.Street != "" {
		values["street"] = p.Street
	}
	if p.Street2 != "" {
		values["street2"] = p.Street2
	}
	if p.City != "" {
		values["city"] = p.City
	}
	if p.Zip != "" {
		values["zip"] = p.Zip
	}

	countryID := 0
	if p.Country != "" {
		if id, ok := s.resolveCountry(p.Country); ok {
			countryID = id
			values["country_id"] = id
		}
	}
	if p.State != "" {
		if id, ok := s.resolveState(p.State, countryID); ok {
			values["state_id"] = id
		}
	}
	if p.PaymentTerm != "" {
		if id, ok := s.resolvePaymentTerm(p.PaymentTerm); ok {
			if p.IsSupplier {
				values["property_supplier_payment_term_id"] = id
			} else {
				values["property_payment_term_id"] = id
			}
		} else {
			log.Warn().Str("term", p.PaymentTerm).Str("partner", p.Name).Msg("payment term not found, leaving default")
		}
	}
	if p.IsSupplier {
		values["supplier_rank"] = 1
	} else {
		values["customer_rank"] = 1
	}
	for field, value := range p.Extras {
		values[field] = value
	}

	partnerFields := []string{"id", "ref", "name", "email", "phone", "street", "city", "zip"}

	existing, err := s.client.SearchRead("res.partner",
		[]interface{}{[]interface{}{"ref", "=", p.ExternalKey}},
		partnerFields, 1)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		// A partner imported cloud-side first carries no external key yet;
		// match it by name before creating a duplicate. The delta write then
		// stamps the external key so the next lookup is direct.
		existing, err = s.searchByNameCandidates("res.partner", p.Name, partnerFields)
		if err != nil {
			return 0, err
		}
	}

	if len(existing) > 0 {
		id := recordID(existing[0])
		delta := deltaValues(existing[0], values)
		if len(delta) == 0 {
			return id, nil
		}
		if err := s.client.Write("res.partner", id, delta); err != nil {
			return 0, err
		}
		return id, nil
	}

	return s.client.Create("res.partner", values)
}

// EnsureProduct creates or updates one product keyed by its item code.
func (s *UpsertService) EnsureProduct(p *domain.CanonicalProduct) (int, error) {
	if err := s.validate.Struct(p); err != nil {
		return 0, fmt.Errorf("product %s failed validation: %w", p.ExternalKey, err)
	}

	values := map[string]interface{}{
		"name":                 p.Name,
		"default_code":         p.Code,
		"list_price":           p.SalesPrice,
		"standard_price":       p.PurchaseCost,
		"description_sale":     p.SalesDesc,
		"description_purchase": p.PurchaseDesc,
	}
	for field, value := range p.Extras {
		values[field] = value
	}

	existing, err := s.client.SearchRead("product.product",
		[]interface{}{[]interface{}{"default_code", "=", p.Code}},
		[]string{"id", "name", "default_code", "list_price", "standard_price"}, 1)
	if err != nil {
		return 0, err
	}

	if len(existing) > 0 {
		id := recordID(existing[0])
		delta := deltaValues(existing[0], values)
		if len(delta) == 0 {
			return id, nil
		}
		if err := s.client.Write("product.product", id, delta); err != nil {
			return 0, err
		}
		return id, nil
	}

	values["type"] = "product"
	return s.client.Create("product.product", values)
}

// EnsureTransaction lands one invoice-shaped transaction as a draft move.
// Transactions already present (matched by external key) are left untouched:
// a posted move is immutable from this side.
func (s *UpsertService) EnsureTransaction(t *domain.CanonicalTransaction) (int, error) {
	if err := s.validate.Struct(t); err != nil {
		return 0, fmt.Errorf("transaction %s failed validation: %w", t.ExternalKey, err)
	}

	moveType, ok := moveTypeFor(t.Kind)
	if !ok {
		return 0, fmt.Errorf("transaction kind %s is not pushed", t.Kind)
	}

	existing, err := s.client.SearchRead("account.move",
		[]interface{}{[]interface{}{"ref", "=", t.ExternalKey}},
		[]string{"id"}, 1)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return recordID(existing[0]), nil
	}

	partnerID, err := s.ensurePartnerByName(t.PartnerName, moveType == "in_invoice")
	if err != nil {
		return 0, err
	}

	values := map[string]interface{}{
		"move_type":    moveType,
		"partner_id":   partnerID,
		"ref":          t.ExternalKey,
		"invoice_date": t.TxnDate,
	}
	if t.DueDate != "" {
		values["invoice_date_due"] = t.DueDate
	}
	if t.RefNumber != "" {
		values["payment_reference"] = t.RefNumber
	}
	if t.Memo != "" {
		values["narration"] = t.Memo
	}
	if id, ok := s.resolveJournal(t.JournalName, moveType); ok {
		values["journal_id"] = id
	}
	for field, value := range t.Extras {
		values[field] = value
	}

	var lines []interface{}
	for _, line := range t.Lines {
		lineValues := map[string]interface{}{
			"name":     lineLabel(line),
			"quantity": lineQuantity(line),
		}
		if line.Rate != 0 {
			lineValues["price_unit"] = line.Rate
		} else {
			lineValues["price_unit"] = line.Amount
		}
		if line.AccountName != "" {
			if id, ok := s.resolveAccount(line.AccountName); ok {
				lineValues["account_id"] = id
			} else {
				// Unresolvable account: land the line anyway and let the
				// journal's default account apply.
				log.Warn().Str("account", line.AccountName).Str("ref", t.ExternalKey).Msg("account not resolvable, using journal default")
			}
		}
		lines = append(lines, []interface{}{0, 0, lineValues})
	}
	if len(lines) > 0 {
		values["invoice_line_ids"] = lines
	}

	return s.client.Create("account.move", values)
}

func moveTypeFor(kind domain.EntityType) (string, bool) {
	switch kind {
	case domain.EntityInvoice:
		return "out_invoice", true
	case domain.EntityBill:
		return "in_invoice", true
	case domain.EntityCreditMemo:
		return "out_refund", true
	default:
		return "", false
	}
}

func lineLabel(line domain.CanonicalLine) string {
	if line.Description != "" {
		return line.Description
	}
	if line.Memo != "" {
		return line.Memo
	}
	if line.ItemName != "" {
		return line.ItemName
	}
	return "/"
}

func lineQuantity(line domain.CanonicalLine) float64 {
	if line.Quantity != 0 {
		return line.Quantity
	}
	return 1
}

// Deactivate archives the cloud copy of a record that disappeared from a
// completed desktop refresh. Archiving, not deleting: the record may carry
// history that must survive.
func (s *UpsertService) Deactivate(entityType domain.EntityType, rec *domain.Record) error {
	var model string
	var filter []interface{}

	switch entityType {
	case domain.EntityCustomer, domain.EntityVendor:
		model = "res.partner"
		filter = []interface{}{[]interface{}{"ref", "=", rec.ID}}
	case domain.EntityItemInventory:
		model = "product.product"
		filter = []interface{}{[]interface{}{"default_code", "=", rec.Name()}}
	default:
		return nil
	}

	existing, err := s.client.SearchRead(model, filter, []string{"id"}, 1)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	return s.client.Write(model, recordID(existing[0]), map[string]interface{}{"active": false})
}

func (s *UpsertService) ensurePartnerByName(name string, isSupplier bool) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("transaction has no partner name")
	}

	existing, err := s.searchByNameCandidates("res.partner", name, []string{"id"})
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return recordID(existing[0]), nil
	}

	log.Info().Str("partner", name).Msg("partner not found, creating from transaction")
	values := map[string]interface{}{"name": name}
	if isSupplier {
		values["supplier_rank"] = 1
	} else {
		values["customer_rank"] = 1
	}
	return s.client.Create("res.partner", values)
}

// searchByNameCandidates tries the name as given, then with "Last, First"
// flipped to "First Last" and back, because the two systems disagree on
// person-name ordering.
func (s *UpsertService) searchByNameCandidates(model, name string, fields []string) ([]map[string]interface{}, error) {
	for _, candidate := range nameCandidates(name) {
		records, err := s.client.SearchRead(model,
			[]interface{}{[]interface{}{"name", "=ilike", candidate}}, fields, 1)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	return nil, nil
}

func nameCandidates(name string) []string {
	candidates := []string{name}
	if last, first, found := strings.Cut(name, ","); found {
		candidates = append(candidates, strings.TrimSpace(first)+" "+strings.TrimSpace(last))
	} else if parts := strings.Fields(name); len(parts) == 2 {
		candidates = append(candidates, parts[1]+", "+parts[0])
	}
	return candidates
}

func (s *UpsertService) resolveCountry(name string) (int, bool) {
	return s.resolveRef("country:"+name, "res.country",
		[]interface{}{[]interface{}{"name", "=ilike", name}})
}

// resolveState narrows by country first, then retries without it because
// state names imported from the desktop often lack a country.
func (s *UpsertService) resolveState(name string, countryID int) (int, bool) {
	if countryID != 0 {
		key := fmt.Sprintf("state:%d:%s", countryID, name)
		if id, ok := s.resolveRef(key, "res.country.state", []interface{}{
			[]interface{}{"country_id", "=", countryID},
			nameOrCodeClause(name),
		}); ok {
			return id, true
		}
	}
	return s.resolveRef("state:"+name, "res.country.state",
		[]interface{}{nameOrCodeClause(name)})
}

func nameOrCodeClause(name string) []interface{} {
	if len(name) <= 3 {
		return []interface{}{"code", "=ilike", name}
	}
	return []interface{}{"name", "=ilike", name}
}

func (s *UpsertService) resolvePaymentTerm(name string) (int, bool) {
	return s.resolveRef("term:"+name, "account.payment.term",
		[]interface{}{[]interface{}{"name", "=ilike", name}})
}

// resolveAccount maps a ledger account through the operator crosswalk when an
// entry exists, else falls back to a name match.
func (s *UpsertService) resolveAccount(fullName string) (int, bool) {
	if code, ok := s.crosswalk.AccountCode(fullName); ok {
		if id, found := s.resolveRef("account-code:"+code, "account.account",
			[]interface{}{[]interface{}{"code", "=", code}}); found {
			return id, true
		}
		log.Warn().Str("account", fullName).Str("code", code).Msg("crosswalk code not present cloud-side, falling back to name match")
	}
	return s.resolveRef("account-name:"+fullName, "account.account",
		[]interface{}{[]interface{}{"name", "=ilike", fullName}})
}

func (s *UpsertService) resolveJournal(name, moveType string) (int, bool) {
	if name != "" {
		if id, ok := s.resolveRef("journal:"+name, "account.journal",
			[]interface{}{[]interface{}{"name", "=ilike", name}}); ok {
			return id, true
		}
		log.Warn().Str("journal", name).Msg("named journal not found, falling back to journal type")
	}
	journalType := "sale"
	if moveType == "in_invoice" {
		journalType = "purchase"
	}
	return s.resolveRef("journal-type:"+journalType, "account.journal",
		[]interface{}{[]interface{}{"type", "=", journalType}})
}

// resolveRef performs one cached reference lookup. Misses are not cached so a
// record created later cloud-side is picked up on the next page.
func (s *UpsertService) resolveRef(cacheKey, model string, filter []interface{}) (int, bool) {
	s.mu.Lock()
	if id, ok := s.refCache[cacheKey]; ok {
		s.mu.Unlock()
		return id, true
	}
	s.mu.Unlock()

	records, err := s.client.SearchRead(model, filter, []string{"id"}, 1)
	if err != nil {
		log.Error().Err(err).Str("model", model).Msg("reference lookup failed")
		return 0, false
	}
	if len(records) == 0 {
		return 0, false
	}

	id := recordID(records[0])
	s.mu.Lock()
	s.refCache[cacheKey] = id
	s.mu.Unlock()
	return id, true
}

func recordID(record map[string]interface{}) int {
	if v, ok := record["id"].(float64); ok {
		return int(v)
	}
	return 0
}

// deltaValues returns the subset of desired values that differ from what the
// cloud record currently holds, compared on the keys the fetch returned.
func deltaValues(existing map[string]interface{}, desired map[string]interface{}) map[string]interface{} {
	delta := make(map[string]interface{})
	for key, want := range desired {
		have, fetched := existing[key]
		if !fetched {
			continue
		}
		if !valueEqual(have, want) {
			delta[key] = want
		}
	}
	return delta
}

func valueEqual(have, want interface{}) bool {
	// The RPC layer returns false for empty char fields.
	if have == false && want == "" {
		return true
	}
	if hf, ok := have.(float64); ok {
		if wf, ok := want.(float64); ok {
			return hf == wf
		}
	}
	return fmt.Sprintf("%v", have) == fmt.Sprintf("%v", want)
}
