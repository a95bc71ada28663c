package qbxml

import (
	"strings"
	"testing"
)

const itemPagePayload = `<?xml version="1.0" ?>
<QBXML>
 <QBXMLMsgsRs>
  <ItemInventoryQueryRs statusCode="0" statusSeverity="Info" statusMessage="Status OK" iteratorRemainingCount="150" iteratorID="{abc-123}">
   <ItemInventoryRet>
    <ListID>8000-1</ListID>
    <EditSequence>1700000001</EditSequence>
    <TimeModified>2024-03-01T10:00:00-05:00</TimeModified>
    <Name>Widget</Name>
    <FullName>Widget</FullName>
    <SalesPrice>19.99</SalesPrice>
    <IncomeAccountRef>
     <ListID>4000-1</ListID>
     <FullName>Sales</FullName>
    </IncomeAccountRef>
   </ItemInventoryRet>
   <ItemInventoryRet>
    <ListID>8000-2</ListID>
    <EditSequence>1700000002</EditSequence>
    <Name>Gadget</Name>
   </ItemInventoryRet>
  </ItemInventoryQueryRs>
 </QBXMLMsgsRs>
</QBXML>`

const invoicePagePayload = `<?xml version="1.0" ?>
<QBXML>
 <QBXMLMsgsRs>
  <InvoiceQueryRs statusCode="0" statusSeverity="Info">
   <InvoiceRet>
    <TxnID>TXN-1</TxnID>
    <RefNumber>1001</RefNumber>
    <CustomerRef>
     <FullName>Acme Corp</FullName>
    </CustomerRef>
    <InvoiceLineRet>
     <Desc>Widgets</Desc>
     <Quantity>3</Quantity>
     <Rate>19.99</Rate>
     <Amount>59.97</Amount>
     <ItemRef>
      <FullName>Widget</FullName>
     </ItemRef>
    </InvoiceLineRet>
    <InvoiceLineRet>
     <Desc>Shipping</Desc>
     <Amount>10.00</Amount>
    </InvoiceLineRet>
   </InvoiceRet>
  </InvoiceQueryRs>
 </QBXMLMsgsRs>
</QBXML>`

const mutationPayload = `<?xml version="1.0" ?>
<QBXML>
 <QBXMLMsgsRs>
  <ItemInventoryAddRs statusCode="0" statusSeverity="Info">
   <ItemInventoryRet>
    <ListID>8000-9</ListID>
    <EditSequence>1700000009</EditSequence>
    <Name>Sprocket</Name>
   </ItemInventoryRet>
  </ItemInventoryAddRs>
  <ItemInventoryModRs statusCode="3200" statusSeverity="Error" statusMessage="The provided edit sequence is out-of-date."/>
 </QBXMLMsgsRs>
</QBXML>`

func TestParseQueryPage(t *testing.T) {
	spec := itemSpec(t)

	page, err := Parse(spec, itemPagePayload)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !page.IsQuery {
		t.Error("page should be a query page")
	}
	if page.Status != 0 {
		t.Errorf("Status = %d, want 0", page.Status)
	}
	if page.IteratorID != "{abc-123}" {
		t.Errorf("IteratorID = %q", page.IteratorID)
	}
	if page.Remaining != 150 {
		t.Errorf("Remaining = %d, want 150", page.Remaining)
	}
	if !page.HasMore() {
		t.Error("HasMore() = false with a live iterator")
	}
	if len(page.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(page.Records))
	}

	rec := page.Records[0]
	if rec.ID != "8000-1" {
		t.Errorf("ID = %s", rec.ID)
	}
	if rec.EditSequence != "1700000001" {
		t.Errorf("EditSequence = %s", rec.EditSequence)
	}
	if rec.Fields["SalesPrice"] != "19.99" {
		t.Errorf("SalesPrice = %s", rec.Fields["SalesPrice"])
	}
	if rec.Fields["IncomeAccountRef.FullName"] != "Sales" {
		t.Errorf("IncomeAccountRef.FullName = %s", rec.Fields["IncomeAccountRef.FullName"])
	}
	if rec.Fields["IncomeAccountRef.ListID"] != "4000-1" {
		t.Errorf("IncomeAccountRef.ListID = %s", rec.Fields["IncomeAccountRef.ListID"])
	}
}

func TestParseFinalPageHasNoIterator(t *testing.T) {
	spec := itemSpec(t)
	payload := strings.Replace(itemPagePayload,
		` iteratorRemainingCount="150" iteratorID="{abc-123}"`, "", 1)

	page, err := Parse(spec, payload)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if page.HasMore() {
		t.Error("HasMore() = true on final page")
	}
}

func TestParseTransactionLines(t *testing.T) {
	spec := invoiceSpec(t)

	page, err := Parse(spec, invoicePagePayload)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(page.Records))
	}

	rec := page.Records[0]
	if rec.Fields["CustomerRef.FullName"] != "Acme Corp" {
		t.Errorf("CustomerRef.FullName = %s", rec.Fields["CustomerRef.FullName"])
	}
	if len(rec.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(rec.Lines))
	}
	if rec.Lines[0]["ItemRef.FullName"] != "Widget" {
		t.Errorf("line ItemRef = %s", rec.Lines[0]["ItemRef.FullName"])
	}
	if rec.Lines[1]["Amount"] != "10.00" {
		t.Errorf("line Amount = %s", rec.Lines[1]["Amount"])
	}
}

func TestParseMutationAcknowledgements(t *testing.T) {
	spec := itemSpec(t)

	page, err := Parse(spec, mutationPayload)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if page.IsQuery {
		t.Error("mutation page flagged as query")
	}
	if len(page.AddResults) != 1 {
		t.Fatalf("got %d add results, want 1", len(page.AddResults))
	}
	if page.AddResults[0].ID != "8000-9" {
		t.Errorf("add result ID = %s", page.AddResults[0].ID)
	}
	if len(page.ModFailures) != 1 {
		t.Fatalf("got %d mod failures, want 1", len(page.ModFailures))
	}
	if !strings.Contains(page.ModFailures[0], "out-of-date") {
		t.Errorf("ModFailures[0] = %q", page.ModFailures[0])
	}
}

func TestParseErrors(t *testing.T) {
	spec := itemSpec(t)

	tests := []struct {
		name    string
		payload string
	}{
		{name: "malformed xml", payload: "<QBXML><unclosed"},
		{name: "empty payload", payload: ""},
		{name: "no recognizable block", payload: "<QBXML><QBXMLMsgsRs><CustomerQueryRs statusCode=\"0\"/></QBXMLMsgsRs></QBXML>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(spec, tt.payload); err == nil {
				t.Error("Parse() expected error but got none")
			}
		})
	}
}

func TestParseNonZeroStatusDropsRecords(t *testing.T) {
	spec := itemSpec(t)
	payload := strings.Replace(itemPagePayload, `statusCode="0"`, `statusCode="500"`, 1)

	page, err := Parse(spec, payload)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if page.Status != 500 {
		t.Errorf("Status = %d, want 500", page.Status)
	}
	if len(page.Records) != 0 {
		t.Errorf("got %d records on error page, want 0", len(page.Records))
	}
}
