package qbxml

import (
	"fmt"
	"strconv"

	"qbsync-server/internal/domain"
	"qbsync-server/internal/registry"

	"github.com/beevik/etree"
)

// Page is the parsed form of one inbound response payload for a task: the
// remote status, the records returned, acknowledgements for any mutations,
// and the pagination cursor pair.
type Page struct {
	Status        int
	StatusMessage string
	Records       []*domain.Record
	AddResults    []*domain.Record
	ModResults    []*domain.Record
	ModFailures   []string
	IteratorID    string
	Remaining     int
	IsQuery       bool
}

// HasMore reports whether the remote side holds further pages for this query.
func (p *Page) HasMore() bool {
	return p.IteratorID != "" && p.Remaining > 0
}

// Parse extracts one response payload for the given entity type. A payload
// that is not well-formed XML, or that contains no recognizable response
// block for the type, is an error; the caller treats it as a recoverable
// task failure.
func Parse(spec registry.Spec, payload string) (*Page, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(payload); err != nil {
		return nil, fmt.Errorf("malformed response payload: %w", err)
	}

	page := &Page{}
	found := false

	if rs := doc.FindElement("//" + spec.QueryRs); rs != nil {
		found = true
		page.IsQuery = true
		page.Status = statusCode(rs)
		page.StatusMessage = rs.SelectAttrValue("statusMessage", "")
		page.IteratorID = rs.SelectAttrValue("iteratorID", "")
		page.Remaining, _ = strconv.Atoi(rs.SelectAttrValue("iteratorRemainingCount", "0"))
		if page.Status == 0 {
			for _, ret := range rs.FindElements(".//" + spec.Ret) {
				page.Records = append(page.Records, extractRecord(spec, ret))
			}
		}
	}

	for _, rs := range doc.FindElements("//" + spec.AddRs) {
		found = true
		if statusCode(rs) == 0 {
			if ret := rs.FindElement(spec.Ret); ret != nil {
				page.AddResults = append(page.AddResults, extractRecord(spec, ret))
			}
		} else {
			page.ModFailures = append(page.ModFailures,
				fmt.Sprintf("add failed: %s", rs.SelectAttrValue("statusMessage", "unknown error")))
		}
	}

	for _, rs := range doc.FindElements("//" + spec.ModRs) {
		found = true
		if statusCode(rs) == 0 {
			if ret := rs.FindElement(spec.Ret); ret != nil {
				page.ModResults = append(page.ModResults, extractRecord(spec, ret))
			}
		} else {
			page.ModFailures = append(page.ModFailures,
				fmt.Sprintf("modify failed: %s", rs.SelectAttrValue("statusMessage", "unknown error")))
		}
	}

	if !found {
		return nil, fmt.Errorf("no %s, %s or %s block in response", spec.QueryRs, spec.AddRs, spec.ModRs)
	}
	return page, nil
}

func statusCode(el *etree.Element) int {
	code, err := strconv.Atoi(el.SelectAttrValue("statusCode", "0"))
	if err != nil {
		return -1
	}
	return code
}

func childText(el *etree.Element, tag string) string {
	if child := el.FindElement(tag); child != nil {
		return child.Text()
	}
	return ""
}

// extractRecord flattens one Ret element into a Record: scalar fields by tag,
// references as "<Ref>.FullName"/"<Ref>.ListID", lines as ordered field maps.
func extractRecord(spec registry.Spec, ret *etree.Element) *domain.Record {
	rec := domain.NewRecord()
	rec.ID = childText(ret, spec.IDField)
	rec.EditSequence = childText(ret, "EditSequence")
	rec.TimeModified = childText(ret, "TimeModified")

	for _, field := range spec.Fields {
		if v := childText(ret, field); v != "" {
			rec.Fields[field] = v
		}
	}
	for _, ref := range spec.RefFields {
		if v := childText(ret, ref+"/FullName"); v != "" {
			rec.Fields[ref+".FullName"] = v
		}
		if v := childText(ret, ref+"/ListID"); v != "" {
			rec.Fields[ref+".ListID"] = v
		}
	}

	for _, lineSpec := range spec.Lines {
		for _, lineEl := range ret.FindElements(".//" + lineSpec.Tag) {
			line := map[string]string{"_tag": lineSpec.Tag}
			for _, field := range lineSpec.Fields {
				if v := childText(lineEl, field); v != "" {
					line[field] = v
				}
			}
			for _, ref := range lineSpec.RefFields {
				if v := childText(lineEl, ref+"/FullName"); v != "" {
					line[ref+".FullName"] = v
				}
			}
			rec.Lines = append(rec.Lines, line)
		}
	}
	return rec
}
