package qbxml

import (
	"fmt"
	"strconv"

	"qbsync-server/internal/domain"
	"qbsync-server/internal/registry"

	"github.com/beevik/etree"
)

const defaultQBXMLVersion = "13.0"

// Builder produces outbound qbXML payloads as element trees, so output is
// well-formed by construction. Every payload is still re-parsed before it is
// returned; a build that fails that check surfaces as a construction error
// rather than being handed to the connector.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

func newDocument(qbxmlVersion string) (*etree.Document, *etree.Element) {
	if qbxmlVersion == "" {
		qbxmlVersion = defaultQBXMLVersion
	}
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	doc.CreateProcInst("qbxml", fmt.Sprintf("version=%q", qbxmlVersion))
	root := doc.CreateElement("QBXML")
	msgs := root.CreateElement("QBXMLMsgsRq")
	msgs.CreateAttr("onError", "stopOnError")
	return doc, msgs
}

func (b *Builder) serialize(doc *etree.Document) (string, error) {
	doc.Indent(2)
	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize request: %w", err)
	}
	check := etree.NewDocument()
	if err := check.ReadFromString(out); err != nil {
		return "", fmt.Errorf("built request failed well-formedness check: %w", err)
	}
	return out, nil
}

// BuildQuery emits the next paginated query request for the task. The first
// call requests an iterator start with the task's filters; continuation calls
// pass the stored iterator cursor and only the page size.
func (b *Builder) BuildQuery(spec registry.Spec, task *domain.Task, qbxmlVersion string) (string, error) {
	doc, msgs := newDocument(qbxmlVersion)

	rq := msgs.CreateElement(spec.QueryRq)
	rq.CreateAttr("requestID", strconv.Itoa(task.RequestID))

	if task.IteratorID != "" {
		rq.CreateAttr("iterator", "Continue")
		rq.CreateAttr("iteratorID", task.IteratorID)
		rq.CreateElement("MaxReturned").SetText(strconv.Itoa(spec.MaxReturned))
		return b.serialize(doc)
	}

	rq.CreateAttr("iterator", "Start")
	rq.CreateElement("MaxReturned").SetText(strconv.Itoa(spec.MaxReturned))

	if task.Params.FromModifiedDate != "" {
		filter := rq.CreateElement("ModifiedDateRangeFilter")
		filter.CreateElement("FromModifiedDate").SetText(task.Params.FromModifiedDate)
		if task.Params.ToModifiedDate != "" {
			filter.CreateElement("ToModifiedDate").SetText(task.Params.ToModifiedDate)
		}
	}
	if task.Params.NameFilter != "" {
		filter := rq.CreateElement("NameFilter")
		filter.CreateElement("MatchCriterion").SetText("StartsWith")
		filter.CreateElement("Name").SetText(task.Params.NameFilter)
	}
	if task.Params.IncludeLineItems {
		rq.CreateElement("IncludeLineItems").SetText("true")
	}

	return b.serialize(doc)
}

// BuildMutations emits the queued add and modify requests for the task as one
// message set. Modifies always carry the identifier and concurrency token;
// callers must not queue a mutation without an EditSequence.
func (b *Builder) BuildMutations(spec registry.Spec, task *domain.Task, qbxmlVersion string) (string, error) {
	if !spec.SupportsMutation() {
		return "", fmt.Errorf("entity type %s does not support mutations", spec.Type)
	}
	if !task.HasPendingMutations() {
		return "", fmt.Errorf("entity type %s: no pending mutations to build", spec.Type)
	}

	doc, msgs := newDocument(qbxmlVersion)

	for _, rec := range task.PendingAdds {
		if rec.Name() == "" {
			return "", fmt.Errorf("entity type %s: add request requires a name", spec.Type)
		}
		rq := msgs.CreateElement(spec.AddRq)
		rq.CreateAttr("requestID", strconv.Itoa(task.RequestID))
		add := rq.CreateElement(spec.Add)
		writeRecordFields(add, spec, rec)
	}

	for _, mod := range task.PendingMods {
		if mod.ID == "" || mod.EditSequence == "" {
			return "", fmt.Errorf("entity type %s: modify request requires identifier and edit sequence", spec.Type)
		}
		rq := msgs.CreateElement(spec.ModRq)
		rq.CreateAttr("requestID", strconv.Itoa(task.RequestID))
		m := rq.CreateElement(spec.Mod)
		m.CreateElement(spec.IDField).SetText(mod.ID)
		m.CreateElement("EditSequence").SetText(mod.EditSequence)
		writeChangeSet(m, spec, mod.Changes)
	}

	return b.serialize(doc)
}

func writeRecordFields(parent *etree.Element, spec registry.Spec, rec *domain.Record) {
	parent.CreateElement("Name").SetText(rec.Name())
	for _, field := range spec.Fields {
		if field == "Name" || field == "FullName" {
			continue
		}
		if v := rec.Fields[field]; v != "" {
			parent.CreateElement(field).SetText(v)
		}
	}
	for _, ref := range spec.RefFields {
		if v := rec.Fields[ref+".FullName"]; v != "" {
			el := parent.CreateElement(ref)
			el.CreateElement("FullName").SetText(v)
		}
	}
}

func writeChangeSet(parent *etree.Element, spec registry.Spec, changes domain.ChangeSet) {
	for _, field := range spec.Fields {
		if v, ok := changes[field]; ok {
			parent.CreateElement(field).SetText(v)
		}
	}
	for _, ref := range spec.RefFields {
		if v, ok := changes[ref+".FullName"]; ok {
			el := parent.CreateElement(ref)
			el.CreateElement("FullName").SetText(v)
		}
	}
}
