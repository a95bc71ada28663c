package soap

import (
	"encoding/xml"
	"fmt"
)

// The QuickBooks Web Connector speaks SOAP 1.1 against the Intuit service
// namespace. Only envelope framing lives here; the operation semantics belong
// to the orchestrator.

const (
	EnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	ServiceNS  = "http://developer.intuit.com/"
)

type RequestEnvelope struct {
	XMLName xml.Name    `xml:"Envelope"`
	Body    RequestBody `xml:"Body"`
}

type RequestBody struct {
	Authenticate       *AuthenticateCall       `xml:"authenticate"`
	SendRequestXML     *SendRequestXMLCall     `xml:"sendRequestXML"`
	ReceiveResponseXML *ReceiveResponseXMLCall `xml:"receiveResponseXML"`
	GetLastError       *GetLastErrorCall       `xml:"getLastError"`
	ConnectionError    *ConnectionErrorCall    `xml:"connectionError"`
	CloseConnection    *CloseConnectionCall    `xml:"closeConnection"`
	ServerVersion      *ServerVersionCall      `xml:"serverVersion"`
	ClientVersion      *ClientVersionCall      `xml:"clientVersion"`
}

type AuthenticateCall struct {
	UserName string `xml:"strUserName"`
	Password string `xml:"strPassword"`
}

type SendRequestXMLCall struct {
	Ticket          string `xml:"ticket"`
	HCPResponse     string `xml:"strHCPResponse"`
	CompanyFileName string `xml:"strCompanyFileName"`
	Country         string `xml:"qbXMLCountry"`
	MajorVers       string `xml:"qbXMLMajorVers"`
	MinorVers       string `xml:"qbXMLMinorVers"`
}

type ReceiveResponseXMLCall struct {
	Ticket   string `xml:"ticket"`
	Response string `xml:"response"`
	HResult  string `xml:"hresult"`
	Message  string `xml:"message"`
}

type GetLastErrorCall struct {
	Ticket string `xml:"ticket"`
}

type ConnectionErrorCall struct {
	Ticket  string `xml:"ticket"`
	HResult string `xml:"hresult"`
	Message string `xml:"message"`
}

type CloseConnectionCall struct {
	Ticket string `xml:"ticket"`
}

type ServerVersionCall struct{}

type ClientVersionCall struct {
	Version string `xml:"strVersion"`
}

// ParseRequest decodes one inbound SOAP envelope. Exactly one operation is
// expected per call; which one is set on the returned body tells the handler
// what to dispatch.
func ParseRequest(payload []byte) (*RequestBody, error) {
	var env RequestEnvelope
	if err := xml.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode SOAP envelope: %w", err)
	}
	return &env.Body, nil
}

type responseEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	EnvNS   string   `xml:"xmlns:soap,attr"`
	XSINS   string   `xml:"xmlns:xsi,attr"`
	XSDNS   string   `xml:"xmlns:xsd,attr"`
	Body    responseBody
}

// responseBody wraps the operation result. The inner value carries its own
// XMLName, which would otherwise override a tag-derived element name and
// swallow the Body element.
type responseBody struct {
	XMLName xml.Name `xml:"soap:Body"`
	Inner   any
}

type authenticateResponse struct {
	XMLName xml.Name `xml:"authenticateResponse"`
	NS      string   `xml:"xmlns,attr"`
	Result  struct {
		Strings []string `xml:"string"`
	} `xml:"authenticateResult"`
}

type opResponse struct {
	XMLName xml.Name
	NS      string `xml:"xmlns,attr"`
	Result  innerResult
}

type innerResult struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func marshalEnvelope(body any) ([]byte, error) {
	env := responseEnvelope{
		EnvNS: EnvelopeNS,
		XSINS: "http://www.w3.org/2001/XMLSchema-instance",
		XSDNS: "http://www.w3.org/2001/XMLSchema",
		Body:  responseBody{Inner: body},
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode SOAP response: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// AuthenticateResponse wraps the QBWC authenticate result pair: the ticket
// and either the company file path (empty means "use the open file") or an
// error sentinel such as "nvu" for invalid credentials.
func AuthenticateResponse(ticket, second string) ([]byte, error) {
	resp := authenticateResponse{NS: ServiceNS}
	resp.Result.Strings = []string{ticket, second}
	return marshalEnvelope(resp)
}

// OperationResponse wraps a single-string result for the named QBWC
// operation, e.g. sendRequestXML → sendRequestXMLResult.
func OperationResponse(operation, value string) ([]byte, error) {
	resp := opResponse{
		XMLName: xml.Name{Local: operation + "Response"},
		NS:      ServiceNS,
		Result: innerResult{
			XMLName: xml.Name{Local: operation + "Result"},
			Value:   value,
		},
	}
	return marshalEnvelope(resp)
}
