package handler

import (
	"io"
	"net/http"
	"strconv"

	"qbsync-server/internal/service"
	"qbsync-server/internal/soap"

	"github.com/rs/zerolog/log"
)

// QBWCHandler is the single SOAP endpoint the desktop connector polls. Every
// call arrives as a POST with one operation in the envelope body; protocol
// errors are answered in-band with the sentinel values the connector expects,
// never with HTTP error codes, because the connector treats non-200 as a
// connection failure.
type QBWCHandler struct {
	orchestrator *service.OrchestratorService
}

func NewQBWCHandler(orchestrator *service.OrchestratorService) *QBWCHandler {
	return &QBWCHandler{orchestrator: orchestrator}
}

func (h *QBWCHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	body, err := soap.ParseRequest(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to parse SOAP request")
		http.Error(w, "malformed SOAP envelope", http.StatusBadRequest)
		return
	}

	out, err := h.dispatch(body)
	if err != nil {
		log.Error().Err(err).Msg("failed to build SOAP response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if out == nil {
		http.Error(w, "no recognized operation in envelope", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Write(out)
}

func (h *QBWCHandler) dispatch(body *soap.RequestBody) ([]byte, error) {
	switch {
	case body.Authenticate != nil:
		ticket, second := h.orchestrator.Authenticate(body.Authenticate.UserName, body.Authenticate.Password)
		return soap.AuthenticateResponse(ticket, second)

	case body.SendRequestXML != nil:
		call := body.SendRequestXML
		request, err := h.orchestrator.GetNextRequest(call.Ticket, call.CompanyFileName, call.MajorVers, call.MinorVers)
		if err != nil {
			// An unknown or expired ticket gets an empty request; the
			// connector follows up with getLastError.
			log.Warn().Err(err).Msg("sendRequestXML on dead ticket")
			request = ""
		}
		return soap.OperationResponse("sendRequestXML", request)

	case body.ReceiveResponseXML != nil:
		call := body.ReceiveResponseXML
		progress, err := h.orchestrator.SubmitResponse(call.Ticket, call.Response, call.HResult, call.Message)
		if err != nil {
			log.Warn().Err(err).Msg("receiveResponseXML on dead ticket")
			progress = -1
		}
		return soap.OperationResponse("receiveResponseXML", strconv.Itoa(progress))

	case body.GetLastError != nil:
		return soap.OperationResponse("getLastError", h.orchestrator.LastError(body.GetLastError.Ticket))

	case body.ConnectionError != nil:
		call := body.ConnectionError
		return soap.OperationResponse("connectionError", h.orchestrator.ConnectionError(call.Ticket, call.HResult, call.Message))

	case body.CloseConnection != nil:
		return soap.OperationResponse("closeConnection", h.orchestrator.CloseConnection(body.CloseConnection.Ticket))

	case body.ServerVersion != nil:
		return soap.OperationResponse("serverVersion", h.orchestrator.ServerVersion())

	case body.ClientVersion != nil:
		return soap.OperationResponse("clientVersion", h.orchestrator.ClientVersion(body.ClientVersion.Version))

	default:
		return nil, nil
	}
}
