package service

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"qbsync-server/internal/domain"
	"qbsync-server/internal/qbxml"
	"qbsync-server/internal/registry"
	"qbsync-server/internal/repository"
	"qbsync-server/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const serverVersion = "1.0.0"

// OrchestratorService drives the connector's polling conversation: it issues
// tickets, hands out the next request for the session's task queue, and folds
// responses back through the reconciler. The connector is a dumb courier; all
// sequencing decisions live here.
type OrchestratorService struct {
	sessions   repository.SessionRepository
	registry   *registry.Registry
	builder    *qbxml.Builder
	reconciler *ReconcilerService
	feed       *websocket.Manager

	username string
	password string
	ttl      time.Duration
}

func NewOrchestratorService(
	sessions repository.SessionRepository,
	reg *registry.Registry,
	builder *qbxml.Builder,
	reconciler *ReconcilerService,
	feed *websocket.Manager,
	username, password string,
	ttl time.Duration,
) *OrchestratorService {
	return &OrchestratorService{
		sessions:   sessions,
		registry:   reg,
		builder:    builder,
		reconciler: reconciler,
		feed:       feed,
		username:   username,
		password:   password,
		ttl:        ttl,
	}
}

// Authenticate validates the connector's credentials and opens a session with
// a fresh task queue. The second return value follows the connector protocol:
// "nvu" rejects the login, "none" reports nothing to do, and an empty string
// tells the connector to use whatever company file is open.
func (s *OrchestratorService) Authenticate(username, password string) (string, string) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userOK || !passOK {
		log.Warn().Str("username", username).Msg("connector login rejected")
		return "", "nvu"
	}

	tasks := s.registry.TaskTemplate()
	if len(tasks) == 0 {
		return uuid.New().String(), "none"
	}

	now := time.Now()
	session := &domain.Session{
		Ticket:       uuid.New().String(),
		Tasks:        tasks,
		CreatedAt:    now,
		LastActivity: now,
	}

	if err := s.sessions.Put(session); err != nil {
		log.Error().Err(err).Msg("failed to persist new session")
		return "", "nvu"
	}

	queue := make([]string, 0, len(tasks))
	for _, t := range tasks {
		queue = append(queue, string(t.EntityType))
	}
	s.publish(websocket.TypeSessionStarted, &websocket.SessionStartedPayload{
		Ticket:    session.Ticket,
		TaskQueue: queue,
	})
	log.Info().Str("ticket", session.Ticket).Int("tasks", len(tasks)).Msg("session opened")

	return session.Ticket, ""
}

// GetNextRequest returns the next outbound payload for the session, or an
// empty string when the queue is exhausted. Queued mutations for the active
// task always go out before its next query, so local edits land before remote
// state is re-read.
func (s *OrchestratorService) GetNextRequest(ticket, companyFile, majorVers, minorVers string) (string, error) {
	session, err := s.lookup(ticket)
	if err != nil {
		return "", err
	}

	session.LastActivity = time.Now()
	if companyFile != "" {
		session.CompanyFile = companyFile
	}
	if majorVers != "" {
		session.QBXMLVersion = majorVers + "." + minorVers
	}

	for {
		task := session.ActiveTask()
		if task == nil {
			if err := s.sessions.Put(session); err != nil {
				return "", err
			}
			return "", nil
		}

		spec, ok := s.registry.Lookup(task.EntityType)
		if !ok {
			task.LastError = fmt.Sprintf("no spec registered for %s", task.EntityType)
			session.Advance()
			continue
		}

		// A finished query with nothing left to push must not be re-issued.
		if task.Done && !task.HasPendingMutations() {
			session.Advance()
			continue
		}

		if task.RequestID == 1 && task.IteratorID == "" {
			s.publish(websocket.TypeTaskStarted, &websocket.TaskStartedPayload{
				Ticket:     session.Ticket,
				EntityType: string(task.EntityType),
			})
		}

		var payload string
		var buildErr error
		if task.HasPendingMutations() && spec.SupportsMutation() {
			payload, buildErr = s.builder.BuildMutations(spec, task, session.QBXMLVersion)
		} else {
			payload, buildErr = s.builder.BuildQuery(spec, task, session.QBXMLVersion)
		}
		if buildErr != nil {
			log.Error().Err(buildErr).Str("entity_type", string(task.EntityType)).Msg("failed to build request, abandoning task")
			task.LastError = buildErr.Error()
			session.Advance()
			continue
		}

		task.RequestID++
		if err := s.sessions.Put(session); err != nil {
			return "", err
		}
		return payload, nil
	}
}

// SubmitResponse applies one response payload and returns the percent-done
// the connector should display: 50 while the current task has more to do, a
// queue-position percentage after each finished task, 100 when everything is
// done, and -1 on a connector-reported error.
func (s *OrchestratorService) SubmitResponse(ticket, response, hresult, message string) (int, error) {
	session, err := s.lookup(ticket)
	if err != nil {
		return -1, err
	}
	session.LastActivity = time.Now()

	if hresult != "" {
		session.LastError = fmt.Sprintf("connector error %s: %s", hresult, message)
		log.Error().Str("ticket", ticket).Str("hresult", hresult).Str("message", message).Msg("connector reported error")
		// Skip the poisoned task; replaying the same request next poll
		// would loop on the same error.
		session.Advance()
		if err := s.sessions.Put(session); err != nil {
			return -1, err
		}
		return -1, nil
	}

	task := session.ActiveTask()
	if task == nil {
		if err := s.sessions.Put(session); err != nil {
			return -1, err
		}
		return 100, nil
	}

	if strings.TrimSpace(response) == "" {
		session.Advance()
		if err := s.sessions.Put(session); err != nil {
			return -1, err
		}
		return session.Progress(), nil
	}

	page, procErr := s.reconciler.ProcessPage(task, response)
	if procErr != nil {
		task.LastError = procErr.Error()
		session.LastError = procErr.Error()
		log.Error().Err(procErr).Str("entity_type", string(task.EntityType)).Msg("task failed, moving to next")
		s.publish(websocket.TypeSyncError, &websocket.SyncErrorPayload{
			Ticket:     session.Ticket,
			EntityType: string(task.EntityType),
			Error:      procErr.Error(),
		})
		session.Advance()
		if err := s.sessions.Put(session); err != nil {
			return -1, err
		}
		return session.Progress(), nil
	}

	s.publish(websocket.TypePageProcessed, &websocket.PageProcessedPayload{
		Ticket:     session.Ticket,
		EntityType: string(task.EntityType),
		Records:    len(page.Records),
		Remaining:  page.Remaining,
		Progress:   session.Progress(),
	})

	// A partial query page keeps the task active; the connector keeps
	// polling the same cursor.
	if page.IsQuery && page.HasMore() {
		if err := s.sessions.Put(session); err != nil {
			return -1, err
		}
		return 50, nil
	}
	if page.IsQuery {
		task.Done = true
	}

	// Mutations queued from the final page (including adds surfaced by the
	// refresh commit) go out before the task retires; a mid-refresh
	// acknowledgement hands control back to the query cursor instead.
	if task.HasPendingMutations() || !task.Done {
		if err := s.sessions.Put(session); err != nil {
			return -1, err
		}
		return 50, nil
	}

	session.Advance()
	if err := s.sessions.Put(session); err != nil {
		return -1, err
	}

	s.publish(websocket.TypeTaskCompleted, &websocket.TaskCompletedPayload{
		Ticket:     session.Ticket,
		EntityType: string(task.EntityType),
		Progress:   session.Progress(),
	})

	progress := session.Progress()
	if progress >= 100 {
		s.publish(websocket.TypeSessionCompleted, &websocket.SessionCompletedPayload{Ticket: session.Ticket})
		log.Info().Str("ticket", session.Ticket).Msg("session completed")
	}
	return progress, nil
}

// LastError reports the stored error for the connector's getLastError call.
// An unknown or expired ticket gets a fixed message rather than an empty
// string, so the connector log says why the run stopped.
func (s *OrchestratorService) LastError(ticket string) string {
	session, err := s.lookup(ticket)
	if err != nil {
		return "Ticket is invalid or expired"
	}
	return session.LastError
}

// ConnectionError records the failure and tells the connector not to retry;
// the next scheduled run starts a fresh session anyway.
func (s *OrchestratorService) ConnectionError(ticket, hresult, message string) string {
	if session, err := s.lookup(ticket); err == nil {
		session.LastError = fmt.Sprintf("connection error %s: %s", hresult, message)
		if err := s.sessions.Put(session); err != nil {
			log.Error().Err(err).Str("ticket", ticket).Msg("failed to record connection error")
		}
	}
	return "done"
}

// CloseConnection ends the session. Closing an already-closed or unknown
// ticket is not an error.
func (s *OrchestratorService) CloseConnection(ticket string) string {
	if err := s.sessions.Delete(ticket); err == nil {
		log.Info().Str("ticket", ticket).Msg("session closed")
	}
	return "OK"
}

func (s *OrchestratorService) ServerVersion() string {
	return serverVersion
}

// ClientVersion accepts every connector version; returning an empty string
// means no warning and no upgrade prompt.
func (s *OrchestratorService) ClientVersion(version string) string {
	log.Debug().Str("version", version).Msg("connector version reported")
	return ""
}

// Sessions lists persisted sessions for the admin surface.
func (s *OrchestratorService) Sessions() ([]*domain.Session, error) {
	return s.sessions.List()
}

// Session returns one session by ticket, including expiry handling.
func (s *OrchestratorService) Session(ticket string) (*domain.Session, error) {
	return s.lookup(ticket)
}

// lookup resolves a ticket, treating an expired session the same as an
// unknown one after cleaning it up.
func (s *OrchestratorService) lookup(ticket string) (*domain.Session, error) {
	session, err := s.sessions.Get(ticket)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicket, ticket)
	}
	if session.Expired(s.ttl, time.Now()) {
		if err := s.sessions.Delete(ticket); err != nil {
			log.Error().Err(err).Str("ticket", ticket).Msg("failed to delete expired session")
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionExpired, ticket)
	}
	return session, nil
}

func (s *OrchestratorService) publish(msgType websocket.MessageType, payload interface{}) {
	if s.feed == nil {
		return
	}
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return
	}
	if err := s.feed.Broadcast(msg); err != nil {
		log.Error().Err(err).Msg("failed to broadcast feed event")
	}
}
