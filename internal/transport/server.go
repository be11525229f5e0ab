// Package transport implements the coordinator side of §6's external
// interfaces: a point-to-point request/response API (PublishRepo,
// CloneRepo, SyncRepo, PublishOperations) served over plain net/http with
// CBOR-encoded bodies, and a one-to-many room broadcast served as a
// chunked byte stream, the way the teacher's internal/webui server serves
// its API routes off a single http.ServeMux with per-endpoint handlers.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/internal/wire"
	"github.com/replistore/crdb/pkg/rerr"
	"github.com/replistore/crdb/pkg/rlog"
	"github.com/replistore/crdb/pkg/rtelemetry"
)

// CoordinatorServer serves §6's transport contract for every repo the
// process's Registry knows about.
type CoordinatorServer struct {
	addr     string
	registry *Registry
	hub      *RoomHub
	logger   rlog.Logger
	server   *http.Server
}

// NewCoordinatorServer returns a server listening on addr, dispatching
// requests through registry and broadcasting room messages through hub.
func NewCoordinatorServer(addr string, registry *Registry, hub *RoomHub, logger rlog.Logger) *CoordinatorServer {
	if logger == nil {
		logger = rlog.NullLogger{}
	}
	return &CoordinatorServer{addr: addr, registry: registry, hub: hub, logger: logger}
}

// buildMux builds the route table: /request for the four point-to-point
// RPCs, /rooms/ for the broadcast stream. Split out from Start so tests can
// drive it through httptest without a real listener.
func (s *CoordinatorServer) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/request", s.handleRequest)
	mux.HandleFunc("/rooms/", s.handleRoom)
	return mux
}

// Start builds the route table and begins serving. Blocks until the
// server stops (ListenAndServe's contract); callers typically run it in a
// goroutine and call Shutdown from the main one, matching the teacher's
// cmd/analyzer service lifecycle.
func (s *CoordinatorServer) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.buildMux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the room stream is long-lived
	}

	s.logger.Info("transport: listening on %s", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *CoordinatorServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleRequest dispatches one of the four point-to-point request variants
// by its RequestKind, matching §9's "fixed match over the variant" design
// note rather than runtime type reflection.
func (s *CoordinatorServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx, span := rtelemetry.StartSpan(r.Context(), "transport", "handle_request")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, rerr.IoError("transport: read request body", err))
		return
	}

	req, err := wire.DecodeRequest(body)
	if err != nil {
		s.writeError(w, rerr.InvalidOperation("transport: malformed request envelope"))
		return
	}

	switch req.Kind {
	case ops.RequestPublishRepo:
		s.handlePublishRepo(w, req.PublishRepo)
	case ops.RequestCloneRepo:
		s.handleCloneRepo(w, req.CloneRepo)
	case ops.RequestSyncRepo:
		s.handleSyncRepo(ctx, w, req.SyncRepo)
	case ops.RequestPublishOperations:
		s.handlePublishOperations(ctx, w, req.PublishOperations)
	default:
		s.writeError(w, rerr.InvalidOperation(fmt.Sprintf("transport: unknown request kind %d", req.Kind)))
	}
}

func (s *CoordinatorServer) handlePublishRepo(w http.ResponseWriter, req *ops.PublishRepoRequest) {
	if req == nil {
		s.writeError(w, rerr.InvalidOperation("transport: publish_repo request missing payload"))
		return
	}

	id, creds, err := s.registry.PublishRepo(req.Name)
	if err != nil {
		s.writeError(w, rerr.NameTaken(err.Error()))
		return
	}
	_ = id // the room name in creds already encodes it; PublishRepoResponse only carries credentials per §6

	data, err := wire.EncodePublishRepoResponse(ops.PublishRepoResponse{Credentials: creds})
	if err != nil {
		s.writeError(w, rerr.IoError("transport: encode publish_repo response", err))
		return
	}
	s.writeOK(w, data)
}

func (s *CoordinatorServer) handleCloneRepo(w http.ResponseWriter, req *ops.CloneRepoRequest) {
	if req == nil {
		s.writeError(w, rerr.InvalidOperation("transport: clone_repo request missing payload"))
		return
	}

	id, replicaId, creds, err := s.registry.CloneRepo(req.Name)
	if err != nil {
		s.writeError(w, rerr.NotFound(err.Error()))
		return
	}

	data, err := wire.EncodeCloneRepoResponse(ops.CloneRepoResponse{RepoId: id, ReplicaId: replicaId, Credentials: creds})
	if err != nil {
		s.writeError(w, rerr.IoError("transport: encode clone_repo response", err))
		return
	}
	s.writeOK(w, data)
}

func (s *CoordinatorServer) handleSyncRepo(ctx context.Context, w http.ResponseWriter, req *ops.SyncRepoRequest) {
	_ = ctx
	if req == nil {
		s.writeError(w, rerr.InvalidOperation("transport: sync_repo request missing payload"))
		return
	}

	r, ok := s.registry.Lookup(req.RepoId)
	if !ok {
		s.writeError(w, rerr.NotFound(fmt.Sprintf("transport: repo %s not found", req.RepoId)))
		return
	}

	operations := r.OperationsSince(req.MaxOperationIds)
	resp := ops.SyncRepoResponse{Operations: operations, MaxOperationIds: r.MaxOperationIds()}

	data, err := wire.EncodeSyncRepoResponse(resp)
	if err != nil {
		s.writeError(w, rerr.IoError("transport: encode sync_repo response", err))
		return
	}
	s.writeOK(w, data)
}

func (s *CoordinatorServer) handlePublishOperations(ctx context.Context, w http.ResponseWriter, req *ops.PublishOperationsRequest) {
	_ = ctx
	if req == nil {
		s.writeError(w, rerr.InvalidOperation("transport: publish_operations request missing payload"))
		return
	}

	r, ok := s.registry.Lookup(req.RepoId)
	if !ok {
		s.writeError(w, rerr.NotFound(fmt.Sprintf("transport: repo %s not found", req.RepoId)))
		return
	}

	for _, err := range r.ApplyOperations(req.Operations) {
		s.logger.Warn("transport: publish_operations dropped an operation: %v", err)
	}

	// Also fan the durably-published batch out to the room, covering
	// replicas that rely solely on PublishOperations (e.g. not yet
	// connected to the broadcast stream) per §6's dedup-by-membership note.
	for _, op := range req.Operations {
		if data, err := encodeMessage(op); err == nil {
			s.hub.Broadcast(req.RepoId, data)
		}
	}

	s.writeOK(w, nil)
}

// handleRoom serves the one-to-many broadcast half of §6 as a stream of
// length-prefixed CBOR MessageEnvelope frames, authorised by the token
// issued alongside the room's credentials.
func (s *CoordinatorServer) handleRoom(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len("/rooms/"):]
	token := r.URL.Query().Get("token")

	repoId, ok := s.registry.resolveRoomName(ops.RoomName(name))
	if !ok || !s.registry.authorize(repoId, ops.RoomToken(token)) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, leave := s.hub.Join(repoId)
	defer leave()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if err := writeFrame(w, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeFrame writes a 4-byte big-endian length prefix followed by data,
// the framing a room-stream client needs to split the byte stream back
// into individual MessageEnvelopes.
func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame is the client-side counterpart of writeFrame.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func encodeMessage(op ops.Operation) ([]byte, error) {
	return wire.EncodeMessage(ops.MessageEnvelope{Kind: ops.MessageOperation, Operation: op})
}

func (s *CoordinatorServer) writeOK(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	if len(data) > 0 {
		w.Write(data)
	}
}

func (s *CoordinatorServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch rerr.Code(err) {
	case rerr.CodeNotFound:
		status = http.StatusNotFound
	case rerr.CodeNameTaken:
		status = http.StatusConflict
	case rerr.CodeInvalidOperation:
		status = http.StatusBadRequest
	case rerr.CodeIoError:
		status = http.StatusBadGateway
	}

	data, encErr := wire.EncodeError(wire.ErrorResponse{Code: rerr.Code(err), Message: err.Error()})
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(status)
	if encErr == nil {
		w.Write(data)
	}
}
