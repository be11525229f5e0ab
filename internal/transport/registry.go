package transport

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/internal/repo"
	"github.com/replistore/crdb/pkg/rlog"
)

// newRepoId mints a fresh 128-bit repository id from a random UUID,
// matching SPEC_FULL's "UUID in production" allocation policy; tests use
// ids.RepoIdFromParts directly for reproducibility instead of going
// through the registry.
func newRepoId() ids.RepoId {
	u := uuid.New()
	hi := binary.BigEndian.Uint64(u[0:8])
	lo := binary.BigEndian.Uint64(u[8:16])
	return ids.RepoIdFromParts(hi, lo)
}

// newRoomToken mints an opaque bearer token a replica must present to join
// a repo's broadcast room.
func newRoomToken() ops.RoomToken {
	return ops.RoomToken(uuid.New().String())
}

// PersistenceTracker is the subset of internal/persistence.Owner the
// registry needs: registering a freshly published or freshly loaded Repo so
// the background drain can find it, and loading a previously persisted one
// back when Lookup (SyncRepo, PublishOperations) misses the in-memory map.
type PersistenceTracker interface {
	Track(id ids.RepoId, r *repo.Repo)
	Load(id ids.RepoId) (*repo.Repo, bool)
}

// entry is everything the coordinator keeps about one published repo: its
// live log and the credentials that authorise joining its room.
type entry struct {
	repo        *repo.Repo
	name        string
	credentials ops.RoomCredentials
	nextReplica ids.ReplicaId
}

// Registry holds every repo a coordinator process currently serves,
// indexed both by id and by the unique name it was published under, plus
// the room-broadcast and persistence hooks every newly tracked Repo is
// wired to.
type Registry struct {
	mu      sync.Mutex
	repos   map[ids.RepoId]*entry
	names   map[string]ids.RepoId
	hub     *RoomHub
	persist PersistenceTracker
	logger  rlog.Logger
}

// NewRegistry returns an empty registry broadcasting through hub and
// tracking dirty repos through persist.
func NewRegistry(hub *RoomHub, persist PersistenceTracker, logger rlog.Logger) *Registry {
	if logger == nil {
		logger = rlog.NullLogger{}
	}
	return &Registry{
		repos:   map[ids.RepoId]*entry{},
		names:   map[string]ids.RepoId{},
		hub:     hub,
		persist: persist,
		logger:  logger,
	}
}

// PublishRepo creates a new repository, binding it to name. The creator is
// always replica 0 (§5).
func (reg *Registry) PublishRepo(name string) (ids.RepoId, ops.RoomCredentials, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, taken := reg.names[name]; taken {
		return ids.RepoId{}, ops.RoomCredentials{}, fmt.Errorf("repo name %q already bound", name)
	}

	id := newRepoId()
	r := repo.New(ids.ReplicaId(0), reg.logger.WithField("repo", id.String()))
	creds := ops.RoomCredentials{Name: ops.RoomName(id.String()), Token: newRoomToken()}

	e := &entry{repo: r, name: name, credentials: creds, nextReplica: 1}
	reg.repos[id] = e
	reg.names[name] = id
	reg.wire(id, r)

	return id, creds, nil
}

// CloneRepo resolves name to its repo id, assigns the next replica id, and
// reissues room credentials.
func (reg *Registry) CloneRepo(name string) (ids.RepoId, ids.ReplicaId, ops.RoomCredentials, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id, ok := reg.names[name]
	if !ok {
		return ids.RepoId{}, 0, ops.RoomCredentials{}, fmt.Errorf("repo name %q not found", name)
	}

	e := reg.repos[id]
	replicaId := e.nextReplica
	e.nextReplica++

	return id, replicaId, e.credentials, nil
}

// Lookup returns the live Repo for id, loading it from persistence on a
// cold reference if the registry doesn't hold it yet (a coordinator
// restart loses its in-memory registry but not the KV store).
func (reg *Registry) Lookup(id ids.RepoId) (*repo.Repo, bool) {
	reg.mu.Lock()
	if e, ok := reg.repos[id]; ok {
		reg.mu.Unlock()
		return e.repo, true
	}
	reg.mu.Unlock()

	if reg.persist == nil {
		return nil, false
	}
	r, ok := reg.persist.Load(id)
	if !ok {
		return nil, false
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if e, ok := reg.repos[id]; ok {
		return e.repo, true
	}
	reg.repos[id] = &entry{repo: r, nextReplica: 1}
	reg.wire(id, r)
	return r, true
}

// resolveRoomName maps a RoomName (the repo id's string form) back to its
// RepoId for the room-stream handler.
func (reg *Registry) resolveRoomName(name ops.RoomName) (ids.RepoId, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for id, e := range reg.repos {
		if e.credentials.Name == name {
			return id, true
		}
	}
	return ids.RepoId{}, false
}

// authorize checks that token matches the credentials issued for id.
func (reg *Registry) authorize(id ids.RepoId, token ops.RoomToken) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.repos[id]
	return ok && e.credentials.Token == token
}

// wire subscribes r to both the broadcast hub and the persistence tracker.
// Must be called with reg.mu held.
func (reg *Registry) wire(id ids.RepoId, r *repo.Repo) {
	if reg.hub != nil {
		r.Subscribe(&broadcastObserver{repoId: id, hub: reg.hub, logger: reg.logger})
	}
	if reg.persist != nil {
		reg.persist.Track(id, r)
	}
}

// broadcastObserver forwards every locally authored operation to a repo's
// room as a MessageEnvelope, the low-latency fan-out half of §6 (the
// durable half is PublishOperations, driven directly by the HTTP handler).
type broadcastObserver struct {
	repoId ids.RepoId
	hub    *RoomHub
	logger rlog.Logger
}

func (b *broadcastObserver) LocalOperation(op ops.Operation) {
	data, err := encodeMessage(op)
	if err != nil {
		b.logger.Warn("transport: failed to encode broadcast message: %v", err)
		return
	}
	b.hub.Broadcast(b.repoId, data)
}

func (b *broadcastObserver) SnapshotChanged() {}
