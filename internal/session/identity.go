package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/violive/liveshow-go/pkg/storage"
)

const identityKey = "liveshow:anonymous_user_id"

var (
	identityMu sync.Mutex
	identity   string
)

// AnonymousID returns the process-wide anonymous participant identifier,
// generating it on first use. It is reused for all sessions in this process
// and is not persisted across restarts unless the host opts in via
// PersistentIdentity or SetIdentity.
func AnonymousID() string {
	identityMu.Lock()
	defer identityMu.Unlock()
	if identity == "" {
		identity = uuid.New().String()
	}
	return identity
}

// SetIdentity overrides the process-wide identity (host-supplied user id).
func SetIdentity(id string) {
	identityMu.Lock()
	defer identityMu.Unlock()
	identity = id
}

// PersistentIdentity loads the anonymous identity from the store, generating
// and persisting a fresh one when absent. Hosts that want the identity to
// survive process restarts call this once at startup.
func PersistentIdentity(ctx context.Context, store storage.Store) (string, error) {
	identityMu.Lock()
	defer identityMu.Unlock()
	if v, err := store.Get(ctx, identityKey); err == nil && v != "" {
		identity = v
		return identity, nil
	}
	if identity == "" {
		identity = uuid.New().String()
	}
	if err := store.Set(ctx, identityKey, identity); err != nil {
		return identity, err
	}
	return identity, nil
}

// resetIdentity clears the process identity. Test hook.
func resetIdentity() {
	identityMu.Lock()
	defer identityMu.Unlock()
	identity = ""
}
