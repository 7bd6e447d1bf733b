package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jotdeck/jotdeck/internal/remote"
)

// resolveTimeout bounds one shared folder resolution.
const resolveTimeout = time.Minute

// Folder names below the per-user container.
const (
	JournalFolder = "journal"
	NotesFolder   = "notes"
)

// Topology holds the resolved folder IDs for one identity.
type Topology struct {
	Root    string // app folder
	User    string // per-user folder; holds tasks.json and metadata.json
	Journal string
	Notes   string
}

// folderResolver finds or creates the folder hierarchy once per identity.
// Concurrent callers share one resolution, so two first saves racing each
// other cannot create the same folder twice.
type folderResolver struct {
	store     remote.Store
	appFolder string

	mu    sync.Mutex
	user  string
	gen   int
	topo  *Topology
	group singleflight.Group
}

func newFolderResolver(store remote.Store, appFolder, user string) *folderResolver {
	return &folderResolver{store: store, appFolder: appFolder, user: user}
}

// resolve returns the cached topology or resolves it top-down.
func (f *folderResolver) resolve(ctx context.Context) (Topology, error) {
	f.mu.Lock()
	if f.topo != nil {
		t := *f.topo
		f.mu.Unlock()
		return t, nil
	}
	user, gen := f.user, f.gen
	f.mu.Unlock()

	key := strconv.Itoa(gen) + "/" + user
	ch := f.group.DoChan(key, func() (any, error) {
		// Shared by every waiting caller, so no single caller's
		// cancellation applies.
		walkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		topo, err := f.walk(walkCtx, user)
		if err != nil {
			return Topology{}, err
		}
		f.mu.Lock()
		if f.gen == gen {
			f.topo = &topo
		}
		f.mu.Unlock()
		return topo, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Topology{}, res.Err
		}
		return res.Val.(Topology), nil
	case <-ctx.Done():
		return Topology{}, ctx.Err()
	}
}

func (f *folderResolver) walk(ctx context.Context, user string) (Topology, error) {
	var (
		topo Topology
		err  error
	)
	if topo.Root, err = f.findOrCreate(ctx, f.appFolder, ""); err != nil {
		return Topology{}, err
	}
	if topo.User, err = f.findOrCreate(ctx, user, topo.Root); err != nil {
		return Topology{}, err
	}
	if topo.Journal, err = f.findOrCreate(ctx, JournalFolder, topo.User); err != nil {
		return Topology{}, err
	}
	if topo.Notes, err = f.findOrCreate(ctx, NotesFolder, topo.User); err != nil {
		return Topology{}, err
	}
	return topo, nil
}

func (f *folderResolver) findOrCreate(ctx context.Context, name, parentID string) (string, error) {
	ref, err := f.store.FindFolder(ctx, name, parentID)
	if err == nil {
		return ref.ID, nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return "", fmt.Errorf("failed to find folder %q: %w", name, err)
	}
	ref, err = f.store.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	return ref.ID, nil
}

// reset drops the cached topology and switches to another user.
func (f *folderResolver) reset(user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = user
	f.gen++
	f.topo = nil
}
