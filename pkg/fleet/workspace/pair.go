package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PairConflict governs which side wins when both have changed since the
// last sync (§4.4 pair mode). Unlike push/pull, pair is bidirectional per
// its own definition; the transfer-policies "source is read-only" bullet
// is read as scoped to push/pull only (see DESIGN.md).
type PairConflict string

const (
	PairNewer  PairConflict = "newer"  // the side with the more recent mtime wins
	PairSource PairConflict = "source" // the Engine's Source endpoint always wins
	PairTarget PairConflict = "target" // the Engine's Target endpoint always wins
)

// PairOptions configures the continuous bidirectional watch loop.
type PairOptions struct {
	Options
	Conflict PairConflict
	Debounce time.Duration // collapse bursts of fsnotify events before syncing
	Poll     time.Duration // how often the non-local side is checked for changes
}

const pairMarker = ".fm-pair-marker"

// Pair runs until ctx is canceled, watching the local side continuously
// via fsnotify and polling the remote side on Poll, syncing whichever
// side has the winning change per Conflict. Exactly one of Source/Target
// must be local — fsnotify only watches this process's own filesystem;
// the other is addressed through its Runner. On cancellation, a final
// flush syncs any in-flight local change before returning, per §4.4's
// "cancellation propagates immediately and a final flush synchronizes
// in-flight writes" contract.
func (e *Engine) Pair(ctx context.Context, opts PairOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Poll <= 0 {
		opts.Poll = 2 * time.Second
	}
	if opts.Conflict == "" {
		opts.Conflict = PairNewer
	}

	local, localIsTarget, err := e.localSide()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pair: create watcher: %w", err)
	}
	defer watcher.Close()
	if err := addRecursive(watcher, local.Path); err != nil {
		return fmt.Errorf("pair: watch %s: %w", local.Path, err)
	}

	pollTicker := time.NewTicker(opts.Poll)
	defer pollTicker.Stop()
	debounceTimer := time.NewTimer(time.Hour)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	localDirty := false

	for {
		select {
		case <-ctx.Done():
			if localDirty {
				return e.pairSync(context.Background(), opts, localIsTarget)
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				addRecursive(watcher, ev.Name)
			}
			if filepath.Base(ev.Name) != pairMarker {
				localDirty = true
				debounceTimer.Reset(opts.Debounce)
			}

		case <-debounceTimer.C:
			if err := e.pairSync(ctx, opts, localIsTarget); err != nil {
				return err
			}
			localDirty = false

		case <-pollTicker.C:
			changed, err := e.remoteChangedSincePoll(ctx, localIsTarget)
			if err != nil {
				return err
			}
			if changed {
				if err := e.pairSync(ctx, opts, localIsTarget); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("pair: watcher error: %w", err)
		}
	}
}

// localSide reports which endpoint has no Shell (runs on this machine)
// and whether that endpoint is the Engine's Target (vs. its Source).
func (e *Engine) localSide() (Endpoint, bool, error) {
	srcLocal := e.Source.Shell == nil
	tgtLocal := e.Target.Shell == nil
	if srcLocal == tgtLocal {
		return Endpoint{}, false, fmt.Errorf("pair requires exactly one side to be local")
	}
	if tgtLocal {
		return e.Target, true, nil
	}
	return e.Source, false, nil
}

// pairSync resolves Conflict into a sync direction and runs it. "newer"
// compares each side's most recent file mtime (the marker file itself is
// excluded from that scan so a prior sync's own touch never wins a tie).
func (e *Engine) pairSync(ctx context.Context, opts PairOptions, localIsTarget bool) error {
	directionIsSourceToTarget := true
	switch opts.Conflict {
	case PairSource:
		directionIsSourceToTarget = true
	case PairTarget:
		directionIsSourceToTarget = false
	default: // PairNewer
		srcNewer, err := e.newestMtime(ctx, e.Source)
		if err != nil {
			return err
		}
		tgtNewer, err := e.newestMtime(ctx, e.Target)
		if err != nil {
			return err
		}
		directionIsSourceToTarget = !tgtNewer.After(srcNewer)
	}

	if directionIsSourceToTarget {
		if err := e.rsync(ctx, opts.Options); err != nil {
			return err
		}
	} else {
		reverse := &Engine{Source: e.Target, Target: e.Source}
		if err := reverse.rsync(ctx, opts.Options); err != nil {
			return err
		}
	}
	return e.touchMarker(ctx, localIsTarget)
}

// newestMtime finds the most recently modified file under an endpoint's
// tree, shelling `find -printf` locally and through the endpoint's Runner
// remotely so both paths go through the same code.
func (e *Engine) newestMtime(ctx context.Context, ep Endpoint) (time.Time, error) {
	argv := []string{"find", ep.Path, "-type", "f", "-not", "-name", pairMarker, "-printf", "%T@\n"}
	stdout, _, exitCode, err := ep.runner().Run(ctx, argv, "")
	if err != nil || exitCode != 0 || len(stdout) == 0 {
		return time.Time{}, nil
	}
	var latest float64
	var cur float64
	var digits []byte
	flush := func() {
		if len(digits) == 0 {
			return
		}
		fmt.Sscanf(string(digits), "%g", &cur)
		if cur > latest {
			latest = cur
		}
		digits = digits[:0]
	}
	for _, b := range stdout {
		if b == '\n' {
			flush()
			continue
		}
		digits = append(digits, b)
	}
	flush()
	if latest == 0 {
		return time.Time{}, nil
	}
	sec := int64(latest)
	return time.Unix(sec, 0), nil
}

// touchMarker records that a sync just ran, so the next poll's
// remoteChangedSincePoll compares against this point in time rather than
// re-syncing on every tick.
func (e *Engine) touchMarker(ctx context.Context, localIsTarget bool) error {
	local := e.Source
	if localIsTarget {
		local = e.Target
	}
	if local.Shell != nil {
		return nil // only the local side is reachable without a remote exec round-trip
	}
	return os.WriteFile(filepath.Join(local.Path, pairMarker), []byte(time.Now().Format(time.RFC3339Nano)), 0o644)
}

// remoteChangedSincePoll stats the remote side's newest file against its
// own marker, so each poll tick costs one `find` round-trip rather than a
// full content hash.
func (e *Engine) remoteChangedSincePoll(ctx context.Context, localIsTarget bool) (bool, error) {
	remote := e.Target
	if localIsTarget {
		remote = e.Source
	}
	marker := filepath.Join(remote.Path, pairMarker)
	argv := []string{"find", remote.Path, "-newer", marker, "-not", "-name", pairMarker}
	stdout, _, exitCode, err := remote.runner().Run(ctx, argv, "")
	if err != nil {
		return false, fmt.Errorf("pair: poll remote: %w", err)
	}
	if exitCode != 0 {
		return true, nil // marker absent yet: first run, treat as changed
	}
	return len(stdout) > 0, nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return nil // path may have just been removed; ignore
	}
	if !info.IsDir() {
		return nil
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if filepath.Base(path) == ".git" {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
