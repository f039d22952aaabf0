// internal/checkpoint/store.go
package checkpoint

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxCheckpoints bounds the store; the oldest checkpoints are
	// evicted beyond it.
	DefaultMaxCheckpoints = 50

	// DefaultConcurrency is the snapshot worker pool size.
	DefaultConcurrency = 4

	snapshotSuffix = ".snapshot"
)

// Store owns the checkpoint blobs and index for one workspace. Construct one
// per workspace and pass it explicitly; there are no package-level instances.
//
// All index mutations (create, delete, cleanup, repair) are serialized
// through s.mu so the background retention loop never races a foreground
// operation.
type Store struct {
	root           string
	dir            string
	indexPath      string
	maxCheckpoints int
	limitBytes     int64
	concurrency    int
	logger         *slog.Logger
	comp           *compressor

	mu           sync.Mutex
	checkpoints  []*Checkpoint
	indexSavedAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMaxCheckpoints sets the retention bound.
func WithMaxCheckpoints(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxCheckpoints = n
		}
	}
}

// WithConcurrency sets the snapshot worker pool size.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithCapacityLimit rejects checkpoint creation when the requested files sum
// to more than limit bytes. Zero disables the check.
func WithCapacityLimit(limit int64) Option {
	return func(s *Store) { s.limitBytes = limit }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New opens (or initializes) the checkpoint store under
// <root>/.snapsafe/checkpoints and loads the persisted index.
func New(root string, opts ...Option) (*Store, error) {
	dir := filepath.Join(root, ".snapsafe", "checkpoints")

	s := &Store{
		root:           root,
		dir:            dir,
		indexPath:      filepath.Join(dir, indexFileName),
		maxCheckpoints: DefaultMaxCheckpoints,
		concurrency:    DefaultConcurrency,
		logger:         slog.Default(),
		comp:           newCompressor(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "create store dir", Path: dir, Err: err}
	}
	s.writeGitignore()

	checkpoints, err := loadIndex(s.indexPath)
	if err != nil {
		return nil, err
	}
	s.checkpoints = checkpoints

	s.logger.Debug("checkpoint store ready",
		slog.String("dir", dir),
		slog.Int("checkpoints", len(checkpoints)),
	)

	return s, nil
}

// writeGitignore keeps checkpoint blobs out of version control while letting
// the index itself be committed if the user wants it.
func (s *Store) writeGitignore() {
	path := filepath.Join(s.dir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		return
	}
	content := "*.snapshot\ncp_*/\n!" + indexFileName + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		s.logger.Warn("failed to write store .gitignore", slog.String("error", err.Error()))
	}
}

// generateID mints a checkpoint id from the current time, microsecond
// resolution so back-to-back checkpoints stay distinct.
func generateID(now time.Time) string {
	return fmt.Sprintf("cp_%s_%06d", now.UTC().Format("20060102_150405"), now.Nanosecond()/1000)
}

// mintID claims a checkpoint id together with its blob directory. Mkdir
// (not MkdirAll) detects two checkpoints landing in the same microsecond;
// the loser gets a numeric suffix instead of silently sharing the directory.
func (s *Store) mintID(now time.Time) (string, string, error) {
	base := generateID(now)
	id := base
	for attempt := 1; ; attempt++ {
		dir := s.checkpointDir(id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return id, dir, nil
		}
		if !os.IsExist(err) {
			return "", "", &StorageError{Op: "create checkpoint dir", Path: dir, Err: err}
		}
		id = fmt.Sprintf("%s_%d", base, attempt)
	}
}

// CreateCheckpoint snapshots the given files into a fresh per-checkpoint blob
// directory and appends the checkpoint to the index.
//
// Missing files are skipped, not fatal; so is any single file that fails to
// read or write. A failure to create the blob directory (or persist the
// index) aborts the whole call and removes the partial directory.
func (s *Store) CreateCheckpoint(ctx context.Context, filePaths []string, description, operationType string, tags []string) (*Checkpoint, error) {
	if s.limitBytes > 0 {
		var total int64
		for _, p := range filePaths {
			if info, err := os.Stat(p); err == nil {
				total += info.Size()
			}
		}
		if total > s.limitBytes {
			return nil, &CapacityError{SizeBytes: total, LimitBytes: s.limitBytes}
		}
	}

	now := time.Now()
	id, dir, err := s.mintID(now)
	if err != nil {
		return nil, err
	}

	snapshots := s.snapshotFiles(ctx, dir, filePaths)

	cp := &Checkpoint{
		ID:            id,
		CreatedAt:     now.UTC(),
		Description:   description,
		OperationType: operationType,
		Snapshots:     snapshots,
		Tags:          tags,
	}

	s.mu.Lock()
	s.checkpoints = append(s.checkpoints, cp)
	if err := s.saveIndexLocked(); err != nil {
		s.checkpoints = s.checkpoints[:len(s.checkpoints)-1]
		s.mu.Unlock()
		os.RemoveAll(dir)
		return nil, err
	}
	removed := s.cleanupOldLocked()
	s.mu.Unlock()

	s.logger.Info("created checkpoint",
		slog.String("id", id),
		slog.Int("files", len(snapshots)),
		slog.Int("requested", len(filePaths)),
	)
	if removed > 0 {
		s.logger.Debug("retention evicted old checkpoints", slog.Int("removed", removed))
	}

	return cp, nil
}

// snapshotFiles captures each path into the blob directory, using a bounded
// worker pool when more than one path is given. Result order follows the
// input order. Per-file failures are logged and skipped.
func (s *Store) snapshotFiles(ctx context.Context, dir string, paths []string) []Snapshot {
	results := make([]*Snapshot, len(paths))
	written := make(map[string]bool)
	var writtenMu sync.Mutex

	capture := func(i int) {
		if ctx.Err() != nil {
			return
		}
		snap, err := s.snapshotFile(paths[i], dir, written, &writtenMu)
		if err != nil {
			s.logger.Warn("failed to snapshot file",
				slog.String("path", paths[i]),
				slog.String("error", err.Error()),
			)
			return
		}
		if snap == nil {
			s.logger.Debug("file does not exist, skipping", slog.String("path", paths[i]))
			return
		}
		results[i] = snap
	}

	workers := s.concurrency
	if len(paths) <= 1 || workers <= 1 {
		for i := range paths {
			capture(i)
		}
	} else {
		if workers > len(paths) {
			workers = len(paths)
		}
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					capture(i)
				}
			}()
		}
		for i := range paths {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	}

	snapshots := make([]Snapshot, 0, len(paths))
	for _, snap := range results {
		if snap != nil {
			snapshots = append(snapshots, *snap)
		}
	}
	return snapshots
}

// snapshotFile reads one file, compresses it per policy, and writes the blob
// unless an identical payload was already written for this checkpoint.
// Returns (nil, nil) when the file does not exist.
func (s *Store) snapshotFile(path, dir string, written map[string]bool, writtenMu *sync.Mutex) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "stat", Path: path, Err: err}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}

	hash := HashContent(content)
	strategy := selectStrategy(int64(len(content)), filepath.Ext(path))

	payload := content
	compressed := false
	var compressedSize int64
	if strategy != StrategyNone {
		encoded := s.comp.Compress(content, strategy)
		// Keep the compressed form only when it actually saves space.
		if len(encoded) < len(content) {
			payload = encoded
			compressed = true
			compressedSize = int64(len(encoded))
		} else {
			strategy = StrategyNone
		}
	}

	// A hash is written at most once per checkpoint, even when several
	// snapshots share the same bytes.
	writtenMu.Lock()
	needWrite := !written[hash]
	written[hash] = true
	writtenMu.Unlock()

	if needWrite {
		blobPath := filepath.Join(dir, hash+snapshotSuffix)
		if err := os.WriteFile(blobPath, payload, 0644); err != nil {
			return nil, &StorageError{Op: "write blob", Path: blobPath, Err: err}
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &Snapshot{
		FilePath:       abs,
		ContentHash:    hash,
		SizeBytes:      int64(len(content)),
		ModifiedTime:   info.ModTime().UTC(),
		Compressed:     compressed,
		CompressedSize: compressedSize,
		Strategy:       strategy,
	}, nil
}

// RestoreCheckpoint writes the checkpoint's snapshots back to their original
// paths, verifying each blob against its recorded hash first. A corrupted
// blob fails only that file; siblings still restore. filePaths, when given,
// restricts the restore to that subset. Returns the number of files actually
// restored.
func (s *Store) RestoreCheckpoint(ctx context.Context, id string, filePaths ...string) (int, error) {
	cp, err := s.GetCheckpoint(id)
	if err != nil {
		return 0, err
	}

	dir := s.checkpointDir(id)
	if _, err := os.Stat(dir); err != nil {
		return 0, &StorageError{Op: "open checkpoint dir", Path: dir, Err: err}
	}

	wanted := make(map[string]bool, len(filePaths))
	for _, p := range filePaths {
		wanted[p] = true
		if abs, err := filepath.Abs(p); err == nil {
			wanted[abs] = true
		}
	}

	targets := make([]Snapshot, 0, len(cp.Snapshots))
	for _, snap := range cp.Snapshots {
		if len(wanted) > 0 && !wanted[snap.FilePath] {
			continue
		}
		targets = append(targets, snap)
	}

	var restoredMu sync.Mutex
	restored := 0

	restore := func(snap Snapshot) {
		if ctx.Err() != nil {
			return
		}
		if err := s.restoreSnapshot(snap, dir); err != nil {
			s.logger.Warn("failed to restore file",
				slog.String("path", snap.FilePath),
				slog.String("checkpoint", id),
				slog.String("error", err.Error()),
			)
			return
		}
		restoredMu.Lock()
		restored++
		restoredMu.Unlock()
	}

	workers := s.concurrency
	if len(targets) <= 1 || workers <= 1 {
		for _, snap := range targets {
			restore(snap)
		}
	} else {
		if workers > len(targets) {
			workers = len(targets)
		}
		jobs := make(chan Snapshot)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for snap := range jobs {
					restore(snap)
				}
			}()
		}
		for _, snap := range targets {
			jobs <- snap
		}
		close(jobs)
		wg.Wait()
	}

	s.logger.Info("restored checkpoint",
		slog.String("id", id),
		slog.Int("restored", restored),
		slog.Int("requested", len(targets)),
	)

	return restored, nil
}

// restoreSnapshot reads one blob, decompresses if flagged, verifies the hash
// of the decompressed bytes, and overwrites the target path.
func (s *Store) restoreSnapshot(snap Snapshot, dir string) error {
	blobPath := filepath.Join(dir, snap.ContentHash+snapshotSuffix)
	payload, err := os.ReadFile(blobPath)
	if err != nil {
		return &StorageError{Op: "read blob", Path: blobPath, Err: err}
	}

	content := payload
	if snap.Compressed {
		content, err = s.comp.Decompress(payload)
		if err != nil {
			return &CorruptionError{FilePath: snap.FilePath, Want: snap.ContentHash, Got: "undecodable"}
		}
	}

	if got := HashContent(content); got != snap.ContentHash {
		return &CorruptionError{FilePath: snap.FilePath, Want: snap.ContentHash, Got: got}
	}

	if err := os.MkdirAll(filepath.Dir(snap.FilePath), 0755); err != nil {
		return &StorageError{Op: "create parent dir", Path: snap.FilePath, Err: err}
	}
	if err := os.WriteFile(snap.FilePath, content, 0644); err != nil {
		return &StorageError{Op: "write file", Path: snap.FilePath, Err: err}
	}
	return nil
}

// GetCheckpoint returns the checkpoint with the given id.
func (s *Store) GetCheckpoint(id string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cp := range s.checkpoints {
		if cp.ID == id {
			return cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Latest returns the most recent checkpoint, or nil when the store is empty.
func (s *Store) Latest() *Checkpoint {
	all := s.ListCheckpoints(Filter{Limit: 1})
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// ListCheckpoints returns checkpoints newest-first, narrowed by the filter.
func (s *Store) ListCheckpoints(f Filter) []*Checkpoint {
	s.mu.Lock()
	matched := make([]*Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		if f.OperationType != "" && cp.OperationType != f.OperationType {
			continue
		}
		if len(f.Tags) > 0 {
			any := false
			for _, tag := range f.Tags {
				if cp.HasTag(tag) {
					any = true
					break
				}
			}
			if !any {
				continue
			}
		}
		matched = append(matched, cp)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched
}

// DeleteCheckpoint removes a checkpoint's blob directory and index entry.
func (s *Store) DeleteCheckpoint(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, cp := range s.checkpoints {
		if cp.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	dir := s.checkpointDir(id)
	if err := os.RemoveAll(dir); err != nil {
		return &StorageError{Op: "remove checkpoint dir", Path: dir, Err: err}
	}

	s.checkpoints = append(s.checkpoints[:idx], s.checkpoints[idx+1:]...)
	if err := s.saveIndexLocked(); err != nil {
		return err
	}

	s.logger.Info("deleted checkpoint", slog.String("id", id))
	return nil
}

// StorageSize returns the total bytes used on disk by the store.
func (s *Store) StorageSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best effort
		}
		if info, err := d.Info(); err == nil && !d.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return total, &StorageError{Op: "walk store", Path: s.dir, Err: err}
	}
	return total, nil
}

// CleanupOld evicts the oldest checkpoints beyond the retention bound and
// returns how many were removed.
func (s *Store) CleanupOld() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupOldLocked(), nil
}

// cleanupOldLocked is the eviction body. Callers must hold s.mu. Blob
// directory removal is best effort; the index entry goes away regardless so
// the bound always holds.
func (s *Store) cleanupOldLocked() int {
	if len(s.checkpoints) <= s.maxCheckpoints {
		return 0
	}

	sorted := make([]*Checkpoint, len(s.checkpoints))
	copy(sorted, s.checkpoints)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	keep := sorted[:s.maxCheckpoints]
	evict := sorted[s.maxCheckpoints:]

	for _, cp := range evict {
		if err := os.RemoveAll(s.checkpointDir(cp.ID)); err != nil {
			s.logger.Warn("failed to remove evicted checkpoint dir",
				slog.String("id", cp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.checkpoints = keep
	if err := s.saveIndexLocked(); err != nil {
		s.logger.Error("failed to persist index after cleanup", slog.String("error", err.Error()))
	}
	return len(evict)
}

// StartRetention runs CleanupOld on a timer until ctx is canceled. Eviction
// shares the store mutex with foreground mutation, so the two never race.
func (s *Store) StartRetention(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, _ := s.CleanupOld()
				if removed > 0 {
					s.logger.Info("retention cleanup", slog.Int("removed", removed))
				}
			}
		}
	}()
}

// Root returns the workspace root the store was opened for.
func (s *Store) Root() string { return s.root }

// Dir returns the on-disk store directory.
func (s *Store) Dir() string { return s.dir }
