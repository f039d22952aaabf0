// internal/checkpoint/validate.go
package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ValidationReport is the result of auditing one checkpoint.
type ValidationReport struct {
	CheckpointID   string   `json:"checkpoint_id"`
	Valid          bool     `json:"valid"`
	Issues         []string `json:"issues,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	CorruptedFiles []string `json:"corrupted_files,omitempty"`
	MissingFiles   []string `json:"missing_files,omitempty"`
	FilesChecked   int      `json:"files_checked"`
	FilesValid     int      `json:"files_valid"`
}

// RepairReport is the result of repairing one checkpoint.
type RepairReport struct {
	CheckpointID     string   `json:"checkpoint_id"`
	Repaired         bool     `json:"repaired"`
	ActionsTaken     []string `json:"actions_taken,omitempty"`
	RemovedSnapshots []string `json:"removed_snapshots,omitempty"`
	RemainingIssues  []string `json:"remaining_issues,omitempty"`
}

// StoreReport aggregates validation across every checkpoint in the store.
type StoreReport struct {
	Total   int                 `json:"total"`
	Valid   int                 `json:"valid"`
	Invalid int                 `json:"invalid"`
	Reports []*ValidationReport `json:"reports"`
}

// Validate audits one checkpoint: the blob directory must exist, every
// snapshot's blob must be present, decompressible, and match its recorded
// hash. A size mismatch against the snapshot record is a warning; orphaned
// blobs are warnings too. Only missing or corrupted blobs make the
// checkpoint invalid.
func (s *Store) Validate(id string) (*ValidationReport, error) {
	cp, err := s.GetCheckpoint(id)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{CheckpointID: id, Valid: true}
	dir := s.checkpointDir(id)

	if _, err := os.Stat(dir); err != nil {
		report.Valid = false
		report.Issues = append(report.Issues, fmt.Sprintf("checkpoint directory missing: %s", dir))
		report.FilesChecked = len(cp.Snapshots)
		for _, snap := range cp.Snapshots {
			report.MissingFiles = append(report.MissingFiles, snap.FilePath)
		}
		return report, nil
	}

	referenced := make(map[string]bool, len(cp.Snapshots))
	for _, snap := range cp.Snapshots {
		report.FilesChecked++
		referenced[snap.ContentHash] = true

		content, err := s.readSnapshot(snap, dir)
		if err != nil {
			report.Valid = false
			var corrupt *CorruptionError
			if errors.As(err, &corrupt) {
				report.CorruptedFiles = append(report.CorruptedFiles, snap.FilePath)
				report.Issues = append(report.Issues, fmt.Sprintf("corrupted: %s (%v)", snap.FilePath, err))
			} else {
				report.MissingFiles = append(report.MissingFiles, snap.FilePath)
				report.Issues = append(report.Issues, fmt.Sprintf("unreadable: %s (%v)", snap.FilePath, err))
			}
			continue
		}

		if int64(len(content)) != snap.SizeBytes {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("size mismatch for %s: recorded %d, found %d", snap.FilePath, snap.SizeBytes, len(content)))
		}
		report.FilesValid++
	}

	for _, orphan := range s.orphanBlobs(dir, referenced) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("orphaned blob: %s", orphan))
	}

	return report, nil
}

// readSnapshot loads one blob, decompresses if flagged, and verifies the hash
// of the decoded bytes. Nothing is written.
func (s *Store) readSnapshot(snap Snapshot, dir string) ([]byte, error) {
	blobPath := filepath.Join(dir, snap.ContentHash+snapshotSuffix)
	payload, err := os.ReadFile(blobPath)
	if err != nil {
		return nil, &StorageError{Op: "read blob", Path: blobPath, Err: err}
	}

	content := payload
	if snap.Compressed {
		content, err = s.comp.Decompress(payload)
		if err != nil {
			return nil, &CorruptionError{FilePath: snap.FilePath, Want: snap.ContentHash, Got: "undecodable"}
		}
	}

	if got := HashContent(content); got != snap.ContentHash {
		return nil, &CorruptionError{FilePath: snap.FilePath, Want: snap.ContentHash, Got: got}
	}
	return content, nil
}

// orphanBlobs lists blob files in dir that no snapshot references.
func (s *Store) orphanBlobs(dir string, referenced map[string]bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var orphans []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		hash := strings.TrimSuffix(name, snapshotSuffix)
		if !referenced[hash] {
			orphans = append(orphans, name)
		}
	}
	return orphans
}

// Repair brings a checkpoint back to a consistent state: snapshot records
// whose blobs are missing or corrupt are dropped from the index (when
// removeCorrupted is true), orphaned blobs are deleted, and the checkpoint
// is re-validated. Repair never invents data; a dropped snapshot is gone.
func (s *Store) Repair(id string, removeCorrupted bool) (*RepairReport, error) {
	out := &RepairReport{CheckpointID: id}
	dir := s.checkpointDir(id)

	s.mu.Lock()

	var cp *Checkpoint
	for _, c := range s.checkpoints {
		if c.ID == id {
			cp = c
			break
		}
	}
	if cp == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if _, err := os.Stat(dir); err != nil {
		// The whole blob directory is gone; empty the record so restores
		// fail fast instead of half-succeeding.
		if removeCorrupted && len(cp.Snapshots) > 0 {
			for _, snap := range cp.Snapshots {
				out.RemovedSnapshots = append(out.RemovedSnapshots, snap.FilePath)
			}
			cp.Snapshots = nil
			out.ActionsTaken = append(out.ActionsTaken, "dropped all snapshots: blob directory missing")
			if err := s.saveIndexLocked(); err != nil {
				s.mu.Unlock()
				return nil, err
			}
		} else {
			out.RemainingIssues = append(out.RemainingIssues, fmt.Sprintf("checkpoint directory missing: %s", dir))
		}
		s.mu.Unlock()
		out.Repaired = len(out.RemainingIssues) == 0
		return out, nil
	}

	kept := make([]Snapshot, 0, len(cp.Snapshots))
	referenced := make(map[string]bool)
	changed := false
	for _, snap := range cp.Snapshots {
		if err := s.verifySnapshot(snap, dir); err != nil {
			if removeCorrupted {
				out.RemovedSnapshots = append(out.RemovedSnapshots, snap.FilePath)
				out.ActionsTaken = append(out.ActionsTaken, fmt.Sprintf("dropped snapshot %s: %v", snap.FilePath, err))
				changed = true
				continue
			}
			out.RemainingIssues = append(out.RemainingIssues, fmt.Sprintf("%s: %v", snap.FilePath, err))
			kept = append(kept, snap)
			referenced[snap.ContentHash] = true
			continue
		}
		kept = append(kept, snap)
		referenced[snap.ContentHash] = true
	}

	for _, orphan := range s.orphanBlobs(dir, referenced) {
		if err := os.Remove(filepath.Join(dir, orphan)); err == nil {
			out.ActionsTaken = append(out.ActionsTaken, fmt.Sprintf("deleted orphaned blob %s", orphan))
			changed = true
		}
	}

	if changed && removeCorrupted {
		cp.Snapshots = kept
	}
	if changed {
		if err := s.saveIndexLocked(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	// Re-validate to report the final state.
	report, err := s.Validate(id)
	if err != nil {
		return nil, err
	}
	out.RemainingIssues = append(out.RemainingIssues, report.Issues...)
	out.Repaired = report.Valid

	if len(out.ActionsTaken) > 0 {
		s.logger.Info("repaired checkpoint",
			slog.String("id", id),
			slog.Int("actions", len(out.ActionsTaken)),
			slog.Int("removed_snapshots", len(out.RemovedSnapshots)),
		)
	}
	return out, nil
}

// verifySnapshot checks one blob against its snapshot record.
func (s *Store) verifySnapshot(snap Snapshot, dir string) error {
	_, err := s.readSnapshot(snap, dir)
	return err
}

// ValidateAll audits every checkpoint in the store.
func (s *Store) ValidateAll() (*StoreReport, error) {
	all := s.ListCheckpoints(Filter{})

	report := &StoreReport{Total: len(all)}
	for _, cp := range all {
		r, err := s.Validate(cp.ID)
		if err != nil {
			return nil, err
		}
		if r.Valid {
			report.Valid++
		} else {
			report.Invalid++
		}
		report.Reports = append(report.Reports, r)
	}
	return report, nil
}

// AutoRepairAll repairs every checkpoint that fails validation or carries
// warnings, returning the reports for those that needed work.
func (s *Store) AutoRepairAll() ([]*RepairReport, error) {
	store, err := s.ValidateAll()
	if err != nil {
		return nil, err
	}

	var repairs []*RepairReport
	for _, r := range store.Reports {
		if r.Valid && len(r.Warnings) == 0 {
			continue
		}
		repair, err := s.Repair(r.CheckpointID, true)
		if err != nil {
			return nil, err
		}
		if len(repair.ActionsTaken) > 0 || len(repair.RemovedSnapshots) > 0 {
			repairs = append(repairs, repair)
		}
	}
	return repairs, nil
}
