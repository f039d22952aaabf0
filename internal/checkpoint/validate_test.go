// internal/checkpoint/validate_test.go
package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_Clean(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	writeFile(t, file, patterned(2000))

	store, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cp, err := store.CreateCheckpoint(context.Background(), []string{file}, "", "edit", nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	report, err := store.Validate(cp.ID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !report.Valid {
		t.Errorf("Expected valid report, issues: %v", report.Issues)
	}
	if report.FilesChecked != 1 || report.FilesValid != 1 {
		t.Errorf("Expected 1/1 files, got %d/%d", report.FilesValid, report.FilesChecked)
	}
}

func TestValidate_DetectsCorruptionMissingAndOrphans(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(root, "good.txt")
	corrupt := filepath.Join(root, "corrupt.txt")
	gone := filepath.Join(root, "gone.txt")
	writeFile(t, good, []byte("good file content here"))
	writeFile(t, corrupt, []byte("corrupt file content!!"))
	writeFile(t, gone, []byte("gone file content here"))

	store, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cp, err := store.CreateCheckpoint(context.Background(), []string{good, corrupt, gone}, "", "edit", nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	dir := store.checkpointDir(cp.ID)
	for _, snap := range cp.Snapshots {
		switch snap.FilePath {
		case corrupt:
			writeFile(t, filepath.Join(dir, snap.ContentHash+snapshotSuffix), []byte("garbage"))
		case gone:
			os.Remove(filepath.Join(dir, snap.ContentHash+snapshotSuffix))
		}
	}
	writeFile(t, filepath.Join(dir, "deadbeefdeadbeef"+snapshotSuffix), []byte("orphan"))

	report, err := store.Validate(cp.ID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if report.Valid {
		t.Error("Expected invalid report")
	}
	if report.FilesChecked != 3 || report.FilesValid != 1 {
		t.Errorf("Expected 1/3 files valid, got %d/%d", report.FilesValid, report.FilesChecked)
	}
	if len(report.CorruptedFiles) != 1 || report.CorruptedFiles[0] != corrupt {
		t.Errorf("Expected %s corrupted, got %v", corrupt, report.CorruptedFiles)
	}
	if len(report.MissingFiles) != 1 || report.MissingFiles[0] != gone {
		t.Errorf("Expected %s missing, got %v", gone, report.MissingFiles)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("Expected 1 orphan warning, got %v", report.Warnings)
	}
}

func TestValidate_MissingDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	writeFile(t, file, []byte("some file content"))

	store, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cp, err := store.CreateCheckpoint(context.Background(), []string{file}, "", "edit", nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	os.RemoveAll(store.checkpointDir(cp.ID))

	report, err := store.Validate(cp.ID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if report.Valid {
		t.Error("Expected invalid report for missing directory")
	}
	if len(report.MissingFiles) != 1 {
		t.Errorf("Expected snapshot listed missing, got %v", report.MissingFiles)
	}
}

func TestRepair_DropsBadSnapshotsAndOrphans(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(root, "good.txt")
	bad := filepath.Join(root, "bad.txt")
	writeFile(t, good, []byte("good file content here"))
	writeFile(t, bad, []byte("bad file content here!"))

	store, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cp, err := store.CreateCheckpoint(context.Background(), []string{good, bad}, "", "edit", nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	dir := store.checkpointDir(cp.ID)
	var badHash string
	for _, snap := range cp.Snapshots {
		if snap.FilePath == bad {
			badHash = snap.ContentHash
		}
	}
	os.Remove(filepath.Join(dir, badHash+snapshotSuffix))
	writeFile(t, filepath.Join(dir, "deadbeefdeadbeef"+snapshotSuffix), []byte("orphan"))

	repair, err := store.Repair(cp.ID, true)
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	if !repair.Repaired {
		t.Fatalf("Expected checkpoint valid after repair, remaining: %v", repair.RemainingIssues)
	}
	if len(repair.RemovedSnapshots) != 1 || repair.RemovedSnapshots[0] != bad {
		t.Errorf("Expected bad snapshot dropped, got %v", repair.RemovedSnapshots)
	}
	if len(repair.ActionsTaken) != 2 {
		t.Errorf("Expected drop + orphan delete actions, got %v", repair.ActionsTaken)
	}

	report, err := store.Validate(cp.ID)
	if err != nil {
		t.Fatalf("Validate after repair failed: %v", err)
	}
	if !report.Valid || len(report.Warnings) != 0 {
		t.Errorf("Expected clean checkpoint after repair, got %+v", report)
	}

	// The repaired index survives reopen.
	reopened, err := New(root)
	if err != nil {
		t.Fatalf("New (reopen) failed: %v", err)
	}
	loaded, err := reopened.GetCheckpoint(cp.ID)
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if loaded.FileCount() != 1 {
		t.Errorf("Expected 1 snapshot after repair, got %d", loaded.FileCount())
	}
}

func TestRepair_KeepCorruptedWhenDisabled(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	writeFile(t, file, []byte("file content to break"))

	store, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cp, err := store.CreateCheckpoint(context.Background(), []string{file}, "", "edit", nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}
	writeFile(t, filepath.Join(store.checkpointDir(cp.ID), cp.Snapshots[0].ContentHash+snapshotSuffix), []byte("garbage"))

	repair, err := store.Repair(cp.ID, false)
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	if repair.Repaired {
		t.Error("Expected repair to report remaining issues")
	}
	if len(repair.RemovedSnapshots) != 0 {
		t.Errorf("Expected no snapshots dropped, got %v", repair.RemovedSnapshots)
	}
	if len(repair.RemainingIssues) == 0 {
		t.Error("Expected remaining issues listed")
	}

	loaded, _ := store.GetCheckpoint(cp.ID)
	if loaded.FileCount() != 1 {
		t.Errorf("Snapshot record must survive, got %d", loaded.FileCount())
	}
}

func TestValidateAllAndAutoRepair(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	writeFile(t, file, patterned(2000))

	store, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := store.CreateCheckpoint(context.Background(), []string{file}, "", "edit", nil); err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}
	broken, err := store.CreateCheckpoint(context.Background(), []string{file}, "", "edit", nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}
	writeFile(t, filepath.Join(store.checkpointDir(broken.ID), broken.Snapshots[0].ContentHash+snapshotSuffix), []byte("garbage"))

	all, err := store.ValidateAll()
	if err != nil {
		t.Fatalf("ValidateAll failed: %v", err)
	}
	if all.Total != 2 || all.Valid != 1 || all.Invalid != 1 {
		t.Fatalf("Expected 1 valid / 1 invalid of 2, got %+v", all)
	}

	repairs, err := store.AutoRepairAll()
	if err != nil {
		t.Fatalf("AutoRepairAll failed: %v", err)
	}
	if len(repairs) != 1 || repairs[0].CheckpointID != broken.ID {
		t.Fatalf("Expected one repair for %s, got %v", broken.ID, repairs)
	}

	all, err = store.ValidateAll()
	if err != nil {
		t.Fatalf("ValidateAll after repair failed: %v", err)
	}
	if all.Invalid != 0 {
		t.Errorf("Expected no invalid checkpoints after auto repair, got %d", all.Invalid)
	}
}
