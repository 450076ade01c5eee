package lineage

import (
	"path/filepath"
	"testing"
)

func TestAppendAssignsGenerationsAndTracksChildren(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	root, err := store.Append(Entry{GenomeHash: "h0"})
	if err != nil {
		t.Fatalf("Append root: %v", err)
	}
	if root.Generation != 0 {
		t.Fatalf("expected first entry on main to be generation 0, got %d", root.Generation)
	}
	if root.Status != StatusActive {
		t.Fatalf("expected root entry to be Active, got %s", root.Status)
	}

	child, err := store.Append(Entry{ParentID: root.ID, GenomeHash: "h1", Operator: "ParameterTuning"})
	if err != nil {
		t.Fatalf("Append child: %v", err)
	}
	if child.Generation != 1 {
		t.Fatalf("expected second entry to be generation 1, got %d", child.Generation)
	}

	children := store.ChildrenOf(root.ID)
	if len(children) != 1 || children[0] != child.ID {
		t.Fatalf("expected children [%d], got %v", child.ID, children)
	}

	if rootNow, _ := store.Get(root.ID); rootNow.Status != StatusArchived {
		t.Fatalf("expected root to become Archived once a later entry on the branch went Active, got %s", rootNow.Status)
	}

	branch, head, ok := store.Current()
	if !ok {
		t.Fatal("expected an active branch after the second append")
	}
	if branch.Name != "main" || head.ID != child.ID {
		t.Fatalf("expected main branch current entry %d, got branch=%+v head=%+v", child.ID, branch, head)
	}
}

func TestAppendRejectsUnknownParent(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Append(Entry{ParentID: 99, GenomeHash: "hx"}); err == nil {
		t.Fatal("expected error appending with unknown parent")
	}
}

func TestCreateBranchAppendsARealEntry(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	root, err := store.Append(Entry{GenomeHash: "h0"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(Entry{ParentID: root.ID, GenomeHash: "h1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	_, head, ok := store.Current()
	if !ok {
		t.Fatal("expected a current entry on main")
	}

	branch, err := store.CreateBranch("experiment", "main", head.Generation, "trying a risky mutation")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if branch.HeadID == head.ID {
		t.Fatal("expected CreateBranch to append a brand-new entry, not reuse the fork point's entry")
	}
	if branch.RootGeneration != head.Generation {
		t.Fatalf("expected forked branch root generation %d, got %d", head.Generation, branch.RootGeneration)
	}

	newEntry, ok := store.Get(branch.HeadID)
	if !ok {
		t.Fatal("expected the new branch's head entry to exist")
	}
	if newEntry.Status != StatusCreated {
		t.Fatalf("expected a freshly forked branch root to have status Created, not become Active, got %s", newEntry.Status)
	}
	if newEntry.Generation != head.Generation {
		t.Fatalf("expected forked entry to keep the fork point's generation %d, got %d", head.Generation, newEntry.Generation)
	}

	if _, err := store.CreateBranch("experiment", "main", head.Generation, ""); err == nil {
		t.Fatal("expected error creating a duplicate branch")
	}
}

func TestRollbackArchivesOldActiveAndActivatesTarget(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	gen0, err := store.Append(Entry{GenomeHash: "h0"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	gen1, err := store.Append(Entry{ParentID: gen0.ID, GenomeHash: "h1"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := store.Rollback("main", gen0.Generation); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if gen1Now, _ := store.Get(gen1.ID); gen1Now.Status != StatusArchived {
		t.Fatalf("expected the rolled-back-from entry to become Archived, got %s", gen1Now.Status)
	}
	if gen0Now, _ := store.Get(gen0.ID); gen0Now.Status != StatusActive {
		t.Fatalf("expected the rollback target to become Active, got %s", gen0Now.Status)
	}

	_, current, ok := store.Current()
	if !ok || current.ID != gen0.ID {
		t.Fatalf("expected Current() to resolve to the rolled-back entry, got %+v ok=%v", current, ok)
	}
}

func TestReopenRebuildsFromLog(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	root, err := store.Append(Entry{GenomeHash: "h0"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	reopened, err := Open(filepath.Clean(dir))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get(root.ID)
	if !ok {
		t.Fatal("expected entry to survive reopen")
	}
	if got.GenomeHash != "h0" {
		t.Fatalf("unexpected genome hash after reopen: %s", got.GenomeHash)
	}
	if _, _, ok := reopened.Current(); !ok {
		t.Fatal("expected the active entry to survive reopen via the status overlay")
	}
}

func TestGetByGenerationFindsEntryOnBranch(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	root, err := store.Append(Entry{GenomeHash: "h0"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, ok := store.GetByGeneration("main", root.Generation)
	if !ok || got.ID != root.ID {
		t.Fatalf("expected GetByGeneration to find root entry, got %+v ok=%v", got, ok)
	}
}
