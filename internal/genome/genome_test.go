package genome

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGenomeSource(t *testing.T, dir string) {
	t.Helper()
	must(t, os.MkdirAll(filepath.Join(dir, "capabilities"), 0o755))
	must(t, os.WriteFile(filepath.Join(dir, "prompt.txt"), []byte("you are a helpful agent"), 0o644))
	must(t, os.WriteFile(filepath.Join(dir, "capabilities", "search.json"), []byte(`{"enabled":true}`), 0o644))
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestMaterializeIsIdempotentForTheSameGeneration(t *testing.T) {
	src := t.TempDir()
	writeGenomeSource(t, src)

	store, err := NewStore(filepath.Join(t.TempDir(), "genomes"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	m1, err := store.Materialize(src, "main", 1, "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	m2, err := store.Materialize(src, "main", 1, "")
	if err != nil {
		t.Fatalf("Materialize (second time): %v", err)
	}
	if m1.Hash != m2.Hash {
		t.Fatalf("materializing identical content produced different hashes: %s vs %s", m1.Hash, m2.Hash)
	}

	data, err := store.ReadFile("main", 1, "prompt.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "you are a helpful agent" {
		t.Fatalf("unexpected file contents: %q", data)
	}

	if _, err := os.Stat(filepath.Join(store.Root(), "main", "0001", "manifest.json")); err != nil {
		t.Fatalf("expected manifest under branch/generation layout: %v", err)
	}
}

func TestMaterializeDifferentContentDifferentHash(t *testing.T) {
	srcA := t.TempDir()
	writeGenomeSource(t, srcA)

	srcB := t.TempDir()
	writeGenomeSource(t, srcB)
	must(t, os.WriteFile(filepath.Join(srcB, "prompt.txt"), []byte("you are a different agent"), 0o644))

	store, err := NewStore(filepath.Join(t.TempDir(), "genomes"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	mA, err := store.Materialize(srcA, "main", 1, "")
	if err != nil {
		t.Fatalf("Materialize A: %v", err)
	}
	mB, err := store.Materialize(srcB, "main", 2, mA.Hash)
	if err != nil {
		t.Fatalf("Materialize B: %v", err)
	}
	if mA.Hash == mB.Hash {
		t.Fatalf("different genome content hashed the same")
	}
	if mB.ParentHash != mA.Hash {
		t.Fatalf("expected parent hash %s, got %s", mA.Hash, mB.ParentHash)
	}
}

func TestMaterializeHashesFileMode(t *testing.T) {
	src := t.TempDir()
	writeGenomeSource(t, src)
	scriptPath := filepath.Join(src, "run.sh")
	must(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\n"), 0o644))

	hashBefore, _, err := Hash(src)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	must(t, os.Chmod(scriptPath, 0o755))

	hashAfter, _, err := Hash(src)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hashBefore == hashAfter {
		t.Fatal("expected executable bit to change the manifest hash")
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	src := t.TempDir()
	writeGenomeSource(t, src)

	store, err := NewStore(filepath.Join(t.TempDir(), "genomes"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.Materialize(src, "main", 1, "")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if err := store.Verify("main", 1); err != nil {
		t.Fatalf("Verify on fresh genome: %v", err)
	}

	tamperedPath := filepath.Join(store.Dir("main", 1), "prompt.txt")
	must(t, os.WriteFile(tamperedPath, []byte("tampered"), 0o644))

	if err := store.Verify("main", 1); err == nil {
		t.Fatal("expected Verify to detect tampering, got nil error")
	}
}

func TestVerifyIgnoresItsOwnManifestFile(t *testing.T) {
	src := t.TempDir()
	writeGenomeSource(t, src)

	store, err := NewStore(filepath.Join(t.TempDir(), "genomes"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Materialize(src, "experimental", 3, ""); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if err := store.Verify("experimental", 3); err != nil {
		t.Fatalf("manifest.json living alongside the genome files must not corrupt its own hash: %v", err)
	}
}
