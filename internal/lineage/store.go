package lineage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/evolvd/evolvd/internal/clock"
)

// Store is the on-disk lineage DAG rooted at a single directory:
//
//	<root>/lineage.log          append-only JSONL, one Entry per line
//	<root>/lineage_index.json   {by_id, children, next_gen} rebuilt from the log
//	<root>/lineage_state.json   {active_id, entry_status} mutable overlay
//	<root>/current.txt          the active branch name
//	<root>/branches.json        branch name -> Branch
//
// The log itself is write-once: every append is a new line, never edited.
// Status transitions (Archived on supersession, Active on rollback) are not
// additional log lines; they live in the lineage_state.json overlay so the
// log's append-only contract holds while "exactly one Active entry per
// branch" can still be enforced.
//
// All mutating operations hold an exclusive flock on lineage.log.lock for
// their duration, so concurrent writers (the running supervisor, and the CLI,
// which opens this store directly for `rollback` and `history`) never
// interleave writes.
type Store struct {
	root string

	mu    sync.Mutex // protects the in-memory index cache
	index *index
}

type index struct {
	ByID        map[int]Entry      `json:"by_id"`
	Children    map[int][]int      `json:"children"`
	NextID      int                `json:"next_id"`
	NextGen     map[string]uint32  `json:"next_gen"`
	Branches    map[string]Branch  `json:"branches"`
	Current     string             `json:"current"`
	ActiveID    map[string]int     `json:"-"`
	EntryStatus map[int]Status     `json:"-"`
}

func newIndex() *index {
	return &index{
		ByID:        make(map[int]Entry),
		Children:    make(map[int][]int),
		NextGen:     make(map[string]uint32),
		Branches:    make(map[string]Branch),
		ActiveID:    make(map[string]int),
		EntryStatus: make(map[int]Status),
		NextID:      1,
	}
}

// lineageState is the persisted shape of the mutable status overlay.
type lineageState struct {
	ActiveID    map[string]int `json:"active_id"`
	EntryStatus map[int]Status `json:"entry_status"`
}

// Open opens (or initializes) a lineage store at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lineage: create store dir %s: %w", dir, err)
	}
	s := &Store{root: dir}
	idx, err := s.rebuildIndex()
	if err != nil {
		return nil, err
	}
	s.index = idx
	return s, nil
}

func (s *Store) logPath() string      { return filepath.Join(s.root, "lineage.log") }
func (s *Store) lockPath() string     { return filepath.Join(s.root, "lineage.log.lock") }
func (s *Store) indexPath() string    { return filepath.Join(s.root, "lineage_index.json") }
func (s *Store) statePath() string    { return filepath.Join(s.root, "lineage_state.json") }
func (s *Store) currentPath() string  { return filepath.Join(s.root, "current.txt") }
func (s *Store) branchesPath() string { return filepath.Join(s.root, "branches.json") }

func (s *Store) lock() (*os.File, error) {
	lf, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lineage: open lock file: %w", err)
	}
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		lf.Close()
		return nil, fmt.Errorf("lineage: flock: %w", err)
	}
	return lf, nil
}

func (s *Store) unlock(lf *os.File) {
	unix.Flock(int(lf.Fd()), unix.LOCK_UN)
	lf.Close()
}

// rebuildIndex replays lineage.log from scratch for the structural fields
// (by-id, children, next-id, next-generation-per-branch), then overlays the
// persisted branches.json/current.txt/lineage_state.json files, which carry
// the mutable state (status, which entry is active) that the append-only
// log cannot represent by itself.
func (s *Store) rebuildIndex() (*index, error) {
	idx := newIndex()

	f, err := os.Open(s.logPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("lineage: open log: %w", err)
		}
	} else {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				return nil, fmt.Errorf("lineage: corrupt log line: %w", err)
			}
			idx.ByID[entry.ID] = entry
			if entry.ParentID != 0 {
				idx.Children[entry.ParentID] = append(idx.Children[entry.ParentID], entry.ID)
			}
			if entry.ID >= idx.NextID {
				idx.NextID = entry.ID + 1
			}
			if entry.Generation >= idx.NextGen[entry.Branch] {
				idx.NextGen[entry.Branch] = entry.Generation + 1
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("lineage: scan log: %w", err)
		}
	}

	if err := s.loadPersistedState(idx); err != nil {
		return nil, err
	}

	// Apply the status overlay on top of each entry's at-creation status.
	for id, st := range idx.EntryStatus {
		if e, ok := idx.ByID[id]; ok {
			e.Status = st
			idx.ByID[id] = e
		}
	}
	return idx, nil
}

func (s *Store) loadPersistedState(idx *index) error {
	if data, err := os.ReadFile(s.branchesPath()); err == nil {
		var branches map[string]Branch
		if err := json.Unmarshal(data, &branches); err != nil {
			return fmt.Errorf("lineage: unmarshal branches.json: %w", err)
		}
		idx.Branches = branches
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("lineage: read branches.json: %w", err)
	}

	if data, err := os.ReadFile(s.currentPath()); err == nil {
		idx.Current = string(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("lineage: read current.txt: %w", err)
	}

	if data, err := os.ReadFile(s.statePath()); err == nil {
		var st lineageState
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("lineage: unmarshal lineage_state.json: %w", err)
		}
		if st.ActiveID != nil {
			idx.ActiveID = st.ActiveID
		}
		if st.EntryStatus != nil {
			idx.EntryStatus = st.EntryStatus
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("lineage: read lineage_state.json: %w", err)
	}
	return nil
}

func (s *Store) persistIndexCache() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("lineage: marshal index cache: %w", err)
	}
	return clock.WriteFileAtomic(s.indexPath(), data, 0o644)
}

func (s *Store) persistBranches() error {
	data, err := json.MarshalIndent(s.index.Branches, "", "  ")
	if err != nil {
		return fmt.Errorf("lineage: marshal branches: %w", err)
	}
	return clock.WriteFileAtomic(s.branchesPath(), data, 0o644)
}

func (s *Store) persistState() error {
	st := lineageState{ActiveID: s.index.ActiveID, EntryStatus: s.index.EntryStatus}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("lineage: marshal lineage state: %w", err)
	}
	return clock.WriteFileAtomic(s.statePath(), data, 0o644)
}

// activate marks entry as Active on its branch, archiving whatever entry was
// previously active there. Must be called with s.mu held and s.index fresh.
func (s *Store) activate(idx *index, entry Entry) {
	if prev, ok := idx.ActiveID[entry.Branch]; ok && prev != entry.ID {
		if old, ok := idx.ByID[prev]; ok {
			old.Status = StatusArchived
			idx.ByID[prev] = old
		}
		idx.EntryStatus[prev] = StatusArchived
	}
	entry.Status = StatusActive
	idx.ByID[entry.ID] = entry
	idx.EntryStatus[entry.ID] = StatusActive
	idx.ActiveID[entry.Branch] = entry.ID
}

// Append adds a new entry to the lineage DAG, assigning it an ID and the
// next generation number on its branch. Callers set entry.Status to
// StatusActive for ordinary generation growth (archiving the branch's prior
// active entry) or StatusCreated for a branch root that isn't yet the
// relaunch target. It returns the fully populated entry.
func (s *Store) Append(entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := s.lock()
	if err != nil {
		return Entry{}, err
	}
	defer s.unlock(lf)

	idx, err := s.rebuildIndex()
	if err != nil {
		return Entry{}, err
	}
	s.index = idx

	if entry.Branch == "" {
		entry.Branch = "main"
	}
	if entry.ParentID != 0 {
		if _, ok := idx.ByID[entry.ParentID]; !ok {
			return Entry{}, fmt.Errorf("lineage: parent id %d not found", entry.ParentID)
		}
	}
	if entry.Status == "" {
		entry.Status = StatusActive
	}
	entry.ID = idx.NextID
	entry.Generation = idx.NextGen[entry.Branch]
	entry.CreatedAt = clock.System.Now()

	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("lineage: marshal entry: %w", err)
	}
	f, err := os.OpenFile(s.logPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("lineage: open log for append: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return Entry{}, fmt.Errorf("lineage: append entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return Entry{}, fmt.Errorf("lineage: sync log: %w", err)
	}
	f.Close()

	idx.ByID[entry.ID] = entry
	if entry.ParentID != 0 {
		idx.Children[entry.ParentID] = append(idx.Children[entry.ParentID], entry.ID)
	}
	idx.NextID = entry.ID + 1
	idx.NextGen[entry.Branch] = entry.Generation + 1

	branch := idx.Branches[entry.Branch]
	branch.Name = entry.Branch
	branch.HeadID = entry.ID
	idx.Branches[entry.Branch] = branch

	if entry.Status == StatusActive {
		s.activate(idx, entry)
	} else {
		idx.EntryStatus[entry.ID] = entry.Status
	}

	if err := s.persistIndexCache(); err != nil {
		return Entry{}, err
	}
	if err := s.persistBranches(); err != nil {
		return Entry{}, err
	}
	if err := s.persistState(); err != nil {
		return Entry{}, err
	}
	if idx.Current == "" {
		if err := s.setActiveLocked(entry.Branch); err != nil {
			return Entry{}, err
		}
	}
	return idx.ByID[entry.ID], nil
}

// Get returns a single entry by ID.
func (s *Store) Get(id int) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index.ByID[id]
	return e, ok
}

// GetByGeneration returns the entry at (branch, generation), if any.
func (s *Store) GetByGeneration(branch string, gen uint32) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.index.ByID {
		if e.Branch == branch && e.Generation == gen {
			return e, true
		}
	}
	return Entry{}, false
}

// ChildrenOf returns the IDs of all direct children of id, in append order.
func (s *Store) ChildrenOf(id int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := s.index.Children[id]
	out := make([]int, len(children))
	copy(out, children)
	return out
}

// Branches returns a snapshot of all known branches.
func (s *Store) Branches() []Branch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Branch, 0, len(s.index.Branches))
	for _, b := range s.index.Branches {
		out = append(out, b)
	}
	return out
}

// NextGeneration returns the next generation number that would be assigned
// to an Append on branch, without reserving it.
func (s *Store) NextGeneration(branch string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.NextGen[branch]
}

// CreateBranch forks a new named branch from the entry at
// (fromBranch, fromGeneration). Per the lineage's DAG semantics, forking
// does not start the new branch's generation counter at zero: the fork
// point's own generation number is appended as the new branch's root entry,
// with status Created (it is not yet the branch's relaunch target — that
// only happens once the supervisor or an explicit rollback activates it).
func (s *Store) CreateBranch(name string, fromBranch string, fromGeneration uint32, description string) (Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := s.lock()
	if err != nil {
		return Branch{}, err
	}
	defer s.unlock(lf)

	idx, err := s.rebuildIndex()
	if err != nil {
		return Branch{}, err
	}
	s.index = idx

	if _, exists := idx.Branches[name]; exists {
		return Branch{}, fmt.Errorf("lineage: branch %q already exists", name)
	}
	fromEntry, ok := s.getByGenerationLocked(fromBranch, fromGeneration)
	if !ok {
		return Branch{}, fmt.Errorf("lineage: fork point %s/%d not found", fromBranch, fromGeneration)
	}

	// Seed the new branch's generation counter at the fork point's own
	// generation, so (experimental, 3) forked from (main, 3) keeps the "3".
	idx.NextGen[name] = fromEntry.Generation

	root := Entry{
		ParentID:    fromEntry.ID,
		Branch:      name,
		GenomeHash:  fromEntry.GenomeHash,
		Status:      StatusCreated,
		Description: description,
	}
	appended, err := s.appendLocked(idx, root)
	if err != nil {
		return Branch{}, err
	}

	b := idx.Branches[name]
	b.Name = name
	b.RootGeneration = appended.Generation
	b.ParentBranch = fromBranch
	b.ParentGeneration = fromEntry.Generation
	b.Description = description
	b.HeadID = appended.ID
	idx.Branches[name] = b

	if err := s.persistBranches(); err != nil {
		return Branch{}, err
	}
	return b, nil
}

// getByGenerationLocked is GetByGeneration without re-acquiring s.mu, for use
// by callers that already hold it.
func (s *Store) getByGenerationLocked(branch string, gen uint32) (Entry, bool) {
	for _, e := range s.index.ByID {
		if e.Branch == branch && e.Generation == gen {
			return e, true
		}
	}
	return Entry{}, false
}

// appendLocked performs the on-disk append for entry assuming s.mu and the
// lineage.log flock are already held and s.index is fresh; used by
// CreateBranch to append the new branch's root entry without re-entering the
// full Append locking dance.
func (s *Store) appendLocked(idx *index, entry Entry) (Entry, error) {
	if entry.ParentID != 0 {
		if _, ok := idx.ByID[entry.ParentID]; !ok {
			return Entry{}, fmt.Errorf("lineage: parent id %d not found", entry.ParentID)
		}
	}
	entry.ID = idx.NextID
	entry.Generation = idx.NextGen[entry.Branch]
	entry.CreatedAt = clock.System.Now()

	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("lineage: marshal entry: %w", err)
	}
	f, err := os.OpenFile(s.logPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("lineage: open log for append: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return Entry{}, fmt.Errorf("lineage: append entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return Entry{}, fmt.Errorf("lineage: sync log: %w", err)
	}
	f.Close()

	idx.ByID[entry.ID] = entry
	if entry.ParentID != 0 {
		idx.Children[entry.ParentID] = append(idx.Children[entry.ParentID], entry.ID)
	}
	idx.NextID = entry.ID + 1
	idx.NextGen[entry.Branch] = entry.Generation + 1

	if entry.Status == StatusActive {
		s.activate(idx, entry)
	} else {
		idx.EntryStatus[entry.ID] = entry.Status
	}

	if err := s.persistIndexCache(); err != nil {
		return Entry{}, err
	}
	if err := s.persistState(); err != nil {
		return Entry{}, err
	}
	return idx.ByID[entry.ID], nil
}

// SetActive makes branch the one the supervisor relaunches against on
// restart; it must already exist.
func (s *Store) SetActive(branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock(lf)

	idx, err := s.rebuildIndex()
	if err != nil {
		return err
	}
	s.index = idx
	return s.setActiveLocked(branch)
}

func (s *Store) setActiveLocked(branch string) error {
	if _, ok := s.index.Branches[branch]; !ok {
		return fmt.Errorf("lineage: branch %q not found", branch)
	}
	s.index.Current = branch
	if err := clock.WriteFileAtomic(s.currentPath(), []byte(branch), 0o644); err != nil {
		return fmt.Errorf("lineage: write current.txt: %w", err)
	}
	return nil
}

// Current returns the current branch and the entry currently Active on it —
// the (branch, generation) the supervisor relaunches against.
func (s *Store) Current() (Branch, Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	branch, ok := s.index.Branches[s.index.Current]
	if !ok {
		return Branch{}, Entry{}, false
	}
	activeID, ok := s.index.ActiveID[branch.Name]
	if !ok {
		return branch, Entry{}, false
	}
	entry, ok := s.index.ByID[activeID]
	return branch, entry, ok
}

// Rollback flips the Active entry on branch back to the entry at
// toGeneration. The previously active entry becomes Archived and
// toGeneration's entry becomes Active; no entry is removed or edited in the
// append-only log, only the status overlay changes. Per spec, rollback
// requires the daemon be stopped first — this Store has no way to check
// that itself; callers (the CLI) enforce it before calling Rollback.
func (s *Store) Rollback(branch string, toGeneration uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock(lf)

	idx, err := s.rebuildIndex()
	if err != nil {
		return err
	}
	s.index = idx

	if _, ok := idx.Branches[branch]; !ok {
		return fmt.Errorf("lineage: branch %q not found", branch)
	}
	target, ok := s.getByGenerationLocked(branch, toGeneration)
	if !ok {
		return fmt.Errorf("lineage: rollback target %s/%d not found", branch, toGeneration)
	}

	s.activate(idx, target)

	if err := s.persistIndexCache(); err != nil {
		return err
	}
	return s.persistState()
}
