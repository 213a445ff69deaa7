// Package store keeps client-local state on disk: draft orders between
// sittings, and compressed archive bundles of whole games.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"diplomacy/client/internal/game"
)

var bundleNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	phasesFile   = "phases.jsonl.sz"
	snapshotFile = "snapshot.json.zst"
	manifestFile = "manifest.json"
)

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version      int      `json:"version"`
	CreatedAt    string   `json:"created_at"`
	GameID       string   `json:"game_id"`
	Map          string   `json:"map"`
	Rules        []string `json:"rules"`
	PhaseCount   int      `json:"phase_count"`
	PhasesPath   string   `json:"phases_path"`
	SnapshotPath string   `json:"snapshot_path"`
}

// ArchiveStore persists game archives, one directory per game, each with
// a snappy-framed phase journal and a zstd full snapshot.
type ArchiveStore struct {
	root string
	now  func() time.Time
}

// NewArchiveStore prepares the archive root.
func NewArchiveStore(root string, clock func() time.Time) (*ArchiveStore, error) {
	if root == "" {
		return nil, fmt.Errorf("archive root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &ArchiveStore{root: root, now: clock}, nil
}

func (s *ArchiveStore) bundleDir(gameID string) string {
	cleaned := bundleNameCleaner.ReplaceAllString(gameID, "")
	if cleaned == "" {
		cleaned = "game"
	}
	return filepath.Join(s.root, cleaned)
}

// Save writes the archive bundle, replacing any previous save of the
// same game, and returns the bundle directory.
func (s *ArchiveStore) Save(archive game.Archive) (string, error) {
	if s == nil {
		return "", fmt.Errorf("archive store not initialised")
	}
	if archive.ID == "" {
		return "", fmt.Errorf("archive has no game id")
	}
	dir := s.bundleDir(archive.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	//1.- Phase journal: one JSON line per phase through a snappy frame.
	phaseFile, err := os.Create(filepath.Join(dir, phasesFile))
	if err != nil {
		return "", err
	}
	phaseStream := snappy.NewBufferedWriter(phaseFile)
	for _, pd := range archive.Phases {
		line, err := json.Marshal(pd)
		if err != nil {
			phaseStream.Close()
			phaseFile.Close()
			return "", err
		}
		if _, err := phaseStream.Write(append(line, '\n')); err != nil {
			phaseStream.Close()
			phaseFile.Close()
			return "", err
		}
	}
	if err := phaseStream.Close(); err != nil {
		phaseFile.Close()
		return "", err
	}
	if err := phaseFile.Close(); err != nil {
		return "", err
	}

	//2.- Full snapshot under zstd, for one-shot consumers.
	snapFile, err := os.Create(filepath.Join(dir, snapshotFile))
	if err != nil {
		return "", err
	}
	snapStream, err := zstd.NewWriter(snapFile)
	if err != nil {
		snapFile.Close()
		return "", err
	}
	blob, err := json.Marshal(archive)
	if err == nil {
		_, err = snapStream.Write(blob)
	}
	if cerr := snapStream.Close(); err == nil {
		err = cerr
	}
	if cerr := snapFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}

	//3.- Manifest last, so a bundle with a manifest is always complete.
	manifest := Manifest{
		Version:      1,
		CreatedAt:    s.now().UTC().Format(time.RFC3339Nano),
		GameID:       archive.ID,
		Map:          archive.Map,
		Rules:        archive.Rules,
		PhaseCount:   len(archive.Phases),
		PhasesPath:   phasesFile,
		SnapshotPath: snapshotFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

// Load rebuilds an archive from the phase journal of a saved game.
func (s *ArchiveStore) Load(gameID string) (game.Archive, error) {
	if s == nil {
		return game.Archive{}, fmt.Errorf("archive store not initialised")
	}
	dir := s.bundleDir(gameID)
	manifest, err := s.readManifest(dir)
	if err != nil {
		return game.Archive{}, err
	}

	phaseFile, err := os.Open(filepath.Join(dir, manifest.PhasesPath))
	if err != nil {
		return game.Archive{}, err
	}
	defer phaseFile.Close()

	archive := game.Archive{ID: manifest.GameID, Map: manifest.Map, Rules: manifest.Rules}
	scanner := bufio.NewScanner(snappy.NewReader(phaseFile))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		var pd game.PhaseData
		if err := json.Unmarshal(scanner.Bytes(), &pd); err != nil {
			return game.Archive{}, fmt.Errorf("bundle %s: corrupt phase line: %w", dir, err)
		}
		archive.Phases = append(archive.Phases, pd)
	}
	if err := scanner.Err(); err != nil {
		return game.Archive{}, err
	}
	if len(archive.Phases) != manifest.PhaseCount {
		return game.Archive{}, fmt.Errorf("bundle %s: %d phases on disk, manifest says %d",
			dir, len(archive.Phases), manifest.PhaseCount)
	}
	return archive, nil
}

// LoadSnapshot reads the one-shot zstd snapshot of a saved game.
func (s *ArchiveStore) LoadSnapshot(gameID string) (game.Archive, error) {
	if s == nil {
		return game.Archive{}, fmt.Errorf("archive store not initialised")
	}
	dir := s.bundleDir(gameID)
	manifest, err := s.readManifest(dir)
	if err != nil {
		return game.Archive{}, err
	}

	snapFile, err := os.Open(filepath.Join(dir, manifest.SnapshotPath))
	if err != nil {
		return game.Archive{}, err
	}
	defer snapFile.Close()
	decoder, err := zstd.NewReader(snapFile)
	if err != nil {
		return game.Archive{}, err
	}
	defer decoder.Close()

	var archive game.Archive
	if err := json.NewDecoder(decoder).Decode(&archive); err != nil {
		return game.Archive{}, fmt.Errorf("bundle %s: corrupt snapshot: %w", dir, err)
	}
	return archive, nil
}

// List returns the manifests of every saved game.
func (s *ArchiveStore) List() ([]Manifest, error) {
	if s == nil {
		return nil, fmt.Errorf("archive store not initialised")
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var manifests []Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifest, err := s.readManifest(filepath.Join(s.root, entry.Name()))
		if err != nil {
			continue // incomplete bundle, skip
		}
		manifests = append(manifests, manifest)
	}
	return manifests, nil
}

func (s *ArchiveStore) readManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("bundle %s: corrupt manifest: %w", dir, err)
	}
	return manifest, nil
}
