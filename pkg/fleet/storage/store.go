// Package storage is the state store (C2): a content-addressed-by-id
// filesystem layout with atomic descriptor writes and a per-host lock file.
// The per-entity CRUD shape (Create, Put, Get, List, Delete) mirrors the
// teacher's pkg/storage/boltdb.go bucket-per-entity pattern, except that
// Create fails on an existing id and Put is the upsert; the mechanism
// underneath is plain os+encoding/json rather than a single embedded KV
// file, because the persisted layout in SPEC_FULL.md §6 requires a literal
// hosts/<id>/data.json tree an operator can inspect directly.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/fm/pkg/fleet/fleeterr"
	"github.com/cuemby/fm/pkg/fleet/types"
)

// Store is the on-disk state store rooted at a single directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating the directory tree if absent.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "hosts"), 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) hostDir(hostID string) string { return filepath.Join(s.root, "hosts", hostID) }

func (s *Store) agentDir(hostID, agentID string) string {
	return filepath.Join(s.hostDir(hostID), "agents", agentID)
}

// writeAtomic writes data to path via a sibling temp file plus rename, so a
// concurrent reader never observes a partial write (P5).
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// CreateHost writes a new host descriptor, failing if one already exists.
func (s *Store) CreateHost(h *types.Host) error {
	path := filepath.Join(s.hostDir(h.ID), "data.json")
	if _, err := os.Stat(path); err == nil {
		return fleeterr.InvalidRequestf("storage.create_host", fmt.Errorf("host %s already exists", h.ID))
	}
	return s.PutHost(h)
}

// PutHost upserts a host descriptor atomically.
func (s *Store) PutHost(h *types.Host) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fleeterr.Internalf("storage.put_host", err)
	}
	path := filepath.Join(s.hostDir(h.ID), "data.json")
	if err := writeAtomic(path, data, 0o644); err != nil {
		return fleeterr.Internalf("storage.put_host", err)
	}
	for _, dir := range []string{"logs", "activity"} {
		os.MkdirAll(filepath.Join(s.hostDir(h.ID), dir), 0o755)
	}
	return nil
}

// GetHost reads a host descriptor by id.
func (s *Store) GetHost(id string) (*types.Host, error) {
	path := filepath.Join(s.hostDir(id), "data.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fleeterr.NotFoundHost("storage.get_host", id)
		}
		return nil, fleeterr.Internalf("storage.get_host", err)
	}
	var h types.Host
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fleeterr.Integrityf("storage.get_host", err)
	}
	return &h, nil
}

// GetHostByName performs a linear scan over all hosts, matching the
// teacher's GetXByName idiom in boltdb.go.
func (s *Store) GetHostByName(name string) (*types.Host, error) {
	hosts, err := s.ListHosts()
	if err != nil {
		return nil, err
	}
	for _, h := range hosts {
		if h.Name == name {
			return h, nil
		}
	}
	return nil, fleeterr.NotFoundHost("storage.get_host_by_name", name)
}

// ListHosts returns all host descriptors, sorted by id for deterministic
// output.
func (s *Store) ListHosts() ([]*types.Host, error) {
	hostsDir := filepath.Join(s.root, "hosts")
	entries, err := os.ReadDir(hostsDir)
	if err != nil {
		return nil, fleeterr.Internalf("storage.list_hosts", err)
	}
	var out []*types.Host
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		h, err := s.GetHost(e.Name())
		if err != nil {
			continue // tolerate a host dir without a readable descriptor
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteHost removes a host's entire state directory. Callers are
// responsible for having destroyed its agents first.
func (s *Store) DeleteHost(id string) error {
	if err := os.RemoveAll(s.hostDir(id)); err != nil {
		return fleeterr.Internalf("storage.delete_host", err)
	}
	return nil
}

// CreateAgent writes a new agent descriptor, failing if one already exists.
func (s *Store) CreateAgent(a *types.Agent) error {
	path := filepath.Join(s.agentDir(a.HostID, a.ID), "data.json")
	if _, err := os.Stat(path); err == nil {
		return fleeterr.InvalidRequestf("storage.create_agent", fmt.Errorf("agent %s already exists", a.ID))
	}
	return s.PutAgent(a)
}

// PutAgent upserts an agent descriptor atomically.
func (s *Store) PutAgent(a *types.Agent) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fleeterr.Internalf("storage.put_agent", err)
	}
	path := filepath.Join(s.agentDir(a.HostID, a.ID), "data.json")
	if err := writeAtomic(path, data, 0o644); err != nil {
		return fleeterr.Internalf("storage.put_agent", err)
	}
	for _, dir := range []string{"work_dir", "logs"} {
		os.MkdirAll(filepath.Join(s.agentDir(a.HostID, a.ID), dir), 0o755)
	}
	return nil
}

// GetAgent reads an agent descriptor by host id and agent id.
func (s *Store) GetAgent(hostID, agentID string) (*types.Agent, error) {
	path := filepath.Join(s.agentDir(hostID, agentID), "data.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fleeterr.NotFoundAgent("storage.get_agent", agentID)
		}
		return nil, fleeterr.Internalf("storage.get_agent", err)
	}
	var a types.Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fleeterr.Integrityf("storage.get_agent", err)
	}
	return &a, nil
}

// FindAgentByName scans every host for an agent with the given name.
func (s *Store) FindAgentByName(name string) (*types.Agent, error) {
	agents, err := s.ListAllAgents()
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, fleeterr.NotFoundAgent("storage.find_agent_by_name", name)
}

// ListAgents returns every agent descriptor under one host.
func (s *Store) ListAgents(hostID string) ([]*types.Agent, error) {
	agentsDir := filepath.Join(s.hostDir(hostID), "agents")
	entries, err := os.ReadDir(agentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fleeterr.Internalf("storage.list_agents", err)
	}
	var out []*types.Agent
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		a, err := s.GetAgent(hostID, e.Name())
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAllAgents returns every agent descriptor across every host.
func (s *Store) ListAllAgents() ([]*types.Agent, error) {
	hosts, err := s.ListHosts()
	if err != nil {
		return nil, err
	}
	var out []*types.Agent
	for _, h := range hosts {
		agents, err := s.ListAgents(h.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, agents...)
	}
	return out, nil
}

// DeleteAgent removes an agent's entire state subtree.
func (s *Store) DeleteAgent(hostID, agentID string) error {
	if err := os.RemoveAll(s.agentDir(hostID, agentID)); err != nil {
		return fleeterr.Internalf("storage.delete_agent", err)
	}
	return nil
}

// TouchActivity updates the mtime (and, for debugging, the content) of an
// activity file under a host's state dir. The mtime is authoritative; the
// idle supervisor never trusts content.
func (s *Store) TouchActivity(hostID string, kind types.ActivityKind) error {
	path := filepath.Join(s.hostDir(hostID), "activity", string(kind))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fleeterr.Internalf("storage.touch_activity", err)
	}
	now := time.Now().Format(time.RFC3339Nano)
	if err := os.WriteFile(path, []byte(now), 0o644); err != nil {
		return fleeterr.Internalf("storage.touch_activity", err)
	}
	return nil
}

// ActivityTime returns the mtime of an activity file, or the zero time if
// it has never been written.
func (s *Store) ActivityTime(hostID string, kind types.ActivityKind) (time.Time, error) {
	path := filepath.Join(s.hostDir(hostID), "activity", string(kind))
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fleeterr.Internalf("storage.activity_time", err)
	}
	return info.ModTime(), nil
}

// Root returns the store's root directory, for components (provisioning,
// gc) that need to address paths directly.
func (s *Store) Root() string { return s.root }

// HostStateDir returns the on-disk directory for a host's state.
func (s *Store) HostStateDir(hostID string) string { return s.hostDir(hostID) }

// AgentStateDir returns the on-disk directory for an agent's state.
func (s *Store) AgentStateDir(hostID, agentID string) string { return s.agentDir(hostID, agentID) }

// AgentWorkDir returns the on-disk workspace directory for an agent.
func (s *Store) AgentWorkDir(hostID, agentID string) string {
	return filepath.Join(s.agentDir(hostID, agentID), "work_dir")
}
