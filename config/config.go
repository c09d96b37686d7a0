// Package config stores named session profiles in a YAML file.
//
// A store holds a template and any number of named profiles. A new profile is
// a deep copy of the template; editing it never changes the template or other
// profiles.
//
//	template:
//	  task: review
//	  capacity: 2
//	profiles:
//	  brain-mri:
//	    task: review
//	    data_root: /data/brain
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/caseflow/codec"
	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/layout"
)

var (
	ErrProfileInvalid  = errors.New("config: profile is invalid")
	ErrProfileExists   = errors.New("config: profile already exists")
	ErrProfileNotFound = errors.New("config: profile not found")
)

// BlobCache selects the resource byte cache backend.
type BlobCache struct {
	Backend   string        `yaml:"backend"` // ristretto, bigcache, gocache, redis or none
	MaxBytes  int64         `yaml:"max_bytes,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
	RedisAddr string        `yaml:"redis_addr,omitempty"`
}

type Profile struct {
	Name          string            `yaml:"-"`
	Task          string            `yaml:"task"`
	DataRoot      string            `yaml:"data_root,omitempty"`
	OutputRoot    string            `yaml:"output_root,omitempty"`
	OutputPattern string            `yaml:"output_pattern,omitempty"`
	Capacity      int               `yaml:"capacity"`
	AutoSave      bool              `yaml:"autosave"`
	Orientation   string            `yaml:"orientation"`
	Horizontal    bool              `yaml:"horizontal"`
	Opacity       float64           `yaml:"opacity"`
	Sidecar       string            `yaml:"sidecar"`
	RequiredKinds []string          `yaml:"required_kinds,omitempty"`
	User          string            `yaml:"user,omitempty"`
	BlobCache     BlobCache         `yaml:"blob_cache"`
	Extra         map[string]string `yaml:"extra,omitempty"`
}

// Default is the template used when a store has none.
func Default() Profile {
	return Profile{
		Task:          "review",
		OutputPattern: "%u/%c_%f",
		Capacity:      2,
		AutoSave:      true,
		Orientation:   layout.Trio.String(),
		Opacity:       0.5,
		Sidecar:       "json",
		BlobCache:     BlobCache{Backend: "ristretto", MaxBytes: 512 << 20, TTL: 30 * time.Minute},
	}
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	p.RequiredKinds = slices.Clone(p.RequiredKinds)
	p.Extra = maps.Clone(p.Extra)
	return p
}

// Verify returns nil if p is usable, otherwise an error wrapping ErrProfileInvalid.
func (p Profile) Verify() error {
	var problems []error
	if p.Task == "" {
		problems = append(problems, errors.New("task is empty"))
	}
	if p.Capacity < 0 {
		problems = append(problems, fmt.Errorf("capacity must be >= 1, got %d", p.Capacity))
	}
	if _, ok := layout.ParseOrientation(p.Orientation); !ok {
		problems = append(problems, fmt.Errorf("orientation %q", p.Orientation))
	}
	if p.Opacity < 0 || p.Opacity > 1 {
		problems = append(problems, fmt.Errorf("opacity %v not in [0,1]", p.Opacity))
	}
	if _, _, err := codec.Named[struct{}](p.Sidecar); err != nil {
		problems = append(problems, err)
	}
	for _, k := range p.RequiredKinds {
		if _, ok := descriptor.ParseKind(k); !ok {
			problems = append(problems, fmt.Errorf("required kind %q", k))
		}
	}
	switch p.BlobCache.Backend {
	case "", "none", "ristretto", "bigcache", "gocache":
	case "redis":
		if p.BlobCache.RedisAddr == "" {
			problems = append(problems, errors.New("blob_cache.redis_addr is required for redis"))
		}
	default:
		problems = append(problems, fmt.Errorf("blob_cache.backend %q", p.BlobCache.Backend))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrProfileInvalid, p.Name, errors.Join(problems...))
	}
	return nil
}

// Kinds parses RequiredKinds. Call Verify first.
func (p Profile) Kinds() []descriptor.Kind {
	out := make([]descriptor.Kind, 0, len(p.RequiredKinds))
	for _, s := range p.RequiredKinds {
		if k, ok := descriptor.ParseKind(s); ok {
			out = append(out, k)
		}
	}
	return out
}

// LayoutOrientation parses Orientation, defaulting to all three planes.
func (p Profile) LayoutOrientation() layout.Orientation {
	if o, ok := layout.ParseOrientation(p.Orientation); ok && o != 0 {
		return o
	}
	return layout.Trio
}

type file struct {
	Template Profile             `yaml:"template"`
	Profiles map[string]*Profile `yaml:"profiles,omitempty"`
	Last     string              `yaml:"last,omitempty"`
}

// Store is a profile file loaded into memory. It is safe for concurrent use.
type Store struct {
	path string

	mu       sync.Mutex
	template Profile
	profiles map[string]Profile
	last     string
}

// Load reads the store at path. A missing file yields an empty store with the
// Default template.
func Load(path string) (*Store, error) {
	s := &Store{path: path, template: Default(), profiles: map[string]Profile{}}
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	f := file{Template: Default()}
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	s.template = f.Template
	s.last = f.Last
	for name, p := range f.Profiles {
		if p == nil {
			continue
		}
		cp := p.Clone()
		cp.Name = name
		s.profiles[name] = cp
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Template returns a copy of the template.
func (s *Store) Template() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template.Clone()
}

// NewProfile copies the template under name and stores it.
func (s *Store) NewProfile(name string) (Profile, error) {
	if name == "" {
		return Profile{}, fmt.Errorf("%w: empty name", ErrProfileInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[name]; ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileExists, name)
	}
	p := s.template.Clone()
	p.Name = name
	s.profiles[name] = p
	return p.Clone(), nil
}

// Get returns a copy of the named profile.
func (s *Store) Get(name string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p.Clone(), nil
}

// Put verifies p and replaces the profile named p.Name.
func (s *Store) Put(p Profile) error {
	if err := p.Verify(); err != nil {
		return err
	}
	s.mu.Lock()
	s.profiles[p.Name] = p.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(name string) {
	s.mu.Lock()
	delete(s.profiles, name)
	if s.last == name {
		s.last = ""
	}
	s.mu.Unlock()
}

// Names returns the profile names, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.profiles))
	for n := range s.profiles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Last is the most recently used profile, "" if none.
func (s *Store) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Store) SetLast(name string) {
	s.mu.Lock()
	s.last = name
	s.mu.Unlock()
}

// Save writes the store to its path via a temp file and rename.
func (s *Store) Save() error {
	s.mu.Lock()
	f := file{Template: s.template.Clone(), Last: s.last, Profiles: make(map[string]*Profile, len(s.profiles))}
	for n, p := range s.profiles {
		cp := p.Clone()
		f.Profiles[n] = &cp
	}
	s.mu.Unlock()

	buf, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".caseflow-config-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
