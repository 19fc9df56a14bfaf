package stress

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/llxisdsh/parkx"
)

// Backend names accepted in a Profile.
const (
	BackendDefault = "default"
	BackendTable   = "table"
	BackendOS      = "os"
)

// Workload names accepted in a Profile.
const (
	WorkloadMutex   = "mutex"
	WorkloadRWLock  = "rwlock"
	WorkloadCondVar = "condvar"
	WorkloadChannel = "channel"
	WorkloadOneshot = "oneshot"
)

// AllWorkloads lists every workload in the order Run executes them.
var AllWorkloads = []string{
	WorkloadMutex,
	WorkloadRWLock,
	WorkloadCondVar,
	WorkloadChannel,
	WorkloadOneshot,
}

var ErrInvalidProfile = errors.New("invalid stress profile")

// Profile configures a stress run. It is usually loaded from YAML:
//
//	backend: table
//	goroutines: 8
//	iterations: 10000
//	timeout: 30s
//	seed: 1
//	workloads: [mutex, rwlock]
type Profile struct {
	Backend    string        `yaml:"backend"`
	Goroutines int           `yaml:"goroutines"`
	Iterations int           `yaml:"iterations"`
	Timeout    time.Duration `yaml:"timeout"`
	Seed       uint64        `yaml:"seed"`
	Workloads  []string      `yaml:"workloads"`
}

// DefaultProfile returns the profile used when no file is given.
func DefaultProfile() Profile {
	return Profile{
		Backend:    BackendDefault,
		Goroutines: 8,
		Iterations: 10000,
		Timeout:    30 * time.Second,
		Seed:       1,
		Workloads:  slices.Clone(AllWorkloads),
	}
}

// LoadProfile decodes a YAML profile. Fields missing from the document keep
// their DefaultProfile values.
func LoadProfile(r io.Reader) (Profile, error) {
	p := DefaultProfile()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, p.Validate()
}

// LoadProfileFile reads a YAML profile from path.
func LoadProfileFile(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()
	return LoadProfile(f)
}

// Validate reports the first problem with p.
func (p Profile) Validate() error {
	switch p.Backend {
	case BackendDefault, BackendTable, BackendOS:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidProfile, p.Backend)
	}
	if p.Goroutines < 2 {
		return fmt.Errorf("%w: goroutines must be at least 2, got %d", ErrInvalidProfile, p.Goroutines)
	}
	if p.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidProfile, p.Iterations)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidProfile, p.Timeout)
	}
	if len(p.Workloads) == 0 {
		return fmt.Errorf("%w: no workloads", ErrInvalidProfile)
	}
	for _, w := range p.Workloads {
		if !slices.Contains(AllWorkloads, w) {
			return fmt.Errorf("%w: unknown workload %q", ErrInvalidProfile, w)
		}
	}
	return nil
}

// Futex returns the wait/wake backend named by p.Backend.
func (p Profile) Futex() (parkx.Futex, error) {
	switch p.Backend {
	case BackendTable:
		return &parkx.ParkTable{}, nil
	case BackendOS:
		return parkx.NewOSFutex()
	default:
		return parkx.DefaultFutex(), nil
	}
}
