package tuning

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

const (
	GeneratorHash    = "hash"
	GeneratorSimplex = "simplex"
)

type Tuning struct {
	Seed      int64  `yaml:"seed" toml:"seed"`
	Generator string `yaml:"generator" toml:"generator"`

	ChunkSize   int `yaml:"chunk_size" toml:"chunk_size"`
	ChunkHeight int `yaml:"chunk_height" toml:"chunk_height"`

	ViewDistance  int   `yaml:"view_distance" toml:"view_distance"`
	Workers       int   `yaml:"workers" toml:"workers"`
	ColumnWorkers int   `yaml:"column_workers" toml:"column_workers"`
	FallbackSeed  int64 `yaml:"fallback_seed" toml:"fallback_seed"`
	// PaletteTop is the voxel row at the top of the colour palette.
	PaletteTop    int   `yaml:"palette_top" toml:"palette_top"`
}

// fallbackSeedMix derives the fallback seed when none is configured.
const fallbackSeedMix = 0x5f3759df

func Defaults() Tuning {
	return Tuning{
		Seed:          1337,
		Generator:     GeneratorHash,
		ChunkSize:     16,
		ChunkHeight:   96,
		ViewDistance:  6,
		Workers:       runtime.NumCPU(),
		ColumnWorkers: 8,
		PaletteTop:    56,
	}
}

// Load reads yaml (.yaml, .yml) or toml (.toml) over Defaults, so absent
// keys keep their default and explicit zeros stay zero.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("%s: %w", name, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("%s: %w", name, err)
		}
	default:
		return t, fmt.Errorf("%s: unsupported config format", name)
	}
	t.Normalize()
	return t, t.Validate()
}

// Normalize tidies the generator name and replaces zero values that can
// never be valid. Seed, view distance and fallback seed are left alone:
// zero is meaningful for each.
func (t *Tuning) Normalize() {
	d := Defaults()
	t.Generator = strings.ToLower(strings.TrimSpace(t.Generator))
	if t.Generator == "" {
		t.Generator = d.Generator
	}
	if t.ChunkSize == 0 {
		t.ChunkSize = d.ChunkSize
	}
	if t.ChunkHeight == 0 {
		t.ChunkHeight = d.ChunkHeight
	}
	if t.Workers == 0 {
		t.Workers = d.Workers
	}
	if t.ColumnWorkers == 0 {
		t.ColumnWorkers = d.ColumnWorkers
	}
	if t.PaletteTop == 0 {
		t.PaletteTop = d.PaletteTop
	}
}

// EffectiveFallbackSeed is the configured fallback seed, or one derived
// from the current Seed when unset. Call it after flag overrides.
func (t Tuning) EffectiveFallbackSeed() int64 {
	if t.FallbackSeed != 0 {
		return t.FallbackSeed
	}
	return t.Seed ^ fallbackSeedMix
}

func (t Tuning) Validate() error {
	var errs []error
	switch t.Generator {
	case GeneratorHash, GeneratorSimplex:
	default:
		errs = append(errs, fmt.Errorf("generator %q: want %s or %s", t.Generator, GeneratorHash, GeneratorSimplex))
	}
	if t.ChunkSize < 1 || t.ChunkSize > 64 {
		errs = append(errs, fmt.Errorf("chunk_size %d out of range [1,64]", t.ChunkSize))
	}
	if t.ChunkHeight < 2 || t.ChunkHeight > 512 {
		errs = append(errs, fmt.Errorf("chunk_height %d out of range [2,512]", t.ChunkHeight))
	}
	if t.ViewDistance < 0 || t.ViewDistance > 32 {
		errs = append(errs, fmt.Errorf("view_distance %d out of range [0,32]", t.ViewDistance))
	}
	if t.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive"))
	}
	if t.ColumnWorkers < 1 {
		errs = append(errs, fmt.Errorf("column_workers must be positive"))
	}
	if t.PaletteTop < 1 {
		errs = append(errs, fmt.Errorf("palette_top must be positive"))
	}
	return errors.Join(errs...)
}
