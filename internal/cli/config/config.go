package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/cfactory/internal/tooling/build"
)

// FileName is the base name of the configuration file (.yml or .yaml)
const FileName = "cfactory"

// EnvPrefix prefixes environment overrides, e.g. CFACTORY_COMPILER
const EnvPrefix = "CFACTORY"

// Config represents the cfactory configuration
type Config struct {
	Compiler        string   `mapstructure:"compiler" yaml:"compiler"`
	CompilerOptions []string `mapstructure:"compiler_options" yaml:"compiler_options"`
	LinkerOptions   []string `mapstructure:"linker_options" yaml:"linker_options"`
	Extension       string   `mapstructure:"extension" yaml:"extension"`
	// Root is the project root; empty means the parent of the invocation directory
	Root      string `mapstructure:"root" yaml:"root,omitempty"`
	BuildDir  string `mapstructure:"build_dir" yaml:"build_dir"`
	CacheFile string `mapstructure:"cache_file" yaml:"cache_file"`
	// ProjectName names the executable; empty means the base name of Root
	ProjectName string   `mapstructure:"project_name" yaml:"project_name,omitempty"`
	Platform    string   `mapstructure:"platform" yaml:"platform,omitempty"`
	IgnoreDirs  []string `mapstructure:"ignore_dirs" yaml:"ignore_dirs"`

	// dir is the invocation directory the configuration was loaded from
	dir string
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		Compiler:        "clang++",
		CompilerOptions: []string{},
		LinkerOptions:   []string{},
		Extension:       "cpp",
		BuildDir:        "build",
		CacheFile:       build.DefaultCacheFileName,
		IgnoreDirs:      []string{".git"},
	}
}

// Load loads the configuration from cfactory.yml or cfactory.yaml in the
// current directory.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom loads the configuration from dir, which is also taken as the
// invocation directory for path resolution.
func LoadFrom(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	v := viper.New()

	// Set defaults
	defaults := Default()
	v.SetDefault("compiler", defaults.Compiler)
	v.SetDefault("compiler_options", defaults.CompilerOptions)
	v.SetDefault("linker_options", defaults.LinkerOptions)
	v.SetDefault("extension", defaults.Extension)
	v.SetDefault("root", "")
	v.SetDefault("build_dir", defaults.BuildDir)
	v.SetDefault("cache_file", defaults.CacheFile)
	v.SetDefault("project_name", "")
	v.SetDefault("platform", "")
	v.SetDefault("ignore_dirs", defaults.IgnoreDirs)

	// Set config name and paths
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(absDir)

	// Enable environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.dir = absDir

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Dir returns the invocation directory; the fingerprint cache lives here
func (c *Config) Dir() string {
	if c.dir == "" {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
	}
	return c.dir
}

// ProjectRoot returns the absolute project root
func (c *Config) ProjectRoot() string {
	if c.Root == "" {
		return filepath.Dir(c.Dir())
	}
	if filepath.IsAbs(c.Root) {
		return filepath.Clean(c.Root)
	}
	return filepath.Join(c.Dir(), c.Root)
}

// BuildPath returns the absolute build directory, resolved against the project root
func (c *Config) BuildPath() string {
	if filepath.IsAbs(c.BuildDir) {
		return filepath.Clean(c.BuildDir)
	}
	return filepath.Join(c.ProjectRoot(), c.BuildDir)
}

// CachePath returns the location of the fingerprint cache
func (c *Config) CachePath() string {
	return filepath.Join(c.Dir(), c.CacheFile)
}

// BuildOptions converts the configuration into build system options
func (c *Config) BuildOptions() *build.Options {
	platform := c.Platform
	if platform == "" {
		platform = runtime.GOOS
	}

	return &build.Options{
		Compiler:        c.Compiler,
		CompilerOptions: append([]string{}, c.CompilerOptions...),
		LinkerOptions:   append([]string{}, c.LinkerOptions...),
		ProjectRoot:     c.ProjectRoot(),
		BuildDir:        c.BuildPath(),
		CacheDir:        c.Dir(),
		CacheFileName:   c.CacheFile,
		ProjectName:     c.ProjectName,
		Platform:        platform,
		ObjectExtension: "o",
		IgnoreDirs:      append([]string{}, c.IgnoreDirs...),
	}
}

// YAML renders the configuration as a cfactory.yml document
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Write saves the configuration to path. An existing file is only
// replaced when overwrite is set.
func Write(path string, c *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := c.YAML()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FindFile returns the configuration file in dir, if any
func FindFile(dir string) (string, bool) {
	for _, ext := range []string{".yml", ".yaml"} {
		path := filepath.Join(dir, FileName+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// NormalizeExtension strips a leading dot from ext and rejects values that
// are empty or would act as a glob or path
func NormalizeExtension(ext string) (string, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "", fmt.Errorf("extension must not be empty")
	}
	if strings.ContainsAny(ext, `/\*?[`) {
		return "", fmt.Errorf("extension must be a plain file extension, got: %s", ext)
	}
	return ext, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Compiler) == "" {
		return fmt.Errorf("compiler must not be empty")
	}

	ext, err := NormalizeExtension(cfg.Extension)
	if err != nil {
		return err
	}
	cfg.Extension = ext

	if cfg.BuildDir == "" {
		return fmt.Errorf("build_dir must not be empty")
	}

	if cfg.CacheFile == "" {
		return fmt.Errorf("cache_file must not be empty")
	}
	if filepath.Base(cfg.CacheFile) != cfg.CacheFile {
		return fmt.Errorf("cache_file must be a file name, got: %s", cfg.CacheFile)
	}

	return nil
}
