package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/waypoint/internal/sources/bib"
	"github.com/starford/waypoint/internal/sources/joplin"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var editorSchemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://$`)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Index   IndexConfig       `yaml:"index"`
	Sources SourcesConfig     `yaml:"sources"`
	Watch   WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Sources.Validate(); err != nil {
		return err
	}
	return c.Watch.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// IndexConfig controls how sources are scanned.
//
// Workers is the org-roam file parallelism: -1 processes files one by one,
// 0 uses one worker per CPU.
type IndexConfig struct {
	Workers      int      `yaml:"workers"`
	EditorScheme string   `yaml:"editor_scheme"`
	Ignored      []string `yaml:"ignored"`
	Follow       bool     `yaml:"follow"`
	OnStart      bool     `yaml:"on_start"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(-1)),
		validation.Field(&c.EditorScheme, validation.Match(editorSchemeRe).Error("must look like \"scheme://\"")),
	)
}

// SourcesConfig groups per-source settings. A source runs when it is
// enabled.
type SourcesConfig struct {
	OrgRoam OrgRoamConfig `yaml:"orgroam"`
	Bib     BibConfig     `yaml:"bib"`
	Joplin  JoplinConfig  `yaml:"joplin"`
}

// Validate validates every source section.
func (c *SourcesConfig) Validate() error {
	if err := c.OrgRoam.Validate(); err != nil {
		return fmt.Errorf("sources.orgroam: %w", err)
	}
	if err := c.Bib.Validate(); err != nil {
		return fmt.Errorf("sources.bib: %w", err)
	}
	if err := c.Joplin.Validate(); err != nil {
		return fmt.Errorf("sources.joplin: %w", err)
	}
	return nil
}

// OrgRoamConfig lists the org-roam roots. Bibliography files are
// discovered under the same roots.
type OrgRoamConfig struct {
	Enabled bool     `yaml:"enabled"`
	Paths   []string `yaml:"paths"`
}

// Validate validates the org-roam configuration.
func (c *OrgRoamConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Paths, validation.When(c.Enabled, validation.Required)),
	)
}

// BibConfig lists bibliography glob patterns.
type BibConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Paths         []string `yaml:"paths"`
	LocatorSchema string   `yaml:"locator_schema"`
}

// Validate validates the bibliography configuration.
func (c *BibConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Paths, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.LocatorSchema, validation.In(bib.DefaultLocatorSchema, "jabref")),
	)
}

// JoplinConfig points at Joplin databases. No paths means the default
// desktop location.
type JoplinConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Paths         []string `yaml:"paths"`
	LocatorSchema string   `yaml:"locator_schema"`
	HTTPOnly      bool     `yaml:"http_only"`
}

// Validate validates the Joplin configuration.
func (c *JoplinConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LocatorSchema, validation.Match(regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*$`))),
	)
}

// DatabasePaths returns the configured paths or the default location.
func (c *JoplinConfig) DatabasePaths() []string {
	if len(c.Paths) == 0 {
		return []string{joplin.DefaultPath}
	}
	return c.Paths
}

// WatchConfig controls the file watcher used by the serve command.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// WatchRoots returns every path the enabled sources read from.
func (c *Config) WatchRoots() []string {
	var roots []string
	if c.Sources.OrgRoam.Enabled {
		roots = append(roots, c.Sources.OrgRoam.Paths...)
	}
	if c.Sources.Bib.Enabled {
		roots = append(roots, c.Sources.Bib.Paths...)
	}
	if c.Sources.Joplin.Enabled {
		roots = append(roots, c.Sources.Joplin.DatabasePaths()...)
	}
	return roots
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./waypoint.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Index: IndexConfig{
			Workers: -1,
			OnStart: true,
		},
		Sources: SourcesConfig{
			Bib:    BibConfig{LocatorSchema: bib.DefaultLocatorSchema},
			Joplin: JoplinConfig{LocatorSchema: joplin.DefaultLocatorSchema},
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
	}
}
