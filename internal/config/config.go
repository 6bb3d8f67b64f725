package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/custlens/internal/chart"
	"github.com/KaramelBytes/custlens/internal/dashboard"
	"github.com/KaramelBytes/custlens/internal/dataset"
	"github.com/KaramelBytes/custlens/internal/router"
	"gonum.org/v1/plot/vg"
)

// ErrUnknownKey is returned by Set for keys that cannot be set from the command line.
var ErrUnknownKey = errors.New("unknown key")

// PanelConfig is a preset dashboard panel as written in the config file.
type PanelConfig struct {
	ID        string   `mapstructure:"id" yaml:"id"`
	Title     string   `mapstructure:"title" yaml:"title"`
	Variables []string `mapstructure:"variables" yaml:"variables,omitempty"`
	Joint     bool     `mapstructure:"joint" yaml:"joint,omitempty"`
	// AllNumeric selects every numeric column; Variables is ignored.
	AllNumeric bool `mapstructure:"all_numeric" yaml:"all_numeric,omitempty"`
}

// Global configuration structure.
type Global struct {
	DataPath    string   `mapstructure:"data_path" yaml:"data_path"`
	Delimiter   string   `mapstructure:"delimiter" yaml:"delimiter,omitempty"`
	Sheet       string   `mapstructure:"sheet" yaml:"sheet,omitempty"`
	DateColumns []string `mapstructure:"date_columns" yaml:"date_columns"`
	DateLayouts []string `mapstructure:"date_layouts" yaml:"date_layouts,omitempty"`

	DerivedYearColumn string `mapstructure:"derived_year_column" yaml:"derived_year_column"`
	DerivedYearSource string `mapstructure:"derived_year_source" yaml:"derived_year_source"`

	Columns            dashboard.Columns `mapstructure:"columns" yaml:"columns"`
	ExcludeCategorical []string          `mapstructure:"exclude_categorical" yaml:"exclude_categorical"`
	Panels             []PanelConfig     `mapstructure:"panels" yaml:"panels,omitempty"`

	// Chart rendering; sizes in inches.
	ChartWidth  float64 `mapstructure:"chart_width" yaml:"chart_width"`
	ChartHeight float64 `mapstructure:"chart_height" yaml:"chart_height"`
	ChartFormat string  `mapstructure:"chart_format" yaml:"chart_format"`
	HistBins    int     `mapstructure:"hist_bins" yaml:"hist_bins"`

	ServerAddr string `mapstructure:"server_addr" yaml:"server_addr"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
}

// Dir returns ~/.custlens.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".custlens"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.custlens/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	cols := dashboard.DefaultColumns()
	dopt := dataset.DefaultOptions()
	r := chart.DefaultRenderer()

	v.SetDefault("data_path", "")
	v.SetDefault("delimiter", "")
	v.SetDefault("sheet", "")
	v.SetDefault("date_columns", dopt.DateColumns)
	v.SetDefault("date_layouts", []string{})
	v.SetDefault("derived_year_column", cols.Year)
	v.SetDefault("derived_year_source", "EnrollmentDateOpening")
	v.SetDefault("columns.loyalty", cols.Loyalty)
	v.SetDefault("columns.province", cols.Province)
	v.SetDefault("columns.income", cols.Income)
	v.SetDefault("columns.clv", cols.CLV)
	v.SetDefault("columns.gender", cols.Gender)
	v.SetDefault("columns.education", cols.Education)
	v.SetDefault("columns.year", cols.Year)
	v.SetDefault("exclude_categorical", dashboard.DefaultExclude())
	v.SetDefault("chart_width", float64(r.Width/vg.Inch))
	v.SetDefault("chart_height", float64(r.Height/vg.Inch))
	v.SetDefault("chart_format", r.Format)
	v.SetDefault("hist_bins", r.Bins)
	v.SetDefault("server_addr", "127.0.0.1:8050")
	v.SetDefault("log_level", "info")
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > .env > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CUSTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values viper cannot type-check.
func (c *Global) Validate() error {
	switch c.ChartFormat {
	case "png", "svg":
	default:
		return fmt.Errorf("invalid chart_format: %q (use png or svg)", c.ChartFormat)
	}
	if c.ChartWidth <= 0 || c.ChartHeight <= 0 {
		return fmt.Errorf("chart size must be positive, got %gx%g", c.ChartWidth, c.ChartHeight)
	}
	if c.HistBins <= 0 {
		return fmt.Errorf("hist_bins must be positive, got %d", c.HistBins)
	}
	if len([]rune(c.Delimiter)) > 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	seen := map[string]bool{}
	for i, p := range c.Panels {
		if p.ID == "" {
			return fmt.Errorf("panel %d: missing id", i+1)
		}
		if seen[p.ID] {
			return fmt.Errorf("panel %q: duplicate id", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// DatasetOptions returns the load options for the configured file.
func (c *Global) DatasetOptions() dataset.Options {
	opt := dataset.DefaultOptions()
	if c.Delimiter != "" {
		opt.Delimiter = []rune(c.Delimiter)[0]
	}
	opt.DateColumns = c.DateColumns
	if len(c.DateLayouts) > 0 {
		opt.DateLayouts = c.DateLayouts
	}
	if c.Sheet != "" {
		if i, err := strconv.Atoi(c.Sheet); err == nil {
			opt.SheetIndex = i
		} else {
			opt.Sheet = c.Sheet
		}
	}
	return opt
}

// Loader loads a dataset and appends the derived year column when its source exists.
func (c *Global) Loader() dataset.Loader {
	opt := c.DatasetOptions()
	return func(path string) (*dataset.Dataset, error) {
		ds, err := dataset.Load(path, opt)
		if err != nil {
			return nil, err
		}
		if c.DerivedYearColumn == "" || !ds.Has(c.DerivedYearSource) || ds.Has(c.DerivedYearColumn) {
			return ds, nil
		}
		return ds.WithYear(c.DerivedYearColumn, c.DerivedYearSource)
	}
}

// Renderer returns the chart renderer for the configured size and format.
func (c *Global) Renderer() chart.Renderer {
	r := chart.DefaultRenderer()
	r.Width = vg.Length(c.ChartWidth) * vg.Inch
	r.Height = vg.Length(c.ChartHeight) * vg.Inch
	r.Format = c.ChartFormat
	r.Bins = c.HistBins
	return r
}

// DashboardOptions returns the session layout. Without configured panels the default
// overview is used.
func (c *Global) DashboardOptions() dashboard.Options {
	opt := dashboard.DefaultOptions()
	opt.Columns = c.Columns
	opt.Exclude = c.ExcludeCategorical
	if len(c.Panels) == 0 {
		opt.Panels = dashboard.DefaultPanels(c.Columns)
		return opt
	}
	opt.Panels = make([]dashboard.Panel, 0, len(c.Panels))
	for _, p := range c.Panels {
		mode := router.Pairwise
		if p.Joint || p.AllNumeric {
			mode = router.Joint
		}
		opt.Panels = append(opt.Panels, dashboard.Panel{
			ID:         p.ID,
			Title:      p.Title,
			Variables:  p.Variables,
			Mode:       mode,
			AllNumeric: p.AllNumeric,
		})
	}
	return opt
}

// Logger builds the process logger. Debug forces a development logger at debug level.
func (c *Global) Logger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.Encoding = "console"
	zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	return zc.Build()
}

// Keys lists the keys accepted by Set.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setters = map[string]func(c *Global, val string) error{
	"data_path":           func(c *Global, v string) error { c.DataPath = v; return nil },
	"delimiter":           func(c *Global, v string) error { c.Delimiter = v; return nil },
	"sheet":               func(c *Global, v string) error { c.Sheet = v; return nil },
	"date_columns":        func(c *Global, v string) error { c.DateColumns = splitList(v); return nil },
	"date_layouts":        func(c *Global, v string) error { c.DateLayouts = splitList(v); return nil },
	"derived_year_column": func(c *Global, v string) error { c.DerivedYearColumn = v; return nil },
	"derived_year_source": func(c *Global, v string) error { c.DerivedYearSource = v; return nil },
	"columns.loyalty":     func(c *Global, v string) error { c.Columns.Loyalty = v; return nil },
	"columns.province":    func(c *Global, v string) error { c.Columns.Province = v; return nil },
	"columns.income":      func(c *Global, v string) error { c.Columns.Income = v; return nil },
	"columns.clv":         func(c *Global, v string) error { c.Columns.CLV = v; return nil },
	"columns.gender":      func(c *Global, v string) error { c.Columns.Gender = v; return nil },
	"columns.education":   func(c *Global, v string) error { c.Columns.Education = v; return nil },
	"columns.year":        func(c *Global, v string) error { c.Columns.Year = v; return nil },
	"exclude_categorical": func(c *Global, v string) error { c.ExcludeCategorical = splitList(v); return nil },
	"chart_width":         floatSetter(func(c *Global, f float64) { c.ChartWidth = f }),
	"chart_height":        floatSetter(func(c *Global, f float64) { c.ChartHeight = f }),
	"chart_format":        func(c *Global, v string) error { c.ChartFormat = strings.ToLower(v); return nil },
	"hist_bins": func(c *Global, v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid int for hist_bins: %w", err)
		}
		c.HistBins = i
		return nil
	},
	"server_addr": func(c *Global, v string) error { c.ServerAddr = v; return nil },
	"log_level":   func(c *Global, v string) error { c.LogLevel = v; return nil },
}

func floatSetter(set func(*Global, float64)) func(*Global, string) error {
	return func(c *Global, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		set(c, f)
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Set assigns one key from its string form and validates the result.
func (c *Global) Set(key, val string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	next := *c
	if err := set(&next, val); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
