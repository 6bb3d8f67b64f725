package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/custlens/internal/dataset"
	"github.com/KaramelBytes/custlens/internal/filter"
	"github.com/KaramelBytes/custlens/internal/router"
	"github.com/KaramelBytes/custlens/internal/stats"
)

// filterFlags are the dashboard filter widgets as command-line flags.
type filterFlags struct {
	loyalty   []string
	province  []string
	gender    []string
	education []string
	incomeMin float64
	incomeMax float64
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringSliceVar(&f.loyalty, "loyalty", nil, "keep only these loyalty tiers (repeatable)")
	fl.StringSliceVar(&f.province, "province", nil, "keep only these provinces or states (repeatable)")
	fl.StringSliceVar(&f.gender, "gender", nil, "keep only these genders (repeatable)")
	fl.StringSliceVar(&f.education, "education", nil, "keep only these education levels (repeatable)")
	fl.Float64Var(&f.incomeMin, "income-min", 0, "lowest income to keep")
	fl.Float64Var(&f.incomeMax, "income-max", 0, "highest income to keep")
}

// spec builds the filter from the flags that were set. An unset multi-select keeps every
// level and an unset income flag keeps the dataset bound on that side.
func (f *filterFlags) spec(cmd *cobra.Command, ds *dataset.Dataset) (filter.Spec, error) {
	c := cfg.Columns
	spec := filter.Spec{Sets: map[string][]string{}, Ranges: map[string]filter.Range{}}
	for _, s := range []struct {
		flag, col string
		vals      []string
	}{
		{"loyalty", c.Loyalty, f.loyalty},
		{"province", c.Province, f.province},
		{"gender", c.Gender, f.gender},
		{"education", c.Education, f.education},
	} {
		if !cmd.Flags().Changed(s.flag) {
			continue
		}
		if !ds.Has(s.col) {
			return spec, fmt.Errorf("--%s: dataset has no column %q", s.flag, s.col)
		}
		spec.Sets[s.col] = s.vals
	}
	minSet, maxSet := cmd.Flags().Changed("income-min"), cmd.Flags().Changed("income-max")
	if minSet || maxSet {
		b, err := filter.Bounds(ds, c.Income)
		if err != nil {
			return spec, fmt.Errorf("income filter: %w", err)
		}
		if minSet {
			b.Min = f.incomeMin
		}
		if maxSet {
			b.Max = f.incomeMax
		}
		if b.Min > b.Max {
			return spec, fmt.Errorf("--income-min %g is above --income-max %g", b.Min, b.Max)
		}
		spec.Ranges[c.Income] = b
	}
	return spec, nil
}

func loadDataset() (*dataset.Dataset, error) {
	if cfg.DataPath == "" {
		return nil, errors.New("no dataset: pass --data or set data_path (custlens config set data_path <file>)")
	}
	ds, err := cfg.Loader()(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("dataset loaded")
	return ds, nil
}

// loadView loads the dataset and applies the filter flags.
func loadView(cmd *cobra.Command, f *filterFlags) (*dataset.View, error) {
	ds, err := loadDataset()
	if err != nil {
		return nil, err
	}
	spec, err := f.spec(cmd, ds)
	if err != nil {
		return nil, err
	}
	return spec.Selection().Apply(ds)
}

func newRouter() *router.Router {
	return router.New(cfg.Renderer(), stats.Fitter{}, logger)
}
