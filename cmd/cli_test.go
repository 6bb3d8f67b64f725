package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const cliCustomersCSV = `LoyaltyStatus,Province or State,City,Gender,Education,Income,Customer Lifetime Value,EnrollmentDateOpening
Gold,Ontario,Toronto,female,Bachelor,50000,2500,2016-03-01
Silver,Quebec,Montreal,male,Bachelor,70000,7100,2017-05-12
Gold,Ontario,Ottawa,female,High School,30000,3900,2015-01-20
Star,Alberta,Calgary,male,College,42000,5200,2018-07-04
Aurora,Quebec,Quebec City,female,Master,81000,4100,2016-09-30
Star,Yukon,Whitehorse,male,Bachelor,61000,8800,2017-02-14
Gold,Alberta,Edmonton,female,College,88000,6100,2014-11-11
Silver,Ontario,Toronto,male,High School,23000,3300,2019-08-08
Star,Ontario,Toronto,female,Master,57000,4700,2018-03-03
Aurora,Alberta,Calgary,male,College,66000,9100,2015-06-21
`

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// setupHome isolates config under a temp HOME and writes the sample dataset.
func setupHome(t *testing.T) (home, data string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	data = filepath.Join(home, "customers.csv")
	if err := os.WriteFile(data, []byte(cliCustomersCSV), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return home, data
}

func TestCLI_RecipesPlain(t *testing.T) {
	setupHome(t)
	out := runCmd(t, "recipes", "--plain")
	if !strings.HasPrefix(out, "1 | n=1 | c=0 | pairwise,joint | hist_box |") {
		t.Fatalf("unexpected first line:\n%s", out)
	}
	if !strings.Contains(out, "* | c>2 | rejected:") {
		t.Fatalf("missing reject line:\n%s", out)
	}
}

func TestCLI_RecipesTable(t *testing.T) {
	setupHome(t)
	out := runCmd(t, "recipes")
	for _, want := range []string{"scatter_manova", "Unsupported in joint mode:", "(0,3)", "Every rule is reachable"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_DescribeShowsKPIsAndColumns(t *testing.T) {
	_, data := setupHome(t)
	out := runCmd(t, "describe", "--data", data)
	for _, want := range []string{"Total Customers", "$56,800", "Customer Lifetime Value", "EnrollmentYear", "10 rows"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	out = runCmd(t, "describe", "--data", data, "--loyalty", "Gold", "--markdown")
	if !strings.Contains(out, "Rows: 3 (filtered from 10)") {
		t.Fatalf("filtered markdown summary expected:\n%s", out)
	}
}

func TestCLI_PreviewFilters(t *testing.T) {
	_, data := setupHome(t)
	out := runCmd(t, "preview", "--data", data, "--gender", "male", "--income-min", "60000", "-n", "5")
	if !strings.Contains(out, "3 rows shown; 3 of 10 match the filters") {
		t.Fatalf("unexpected preview footer:\n%s", out)
	}
	if strings.Contains(out, "female") {
		t.Fatalf("gender filter not applied:\n%s", out)
	}

	if _, err := execCmd(t, "preview", "--data", data, "--income-min", "9", "--income-max", "1"); err == nil {
		t.Fatalf("expected error for inverted income range")
	}
}

func TestCLI_AnalyzeWritesChart(t *testing.T) {
	home, data := setupHome(t)
	chartPath := filepath.Join(home, "out", "clv.png")
	out := runCmd(t, "analyze", "--data", data, "-o", chartPath, "Customer Lifetime Value", "Gender", "LoyaltyStatus")
	for _, want := range []string{"Recipe: two_way_anova", "Formula: CustomerLifetimeValue ~ C(Gender) + C(LoyaltyStatus) + C(Gender):C(LoyaltyStatus)", "Residual", "Groups:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	b, err := os.ReadFile(chartPath)
	if err != nil {
		t.Fatalf("chart not written: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Fatalf("chart is not a PNG")
	}
}

func TestCLI_AnalyzeJSON(t *testing.T) {
	home, data := setupHome(t)
	chartPath := filepath.Join(home, "clv-by-gender.png")
	out := runCmd(t, "analyze", "--data", data, "--json", "-o", chartPath, "Customer Lifetime Value", "Gender")
	var got struct {
		Recipe    string `json:"recipe"`
		Shape     string `json:"shape"`
		Variables []struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
		} `json:"variables"`
		Groups []struct {
			Name   string   `json:"name"`
			N      int      `json:"n"`
			Median *float64 `json:"median"`
		} `json:"groups"`
		Chart string `json:"chart"`
	}
	if err := json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &got); err != nil {
		t.Fatalf("decode --json output: %v\n%s", err, out)
	}
	if got.Shape != "(1,1)" || got.Chart != chartPath || len(got.Variables) != 2 {
		t.Fatalf("unexpected outcome: %+v", got)
	}
	if len(got.Groups) != 2 || got.Groups[0].N != 5 || got.Groups[0].Median == nil {
		t.Fatalf("unexpected groups: %+v", got.Groups)
	}
	if strings.Contains(out, "Wrote ") {
		t.Fatalf("--json output mixed with text:\n%s", out)
	}
	if _, err := os.Stat(chartPath); err != nil {
		t.Fatalf("chart not written: %v", err)
	}
}

func TestCLI_AnalyzeRecoverableMessages(t *testing.T) {
	_, data := setupHome(t)
	out := runCmd(t, "analyze", "--data", data)
	if !strings.Contains(out, "select at least one variable") {
		t.Fatalf("expected empty-selection message:\n%s", out)
	}
	out = runCmd(t, "analyze", "--data", data, "--mode", "joint", "Income")
	if !strings.Contains(out, "select at least two variables") {
		t.Fatalf("expected joint-mode message:\n%s", out)
	}
	out = runCmd(t, "analyze", "--data", data, "Gender", "Education", "LoyaltyStatus")
	if !strings.Contains(out, "selection does not match a supported recipe") {
		t.Fatalf("expected no-recipe message:\n%s", out)
	}
	out = runCmd(t, "analyze", "--data", data, "--loyalty", "Platinum", "Income")
	if !strings.Contains(out, "no rows match the current filters") {
		t.Fatalf("expected empty-view message:\n%s", out)
	}
	if _, err := execCmd(t, "analyze", "--data", data, "NoSuchColumn"); err != nil {
		t.Fatalf("unknown column is a message, not a failure: %v", err)
	}
}

func TestCLI_DashboardWritesIndex(t *testing.T) {
	home, data := setupHome(t)
	dir := filepath.Join(home, "dash")
	out := runCmd(t, "dashboard", "--data", data, "-o", dir, "--quiet", "--features", "Income,Customer Lifetime Value")
	if !strings.Contains(out, "Wrote dashboard to") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	index, err := os.ReadFile(filepath.Join(dir, "index.md"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	for _, want := range []string{"Distribution of Loyalty Status", "Correlation Heatmap", "Feature set", "| Total Customers | 10 |", "loyalty-distribution.png"} {
		if !strings.Contains(string(index), want) {
			t.Fatalf("index.md missing %q:\n%s", want, index)
		}
	}
	for _, name := range []string{"describe.md", "correlation.png", "univariate-gender.png", "features.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "explore.png")); err == nil {
		t.Fatalf("explore panel rendered without --explore")
	}
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home, data := setupHome(t)
	runCmd(t, "config", "set", "data_path", data)
	if _, err := os.Stat(filepath.Join(home, ".custlens", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	out := runCmd(t, "config", "show")
	if !strings.Contains(out, "data_path: "+data) {
		t.Fatalf("data_path not persisted:\n%s", out)
	}
	if _, err := execCmd(t, "config", "set", "api_key", "x"); err == nil {
		t.Fatalf("expected unknown key error")
	}

	// The saved data_path is used without --data.
	out = runCmd(t, "preview", "-n", "1")
	if !strings.Contains(out, "1 rows shown") {
		t.Fatalf("preview with saved data_path failed:\n%s", out)
	}
}

func TestCLI_MissingDataset(t *testing.T) {
	setupHome(t)
	if _, err := execCmd(t, "describe"); err == nil || !strings.Contains(err.Error(), "no dataset") {
		t.Fatalf("expected no-dataset error, got %v", err)
	}
	if _, err := execCmd(t, "describe", "--data", filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected load error")
	}
}
