package rules

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/shopspring/decimal"
)

//go:embed default.cue
var defaultCUE string

// CompileError reports a rule-set compilation failure with the CUE
// position when one is available.
type CompileError struct {
	File    string
	Message string
}

func (e *CompileError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// rawRuleSet mirrors the CUE `rules` value for decoding. Converted into
// the typed RuleSet by fromRaw.
type rawRuleSet struct {
	Tables struct {
		ProcessorPrefixes []string          `json:"processor_prefixes"`
		KnownNames        map[string]string `json:"known_names"`
		LegalSuffixes     []string          `json:"legal_suffixes"`
		FunctionWords     []string          `json:"function_words"`
		ExtractPatterns   []struct {
			Name    string `json:"name"`
			Pattern string `json:"pattern"`
		} `json:"extract_patterns"`
	} `json:"tables"`
	Tolerances struct {
		AmountFloor           string  `json:"amount_floor"`
		AmountPercent         float64 `json:"amount_percent"`
		DateWindowDays        int     `json:"date_window_days"`
		MaxDateWindowDays     int     `json:"max_date_window_days"`
		SumWindowDays         int     `json:"sum_window_days"`
		WideAmountPercent     float64 `json:"wide_amount_percent"`
		WideDateWindowDays    int     `json:"wide_date_window_days"`
		NameThreshold         float64 `json:"name_threshold"`
		MinNameLength         int     `json:"min_name_length"`
		DefaultClassification string  `json:"default_classification"`
	} `json:"tolerances"`
}

// Default compiles the embedded default rule set.
// Panics only on a corrupted embed, which is a build defect; callers get
// an error for every other failure mode.
func Default() (*RuleSet, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(defaultCUE, cue.Filename("default.cue"))
	if err := v.Err(); err != nil {
		return nil, formatCUEError("default.cue", err)
	}
	return compileValue("default.cue", v)
}

// Load compiles a rule set from a CUE file or a directory of CUE files.
// Directory contents are unified in lexical filename order. The loaded
// value is validated against the embedded #RuleSet schema, so an override
// cannot silently drop or mistype a field.
func Load(path string) (*RuleSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &CompileError{File: path, Message: fmt.Sprintf("rules path not accessible: %v", err)}
	}

	files := []string{path}
	if info.IsDir() {
		files, err = findCUEFiles(path)
		if err != nil {
			return nil, &CompileError{File: path, Message: fmt.Sprintf("scanning rules directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &CompileError{File: path, Message: "no CUE files found"}
		}
	}

	ctx := cuecontext.New()

	// The embedded default carries the #RuleSet schema; unify overrides
	// against it so schema violations surface at load time.
	schema := ctx.CompileString(defaultCUE, cue.Filename("default.cue")).
		LookupPath(cue.ParsePath("#RuleSet"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError("default.cue", err)
	}

	v := schema
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return nil, &CompileError{File: f, Message: fmt.Sprintf("reading rules file: %v", err)}
		}
		fv := ctx.CompileBytes(src, cue.Filename(f))
		if err := fv.Err(); err != nil {
			return nil, formatCUEError(f, err)
		}
		rv := fv.LookupPath(cue.ParsePath("rules"))
		if !rv.Exists() {
			return nil, &CompileError{File: f, Message: "missing required value `rules`"}
		}
		v = v.Unify(rv)
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(path, err)
	}
	return compileValue(path, v)
}

func compileValue(file string, v cue.Value) (*RuleSet, error) {
	rv := v
	if rules := v.LookupPath(cue.ParsePath("rules")); rules.Exists() {
		rv = rules
	}

	var raw rawRuleSet
	if err := rv.Decode(&raw); err != nil {
		return nil, formatCUEError(file, err)
	}

	rs, err := fromRaw(raw)
	if err != nil {
		return nil, &CompileError{File: file, Message: err.Error()}
	}
	return rs, nil
}

func fromRaw(raw rawRuleSet) (*RuleSet, error) {
	floor, err := decimal.NewFromString(raw.Tolerances.AmountFloor)
	if err != nil {
		return nil, fmt.Errorf("amount_floor %q: %w", raw.Tolerances.AmountFloor, err)
	}

	rs := &RuleSet{
		Tables: Tables{
			ProcessorPrefixes: raw.Tables.ProcessorPrefixes,
			KnownNames:        raw.Tables.KnownNames,
			LegalSuffixes:     raw.Tables.LegalSuffixes,
			FunctionWords:     raw.Tables.FunctionWords,
		},
		Tolerances: Tolerances{
			AmountFloor:           floor,
			AmountPercent:         raw.Tolerances.AmountPercent,
			DateWindowDays:        raw.Tolerances.DateWindowDays,
			MaxDateWindowDays:     raw.Tolerances.MaxDateWindowDays,
			SumWindowDays:         raw.Tolerances.SumWindowDays,
			WideAmountPercent:     raw.Tolerances.WideAmountPercent,
			WideDateWindowDays:    raw.Tolerances.WideDateWindowDays,
			NameThreshold:         raw.Tolerances.NameThreshold,
			MinNameLength:         raw.Tolerances.MinNameLength,
			DefaultClassification: raw.Tolerances.DefaultClassification,
		},
	}
	for _, p := range raw.Tables.ExtractPatterns {
		rs.Tables.ExtractPatterns = append(rs.Tables.ExtractPatterns, ExtractPattern{
			Name:    p.Name,
			Pattern: p.Pattern,
		})
	}

	if err := rs.Build(); err != nil {
		return nil, err
	}
	return rs, nil
}

func findCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".cue") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func formatCUEError(file string, err error) error {
	var sb strings.Builder
	for i, e := range cueerrors.Errors(err) {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Error())
	}
	msg := sb.String()
	if msg == "" {
		msg = err.Error()
	}
	return &CompileError{File: file, Message: msg}
}
