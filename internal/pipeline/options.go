package pipeline

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Yelmkhayar/hydro-sentinel/internal/adapter/workbook"
	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// ErrMissingFile marks an input or template path that does not exist.
var ErrMissingFile = errors.New("file not found")

// Options configure a run. Zero values for Fill, Rule and Agg select the
// workflow defaults; Cutoff zero selects the workflow cutoff.
type Options struct {
	Workflow   Workflow `validate:"required,oneof=precip_model precip_observed flow_observed volume_observed"`
	Template   string   `validate:"required"`
	OutputDir  string   `validate:"required"`
	Model      string   `validate:"required_if=Workflow precip_model,omitempty,printascii,excludesall=/\\"`
	Fill       string
	Rule       string
	Agg        string  `validate:"omitempty,oneof=mean last sum min max median"`
	Cutoff     float64 `validate:"gte=0,lte=1"`
	Strict     bool
	InputSheet string
	AliasFile  string
	Layout     workbook.Layout
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks option values and that the template exists.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid option %s: failed %q check", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid options: %w", err)
	}
	return checkExists("template", o.Template)
}

func checkExists(what, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s %s: %w", what, path, ErrMissingFile)
		}
		return fmt.Errorf("%s %s: %w", what, path, err)
	}
	return nil
}

// Plan is everything resolved once per template and shared read-only by every
// file of a batch.
type Plan struct {
	Options  Options
	Profile  Profile
	Template *workbook.Template
	Catalog  *domain.Catalog
	Resolver domain.LabelResolver
	Cutoff   float64
	Fill     domain.FillPolicy
	Rule     domain.Rule
	Agg      domain.Aggregation
}

// NewPlan validates options, reads the template and builds the resolver.
func NewPlan(opts Options) (*Plan, error) {
	if opts.Layout == (workbook.Layout{}) {
		opts.Layout = workbook.DefaultLayout()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	profile, err := ProfileFor(opts.Workflow)
	if err != nil {
		return nil, err
	}

	fillArg, ruleArg, aggArg := opts.Fill, opts.Rule, opts.Agg
	if fillArg == "" {
		fillArg = profile.DefaultFill
	}
	if ruleArg == "" {
		ruleArg = profile.DefaultRule
	}
	if aggArg == "" {
		aggArg = string(profile.DefaultAgg)
	}
	fill, err := domain.ParseFill(fillArg)
	if err != nil {
		return nil, err
	}
	rule, err := domain.ParseRule(ruleArg)
	if err != nil {
		return nil, err
	}
	agg, err := domain.ParseAggregation(aggArg)
	if err != nil {
		return nil, err
	}

	overrides := profile.Overrides
	if opts.AliasFile != "" {
		table, ok, err := LoadOverrides(opts.AliasFile, opts.Workflow)
		if err != nil {
			return nil, err
		}
		if ok {
			overrides = table
		}
	}

	tpl, err := workbook.ReadTemplate(opts.Template, opts.Layout)
	if err != nil {
		return nil, err
	}
	if len(tpl.Stations) == 0 {
		return nil, fmt.Errorf("station sheet %q lists no stations: %w", opts.Layout.StationSheet, domain.ErrTemplate)
	}

	cutoff := opts.Cutoff
	if cutoff == 0 {
		cutoff = profile.Cutoff
	}
	catalog := domain.NewCatalog(tpl.Stations, profile.Patterns, overrides)
	resolver := domain.NewResolver(catalog, cutoff)
	return &Plan{
		Options:  opts,
		Profile:  profile,
		Template: tpl,
		Catalog:  catalog,
		Resolver: resolver,
		Cutoff:   resolver.Cutoff(),
		Fill:     fill,
		Rule:     rule,
		Agg:      agg,
	}, nil
}

// WithResolver returns a copy of the plan using r, typically a memoizing decorator.
func (p *Plan) WithResolver(r domain.LabelResolver) *Plan {
	cp := *p
	cp.Resolver = r
	return &cp
}

// ExpectedStep is the cadence gaps are measured against.
func (p *Plan) ExpectedStep() (string, time.Duration) {
	if p.Rule.Enabled() {
		return p.Rule.String(), p.Rule.Width
	}
	return "1h", time.Hour
}
