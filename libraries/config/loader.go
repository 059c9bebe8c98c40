package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"
)

// CheckVersion prints version and exits when --version is on the command line.
func CheckVersion(version string) {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" {
			fmt.Println(version)
			os.Exit(0)
		}
	}
}

type LoadOptions struct {
	ConfigFlag     string
	DefaultConfig  string
	StrictINI      bool
	SkipAutoConfig bool
}

func defaultOptions() *LoadOptions {
	return &LoadOptions{ConfigFlag: "config", DefaultConfig: "./config.ini"}
}

// Load fills cfg from struct tag defaults, then an INI file, then command
// line flags, in increasing precedence. Fields are described by tags:
//
//	name     flag and INI key (defaults to the kebab-cased field name)
//	alias    comma-separated alternate INI keys
//	default  value applied before anything else
//	help     flag usage text
//	required "true" rejects a zero value after loading
func Load(cfg any, args []string) error {
	return LoadWithOptions(cfg, args, nil)
}

func LoadWithOptions(cfg any, args []string, opts *LoadOptions) error {
	if opts == nil {
		opts = defaultOptions()
	}

	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return errors.New("cfg must be a pointer to a struct")
	}

	fields, err := describe(v.Elem())
	if err != nil {
		return err
	}
	for _, f := range fields {
		if f.def == "" {
			continue
		}
		if err := f.Set(f.def); err != nil {
			return fmt.Errorf("invalid default for %s: %w", f.name, err)
		}
	}

	// Flags are parsed first to find -config, but applied after the INI file.
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	configPath := fs.String(opts.ConfigFlag, "", "Path to config file")
	pending := make(map[string]*pendingFlag, len(fields))
	for _, f := range fields {
		p := &pendingFlag{field: f}
		pending[f.name] = p
		fs.Var(p, f.name, f.help)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return err
	}

	path := *configPath
	if path == "" && !opts.SkipAutoConfig {
		if _, err := os.Stat(opts.DefaultConfig); err == nil {
			path = opts.DefaultConfig
		}
	}
	if path != "" {
		if err := loadINI(path, fields, opts.StrictINI); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}

	var flagErr error
	fs.Visit(func(fl *flag.Flag) {
		p, ok := pending[fl.Name]
		if !ok || flagErr != nil {
			return
		}
		for _, raw := range p.values {
			if err := p.field.Set(raw); err != nil {
				flagErr = fmt.Errorf("invalid value for -%s: %w", fl.Name, err)
				return
			}
		}
	})
	if flagErr != nil {
		return flagErr
	}

	return validateRequired(fields)
}

// pendingFlag records raw flag values so they can be applied after the INI
// file has been read.
type pendingFlag struct {
	field  *field
	values []string
}

func (p *pendingFlag) String() string {
	if p == nil || p.field == nil {
		return ""
	}
	return p.field.def
}

func (p *pendingFlag) Set(s string) error {
	if err := p.field.check(s); err != nil {
		return err
	}
	p.values = append(p.values, s)
	return nil
}

func (p *pendingFlag) IsBoolFlag() bool {
	return p.field.value.Kind() == reflect.Bool
}

func validateRequired(fields []*field) error {
	var missing []string
	for _, f := range fields {
		if f.required && f.value.IsZero() {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func toKebabCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
