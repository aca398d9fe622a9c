package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"
	"github.com/joeshaw/envdecode"
	formskema "github.com/reoring/formskema"
	"github.com/reoring/formskema/formdef"
	"github.com/reoring/formskema/i18n"
	js "github.com/reoring/formskema/jsonschema"
)

// envConfig is read from the environment; flags override Lang.
type envConfig struct {
	LogLevel  string `env:"FORMSKEMA_LOG_LEVEL,default=info"`
	LogFormat string `env:"FORMSKEMA_LOG_FORMAT,default=text"`
	Lang      string `env:"FORMSKEMA_LANG,default=en"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// exit codes
const (
	exitOK      = 0
	exitInvalid = 1
	exitUsage   = 2
	exitError   = 3
)

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return exitUsage
	}
	env, err := loadEnv()
	if err != nil {
		fmt.Fprintf(stderr, "formskema: %v\n", err)
		return exitUsage
	}
	log := newLogger(stderr, env)
	i18n.SetLanguage(env.Lang)

	switch args[0] {
	case "validate":
		return validateCmd(ctx, args[1:], stdin, stdout, stderr, log)
	case "schema":
		return schemaCmd(args[1:], stdout, stderr)
	case "watch":
		return watchCmd(ctx, args[1:], stdout, stderr, log)
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	}
	usage(stderr)
	return exitUsage
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "formskema CLI\n\nUsage:\n  formskema validate -def form.yaml [-data values.json|-] [-json]\n  formskema schema -def form.yaml\n  formskema watch -def form.yaml -data values.json [-json]\n\nEnvironment:\n  FORMSKEMA_LOG_LEVEL   debug|info|warn|error (default info)\n  FORMSKEMA_LOG_FORMAT  text|json (default text)\n  FORMSKEMA_LANG        en|ja (default en)")
}

func loadEnv() (envConfig, error) {
	var cfg envConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return envConfig{}, fmt.Errorf("decode env: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg envConfig) *slog.Logger {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		lv = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lv}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

type validateFlags struct {
	def  string
	data string
	json bool
	lang string
}

func (v *validateFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&v.def, "def", "", "form definition (.yaml, .yml or .json)")
	fs.StringVar(&v.data, "data", "", "JSON values to validate; - reads stdin")
	fs.BoolVar(&v.json, "json", false, "print the result as JSON")
	fs.StringVar(&v.lang, "lang", "", "message language (en, ja)")
}

func validateCmd(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, log *slog.Logger) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var vf validateFlags
	vf.bind(fs)
	if err := fs.Parse(args); err != nil || vf.def == "" {
		if err == nil {
			fs.Usage()
		}
		return exitUsage
	}
	if vf.lang != "" {
		i18n.SetLanguage(vf.lang)
	}
	code, err := validateOnce(ctx, vf, stdin, stdout, log)
	if err != nil {
		fmt.Fprintf(stderr, "formskema: %v\n", err)
		return exitError
	}
	return code
}

// report is the -json output.
type report struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

func validateOnce(ctx context.Context, vf validateFlags, stdin io.Reader, stdout io.Writer, log *slog.Logger) (int, error) {
	def, err := formdef.Load(vf.def)
	if err != nil {
		return exitError, err
	}
	opts, err := def.Options()
	if err != nil {
		return exitError, err
	}
	if vf.data != "" {
		data, err := readData(vf.data, stdin)
		if err != nil {
			return exitError, err
		}
		merged := make(map[string]any, len(opts.DefaultValues)+len(data))
		maps.Copy(merged, opts.DefaultValues)
		maps.Copy(merged, data)
		opts.DefaultValues = merged
	}
	opts.Logger = log

	start := time.Now()
	f := formskema.New(opts)
	defer f.Close()
	res := f.Validate(ctx)
	if err := ctx.Err(); err != nil {
		return exitError, err
	}
	log.Debug("cli.validate.done", slog.String("def", vf.def), slog.Bool("valid", res.Valid), slog.Duration("took", time.Since(start)))

	if vf.json {
		b, err := json.MarshalIndent(report{Valid: res.Valid, Errors: res.Errors}, "", "  ")
		if err != nil {
			return exitError, err
		}
		fmt.Fprintln(stdout, string(b))
	} else if res.Valid {
		fmt.Fprintln(stdout, "valid")
	} else {
		for _, k := range slices.Sorted(maps.Keys(res.Errors)) {
			fmt.Fprintf(stdout, "%s: %s\n", k, res.Errors[k])
		}
	}
	if !res.Valid {
		return exitInvalid, nil
	}
	return exitOK, nil
}

func readData(path string, stdin io.Reader) (map[string]any, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode data %s: %w", path, err)
	}
	return v, nil
}

func schemaCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var def string
	fs.StringVar(&def, "def", "", "form definition (.yaml, .yml or .json)")
	if err := fs.Parse(args); err != nil || def == "" {
		if err == nil {
			fs.Usage()
		}
		return exitUsage
	}
	d, err := formdef.Load(def)
	if err != nil {
		fmt.Fprintf(stderr, "formskema: %v\n", err)
		return exitError
	}
	obj, err := d.Schema()
	if err != nil {
		fmt.Fprintf(stderr, "formskema: %v\n", err)
		return exitError
	}
	out := obj.JSONSchema()
	out.Schema = js.Draft2020
	out.Title = d.Name
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "formskema: %v\n", err)
		return exitError
	}
	fmt.Fprintln(stdout, string(b))
	return exitOK
}

// watchCmd re-validates whenever the definition or the data file changes.
// Directories are watched so editors that replace files still trigger.
func watchCmd(ctx context.Context, args []string, stdout, stderr io.Writer, log *slog.Logger) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var vf validateFlags
	vf.bind(fs)
	if err := fs.Parse(args); err != nil || vf.def == "" || vf.data == "" || vf.data == "-" {
		if err == nil {
			fs.Usage()
		}
		return exitUsage
	}
	if vf.lang != "" {
		i18n.SetLanguage(vf.lang)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(stderr, "formskema: %v\n", err)
		return exitError
	}
	defer w.Close()

	targets := map[string]bool{}
	for _, p := range []string{vf.def, vf.data} {
		abs, err := filepath.Abs(p)
		if err != nil {
			fmt.Fprintf(stderr, "formskema: %v\n", err)
			return exitError
		}
		targets[abs] = true
		if err := w.Add(filepath.Dir(abs)); err != nil {
			fmt.Fprintf(stderr, "formskema: watch %s: %v\n", p, err)
			return exitError
		}
	}

	once := func() {
		if _, err := validateOnce(ctx, vf, nil, stdout, log); err != nil {
			fmt.Fprintf(stderr, "formskema: %v\n", err)
		}
	}
	once()

	const settle = 50 * time.Millisecond
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return exitOK
		case ev, ok := <-w.Events:
			if !ok {
				return exitOK
			}
			abs, _ := filepath.Abs(ev.Name)
			if !targets[abs] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("cli.watch.change", slog.String("file", ev.Name), slog.String("op", ev.Op.String()))
			pending = time.After(settle)
		case <-pending:
			pending = nil
			once()
		case err, ok := <-w.Errors:
			if !ok {
				return exitOK
			}
			log.Warn("cli.watch.error", slog.String("err", err.Error()))
		}
	}
}
