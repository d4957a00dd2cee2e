package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/artpar/docforge/adapters/clock"
	"github.com/artpar/docforge/adapters/fs"
	"github.com/artpar/docforge/adapters/idgen"
	"github.com/artpar/docforge/app"
	"github.com/artpar/docforge/bootstrap"
	"github.com/artpar/docforge/config"
	"github.com/artpar/docforge/core/analysis"
	"github.com/artpar/docforge/core/injector"
	"github.com/artpar/docforge/core/template"
	"github.com/artpar/docforge/domain/frontmatter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render [input...]",
	Short: "Render documents through a schema and template",
	Long: `Render one or more documents.

With --schema and --template the bundle is built from those files and no
config file is read. Otherwise the bundles come from the config file and
--bundle picks one (default: the configured active bundle).

Inputs are positional arguments or --input; "-" reads stdin. Several inputs
are rendered one after another and a failing input does not stop the rest.
With --aggregate they are merged into a single result instead.

Examples:
  docforge render --schema note.json --template note.txt --format custom doc.md
  docforge render --bundle report --format json --output out/report.json doc.md
  cat doc.md | docforge render --schema s.yaml --template t.json --format yaml -
  docforge render --aggregate --format json --output all.json a.md b.md c.md`,
	RunE: runRender,
}

var (
	renderSchema         string
	renderTemplate       string
	renderTemplateFormat string
	renderBundle         string
	renderInput          string
	renderOutput         string
	renderOutputDir      string
	renderFormat         string
	renderFrontmatter    string
	renderArrayFormat    string
	renderPrompt         string
	renderAggregate      bool
)

func init() {
	rootCmd.AddCommand(renderCmd)

	f := renderCmd.Flags()
	f.StringVar(&renderSchema, "schema", "", "schema file (JSON or YAML)")
	f.StringVar(&renderTemplate, "template", "", "template file")
	f.StringVar(&renderTemplateFormat, "template-format", "", "template format (default: from the template extension)")
	f.StringVar(&renderBundle, "bundle", "", "configured bundle to activate")
	f.StringVarP(&renderInput, "input", "i", "", "input document")
	f.StringVarP(&renderOutput, "output", "o", "", "output file (single input or --aggregate)")
	f.StringVar(&renderOutputDir, "output-dir", "", "directory for per-input outputs")
	f.StringVarP(&renderFormat, "format", "f", "json", "output format: json, yaml, xml, handlebars, custom")
	f.StringVar(&renderFrontmatter, "frontmatter", "line", "frontmatter parser: line or yaml")
	f.StringVar(&renderArrayFormat, "array-format", "csv", "array placeholder rendering: csv or json")
	f.StringVar(&renderPrompt, "prompt", "", "expr analysis prompt file (replaces directive evaluation)")
	f.BoolVar(&renderAggregate, "aggregate", false, "merge all inputs into one result")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	inputs := args
	if renderInput != "" {
		inputs = append([]string{renderInput}, inputs...)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no input: pass a file, --input or \"-\" for stdin")
	}
	if renderOutput != "" && len(inputs) > 1 && !renderAggregate {
		return fmt.Errorf("--output needs a single input; use --output-dir")
	}

	engine, cleanup, err := renderEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	docs, err := readInputs(cmd.InOrStdin(), inputs)
	if err != nil {
		return err
	}

	base := app.ExecutionConfiguration{
		OutputFormat:      renderFormat,
		OutputPath:        renderOutput,
		MappingPromptPath: renderPrompt,
		FileSystem:        fs.NewOS(""),
	}

	if renderAggregate {
		res, err := engine.Aggregate(ctx, docs, base)
		if err != nil {
			return err
		}
		printResult(cmd, res)
		return nil
	}

	outputs, err := outputPaths(docs)
	if err != nil {
		return err
	}

	if len(docs) == 1 {
		cfg := base
		cfg.InputPath = docs[0].Path
		cfg.InputContent = docs[0].Content
		if cfg.OutputPath == "" {
			cfg.OutputPath = outputs[0]
		}
		res, err := engine.Execute(ctx, cfg)
		if err != nil {
			return err
		}
		printResult(cmd, res)
		return nil
	}

	for i := range docs {
		docs[i].OutputPath = outputs[i]
	}
	items := engine.ProcessMany(ctx, docs, base, nil)
	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", inputs[it.Index], it.Err)
			continue
		}
		printResult(cmd, it.Result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, len(items))
	}
	return nil
}

// renderEngine builds the engine from flags, or from the config file when no
// schema is given.
func renderEngine() (*app.Engine, func(), error) {
	if renderSchema == "" {
		return configEngine()
	}
	if renderTemplate == "" {
		return nil, nil, fmt.Errorf("--template is required with --schema")
	}

	files := fs.NewOS("")
	inj := injector.New(injector.Deps{Clock: clock.Real{}, Logger: zerolog.Nop()})
	bundle := config.BundleConfig{
		Name:           "cli",
		Schema:         renderSchema,
		Template:       renderTemplate,
		TemplateFormat: renderTemplateFormat,
	}
	cfg := &config.Config{Bundles: []config.BundleConfig{bundle}}
	if err := bootstrap.StageBundles(context.Background(), inj, files, cfg); err != nil {
		return nil, nil, err
	}
	if _, err := inj.Activate(context.Background(), bundle.Name); err != nil {
		return nil, nil, err
	}

	extractor, err := frontmatter.ForName(renderFrontmatter)
	if err != nil {
		return nil, nil, err
	}
	arrays, err := template.ParseArrayFormat(renderArrayFormat)
	if err != nil {
		return nil, nil, err
	}

	deps := app.EngineDeps{
		Injector:  inj,
		Mapper:    template.NewMapper(arrays),
		Extractor: extractor,
		Catalog:   config.Default().Catalog(),
		Files:     files,
		Clock:     clock.Real{},
		IDs:       idgen.UUID{},
		Logger:    zerolog.Nop(),
	}
	if renderPrompt != "" {
		deps.Strategy = analysis.NewExprStrategy()
	}
	return app.NewEngine(deps), func() {}, nil
}

func configEngine() (*app.Engine, func(), error) {
	a, err := bootstrap.New(bootstrap.Options{
		ConfigPath:       cfgFile,
		LogOutput:        io.Discard,
		Registerer:       prometheus.NewRegistry(),
		DisableHotReload: true,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { a.Shutdown() }

	if renderBundle != "" {
		if _, err := a.Injector.Activate(context.Background(), renderBundle); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	return a.Engine, cleanup, nil
}

func readInputs(stdin io.Reader, paths []string) ([]app.Input, error) {
	out := make([]app.Input, 0, len(paths))
	for _, p := range paths {
		if p != "-" {
			out = append(out, app.Input{Path: p})
			continue
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		out = append(out, app.Input{Content: string(data)})
	}
	return out, nil
}

// outputPaths names each input's file under --output-dir. Two inputs that
// would share a name are rejected before anything renders.
func outputPaths(docs []app.Input) ([]string, error) {
	out := make([]string, len(docs))
	if renderOutputDir == "" {
		return out, nil
	}
	owner := make(map[string]int, len(docs))
	for i, d := range docs {
		name := strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))
		if d.Path == "" {
			name = fmt.Sprintf("stdin-%d", i)
		}
		out[i] = filepath.Join(renderOutputDir, name+"."+extensionFor(renderFormat))
		if j, dup := owner[out[i]]; dup {
			return nil, fmt.Errorf("inputs %s and %s both write %s", docs[j].Path, d.Path, out[i])
		}
		owner[out[i]] = i
	}
	return out, nil
}

func extensionFor(format string) string {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return "yaml"
	case "xml":
		return "xml"
	case "json":
		return "json"
	case "handlebars":
		return "hbs"
	default:
		return "txt"
	}
}

// printResult writes the output to stdout when it went nowhere else, and the
// warnings to stderr.
func printResult(cmd *cobra.Command, res *app.Result) {
	stderr := cmd.ErrOrStderr()
	for _, w := range res.Warnings {
		if w.Kind == app.WarnWriteSkipped {
			continue
		}
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	if res.OutputPath == "" {
		out := res.Output
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return
	}
	fmt.Fprintf(stderr, "wrote %s\n", res.OutputPath)
}
