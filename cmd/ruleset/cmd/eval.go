package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/solatis/ruleset/internal/rules"
	"github.com/solatis/ruleset/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxLineSize bounds a single JSONL item.
const maxLineSize = 4 << 20

type evalMode int

const (
	evalSatisfied evalMode = iota
	evalDetailed
	evalFirstMatching
)

// evalSummary counts what runEval processed.
type evalSummary struct {
	Items     int
	Satisfied int
	Errors    int
}

var evalCmd = &cobra.Command{
	Use:   "eval [FILE]",
	Short: "Evaluate JSON Lines items against catalogs",
	Long: `Reads one JSON object per line from FILE (or stdin) and writes one JSON
result per line. Several --catalog flags are combined with --combine.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvalCmd,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	f := evalCmd.Flags()
	addEngineFlags(f)
	f.StringSlice("catalog", nil, "catalog name to evaluate (repeatable)")
	f.String("combine", "or", "how to combine several catalogs: or, and")
	f.Bool("detailed", false, "report failure codes")
	f.Bool("first", false, "report the first satisfied group label")
	_ = evalCmd.MarkFlagRequired("catalog")
	evalCmd.MarkFlagsMutuallyExclusive("detailed", "first")
}

func runEvalCmd(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	names, _ := cmd.Flags().GetStringSlice("catalog")
	combineFlag, _ := cmd.Flags().GetString("combine")
	op, err := parseCombinator(combineFlag)
	if err != nil {
		return err
	}
	mode := evalSatisfied
	if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
		mode = evalDetailed
	}
	if first, _ := cmd.Flags().GetBool("first"); first {
		mode = evalFirstMatching
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	target, err := selectCatalog(ctx, backend.source, names, op)
	if err != nil {
		return err
	}
	compiler, err := newCompiler(cfg.Engine, backend.schema, logger)
	if err != nil {
		return err
	}
	compiled, diag := compiler.Compile(target)
	logDiagnostics(logger, diag)

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	sum, err := runEval(ctx, compiled, mode, in, cmd.OutOrStdout())
	logger.Info().
		Str("catalog", compiled.Name()).
		Int("items", sum.Items).
		Int("satisfied", sum.Satisfied).
		Int("errors", sum.Errors).
		Msg("evaluation finished")
	return err
}

func parseCombinator(s string) (rules.Combinator, error) {
	switch strings.ToLower(s) {
	case "or":
		return rules.CombineOr, nil
	case "and":
		return rules.CombineAnd, nil
	default:
		return 0, fmt.Errorf("--combine must be or or and, got %q", s)
	}
}

// selectCatalog picks names from src in the given order and combines them.
func selectCatalog(ctx context.Context, src rules.Source, names []string, op rules.Combinator) (types.Catalog, error) {
	all, err := src.Catalogs(ctx)
	if err != nil {
		return types.Catalog{}, err
	}
	byName := make(map[string]types.Catalog, len(all))
	for _, c := range all {
		byName[c.Name] = c
	}

	selected := make([]types.Catalog, 0, len(names))
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return types.Catalog{}, fmt.Errorf("catalog %q: %w", name, types.ErrCatalogNotFound)
		}
		selected = append(selected, c)
	}
	if len(selected) == 0 {
		return types.Catalog{}, fmt.Errorf("at least one --catalog is required")
	}
	return rules.Combine(op, selected...)
}

// runEval evaluates every JSON object line of r and writes one result line
// to w. Malformed lines produce an error result and do not stop the run.
func runEval(ctx context.Context, cat *rules.CompiledCatalog[types.Record], mode evalMode, r io.Reader, w io.Writer) (evalSummary, error) {
	var sum evalSummary

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		sum.Items++

		result := map[string]any{"line": line}
		var item types.Record
		if err := json.UnmarshalFromString(text, &item); err != nil || item == nil {
			if err == nil {
				err = fmt.Errorf("item must be a JSON object")
			}
			result["error"] = err.Error()
			sum.Errors++
		} else {
			switch mode {
			case evalDetailed:
				out := cat.SatisfiedDetailed(item)
				result["satisfied"] = out.Satisfied
				if !out.Satisfied {
					result["codes"] = out.Codes
				}
			case evalFirstMatching:
				label, ok := cat.FirstMatching(item)
				result["satisfied"] = ok
				if ok {
					result["label"] = label
				}
			default:
				result["satisfied"] = cat.Satisfied(item)
			}
			if result["satisfied"] == true {
				sum.Satisfied++
			}
		}

		b, err := json.Marshal(result)
		if err != nil {
			return sum, fmt.Errorf("line %d: encode result: %w", line, err)
		}
		bw.Write(b)
		bw.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return sum, fmt.Errorf("read input: %w", err)
	}
	return sum, bw.Flush()
}
