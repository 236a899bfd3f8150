// Command scriptcheck lints a station script and replays utterances through
// the reply selector, printing the route taken for each turn.
//
//	scriptcheck -script chest-pain.txt [-model gpt-4o] -five-min "Is there anything you want to ask me?" "Hi how are you" "Do you understand?"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/wolfman30/osce-practice-platform/cmd/mainconfig"
	"github.com/wolfman30/osce-practice-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/osce-practice-platform/internal/config"
	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
	"github.com/wolfman30/osce-practice-platform/internal/llm"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

type options struct {
	scriptPath string
	fiveMin    string
	model      string
	offline    bool
	utterances []string
}

func main() {
	_ = godotenv.Load()

	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var client llm.Client
	if !opts.offline {
		client, err = bootstrap.BuildLLMClient(ctx, cfg, func(ctx context.Context) (aws.Config, error) {
			return mainconfig.LoadAWSConfig(ctx, cfg)
		}, logger)
		if err != nil {
			logger.Warn("generative client unavailable, continuing offline", "error", err)
			client = nil
		}
	}

	selector := bootstrap.BuildSelector(cfg, client, logger, selectorOptions(opts)...)
	if err := run(ctx, opts, selector, bootstrap.HistoryLimits(cfg), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseArgs(args []string, errOut io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("scriptcheck", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&opts.scriptPath, "script", "", "path to the station script")
	fs.StringVar(&opts.fiveMin, "five-min", "", "the station's five-minute question")
	fs.StringVar(&opts.model, "model", "", "model id sent to a single provider, overriding its configured model")
	fs.BoolVar(&opts.offline, "offline", false, "skip the generative client")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if strings.TrimSpace(opts.scriptPath) == "" {
		return options{}, errors.New("-script is required")
	}
	opts.utterances = fs.Args()
	return opts, nil
}

func selectorOptions(opts options) []dialogue.Option {
	model := strings.TrimSpace(opts.model)
	if model == "" {
		return nil
	}
	return []dialogue.Option{dialogue.WithModel(model)}
}

// replier is satisfied by *dialogue.Selector.
type replier interface {
	Select(ctx context.Context, req dialogue.Request) (dialogue.Result, error)
}

func run(ctx context.Context, opts options, selector replier, limits dialogue.HistoryLimits, out io.Writer) error {
	raw, err := os.ReadFile(opts.scriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	script := dialogue.ParseScript(string(raw))
	printLint(out, script.Lint())

	var history []dialogue.Turn
	for _, utterance := range opts.utterances {
		res, err := selector.Select(ctx, dialogue.Request{
			Script:             script,
			FiveMinuteQuestion: opts.fiveMin,
			History:            dialogue.SanitizeHistory(history, limits),
			Utterance:          utterance,
		})
		if err != nil {
			fmt.Fprintf(out, "> %s\n  error: %v\n", utterance, err)
			continue
		}
		score := ""
		if res.MatchScore != nil {
			score = fmt.Sprintf(" score=%.4f", *res.MatchScore)
		}
		fmt.Fprintf(out, "> %s\n  [%s%s] %s\n", utterance, res.Route, score, res.ReplyText)
		history = append(history,
			dialogue.Turn{Role: dialogue.RoleUser, Content: utterance},
			dialogue.Turn{Role: dialogue.RoleAssistant, Content: res.ReplyText},
		)
	}
	return nil
}

func printLint(out io.Writer, report dialogue.LintReport) {
	if report.Empty {
		fmt.Fprintln(out, "script: empty")
		return
	}
	fmt.Fprintf(out, "script: %d pairs, %d allowed replies\n", len(report.Pairs), report.AllowedReplyCount)
	for _, trigger := range report.UnmatchedTriggers {
		fmt.Fprintf(out, "  unmatched trigger: %s\n", trigger)
	}
	for _, reply := range report.OrphanReplies {
		fmt.Fprintf(out, "  orphan reply: %s\n", reply)
	}
	fmt.Fprintln(out)
}
