package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/entrhq/forumreply/pkg/audit"
	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/config"
	"github.com/entrhq/forumreply/pkg/generator"
	"github.com/entrhq/forumreply/pkg/ledger"
	"github.com/entrhq/forumreply/pkg/locator"
	"github.com/entrhq/forumreply/pkg/logging"
	"github.com/entrhq/forumreply/pkg/mailcode"
	"github.com/entrhq/forumreply/pkg/pacing"
	"github.com/entrhq/forumreply/pkg/runner"
	"github.com/entrhq/forumreply/pkg/session"
)

type runOptions struct {
	sites  []string
	dryRun bool
}

// run executes one pass over the configured sites
func run(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.dryRun {
		cfg.Generation.DryRun = true
	}

	targets, err := cfg.Targets(opts.sites...)
	if err != nil {
		return err
	}

	level, err := logging.ParseVerbosity(cfg.Logging.Verbosity)
	if err != nil {
		return err
	}
	var console io.Writer
	if cfg.Logging.Console {
		console = os.Stderr
	}
	logging.Configure(cfg.Logging.Dir, level, console)
	defer logging.CloseAll()

	log, logErr := logging.NewLogger("main")
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging to stderr: %v\n", logErr)
	}
	log.Infof("forumreply v%s starting, run %s, %d site(s)", version, logging.GetRunID(), len(targets))
	if cfg.Generation.DryRun {
		log.Warnf("dry run: replies are generated but never submitted or recorded")
	}

	store, err := ledger.OpenSQLite(ctx, cfg.Ledger.Path, ledger.WithBusyTimeout(cfg.Ledger.BusyTimeout))
	if err != nil {
		return err
	}
	defer store.Close()

	var replies *audit.Log
	if cfg.Audit.Path != "" {
		if replies, err = audit.Open(cfg.Audit.Path); err != nil {
			return err
		}
		defer replies.Close()
	}

	gen, err := generator.NewOpenAI(cfg.LLM.APIKey, cfg.GeneratorOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}
	log.Infof("generating with %s", gen.Model())

	var codes session.CodeProvider
	if src := cfg.IMAPSource(); src != nil {
		codes = mailcode.NewPoller(src,
			mailcode.WithInterval(cfg.Mail.PollInterval),
			mailcode.WithLogger(logging.MustLogger("mailcode")))
	} else {
		log.Warnf("no mailbox configured: second-factor challenges will fail")
	}

	launcher := browser.NewLauncher(cfg.Backend(), cfg.LaunchOptions())
	if err := launcher.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := launcher.Shutdown(); err != nil {
			log.Warnf("browser shutdown: %v", err)
		}
	}()

	r := runner.New(cfg.RunnerConfig(), runner.Deps{
		Launcher:  launcher,
		Resolver:  locator.NewResolver(append(cfg.LocatorOptions(), locator.WithLogger(logging.MustLogger("locator")))...),
		Pacer:     pacing.New(cfg.PacingConfig()),
		Codes:     codes,
		Generator: gen,
		Ledger:    store,
		Audit:     replies,
		Logger:    logging.MustLogger("runner"),
	})

	summaries, err := r.Run(ctx, targets)
	fmt.Println(runner.Render(summaries))

	switch {
	case errors.Is(err, context.Canceled):
		log.Warnf("run interrupted")
		return nil
	case err != nil:
		log.Errorf("run aborted: %v", err)
		return err
	}
	log.Infof("run finished, log at %s", log.LogPath())
	return nil
}
