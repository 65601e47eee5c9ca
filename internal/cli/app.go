// Package cli is the interactive command shell of valutatrade.
package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/Krchnk/valutatrade-hub/internal/accounts"
	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/ingestion"
	"github.com/Krchnk/valutatrade-hub/internal/ledger"
	"github.com/Krchnk/valutatrade-hub/internal/rates"
	"github.com/Krchnk/valutatrade-hub/internal/scheduler"
	"github.com/Krchnk/valutatrade-hub/internal/trading"
	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

const prompt = "valutatrade> "

type Deps struct {
	Accounts  *accounts.Service
	Engine    *trading.Engine
	Cache     *rates.Cache
	Updater   *ingestion.Updater
	Scheduler *scheduler.Scheduler
	Registry  *currency.Registry
}

// App holds the session state shared by every command: the logged in user
// lives here between lines.
type App struct {
	accounts  *accounts.Service
	engine    *trading.Engine
	cache     *rates.Cache
	updater   *ingestion.Updater
	scheduler *scheduler.Scheduler
	registry  *currency.Registry

	out      io.Writer
	errOut   io.Writer
	logger   logrus.FieldLogger
	renderer *glamour.TermRenderer
	plain    bool

	user *ledger.User
	quit bool
}

type Option func(*App)

// WithPlainOutput prints tables as raw markdown.
func WithPlainOutput() Option {
	return func(a *App) { a.plain = true }
}

func New(deps Deps, out, errOut io.Writer, logger logrus.FieldLogger, opts ...Option) *App {
	a := &App{
		accounts:  deps.Accounts,
		engine:    deps.Engine,
		cache:     deps.Cache,
		updater:   deps.Updater,
		scheduler: deps.Scheduler,
		registry:  deps.Registry,
		out:       out,
		errOut:    errOut,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	r, err := newRenderer(a.plain)
	if err != nil {
		logger.WithError(err).Warn("failed to create markdown renderer, falling back to plain output")
	}
	a.renderer = r
	return a
}

// CurrentUser returns the logged in user, or nil.
func (a *App) CurrentUser() *ledger.User { return a.user }

// Quit reports whether the exit command has been run.
func (a *App) Quit() bool { return a.quit }

func (a *App) commands() []subcommands.Command {
	return []subcommands.Command{
		&registerCmd{app: a},
		&loginCmd{app: a},
		&logoutCmd{app: a},
		&whoamiCmd{app: a},
		&changePasswordCmd{app: a},
		&showPortfolioCmd{app: a},
		&buyCmd{app: a},
		&sellCmd{app: a},
		&depositCmd{app: a},
		&withdrawCmd{app: a},
		&getRateCmd{app: a},
		&showRatesCmd{app: a},
		&updateRatesCmd{app: a},
		&currenciesCmd{app: a},
		&schedulerStartCmd{app: a},
		&schedulerStopCmd{app: a},
		&schedulerStatusCmd{app: a},
		&exitCmd{app: a},
	}
}

func group(name string) string {
	switch name {
	case "register", "login", "logout", "whoami", "change-password":
		return "account"
	case "show-portfolio", "buy", "sell", "deposit", "withdraw":
		return "trading"
	case "get-rate", "show-rates", "update-rates", "currencies":
		return "rates"
	case "scheduler-start", "scheduler-stop", "scheduler-status":
		return "scheduler"
	}
	return ""
}

// Execute runs one command line. A panicking command is logged and reported
// as an unexpected error; the shell keeps going.
func (a *App) Execute(ctx context.Context, line string) (status subcommands.ExitStatus) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(logrus.Fields{
				"command": line,
				"panic":   fmt.Sprint(r),
				"stack":   string(debug.Stack()),
			}).Error("command panicked")
			fmt.Fprintln(a.out, "Error: "+apperrors.Message(fmt.Errorf("panic: %v", r)))
			status = subcommands.ExitFailure
		}
	}()

	args := strings.Fields(line)
	if len(args) == 0 {
		return subcommands.ExitSuccess
	}

	fs := flag.NewFlagSet("valutatrade", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	commander := subcommands.NewCommander(fs, "valutatrade")
	commander.Output = a.out
	commander.Error = a.errOut
	commander.Register(commander.HelpCommand(), "")

	known := map[string]bool{"help": true}
	for _, c := range a.commands() {
		commander.Register(c, group(c.Name()))
		known[c.Name()] = true
	}
	if !known[args[0]] {
		fmt.Fprintf(a.out, "Unknown command '%s'. Type 'help' to list commands.\n", args[0])
		return subcommands.ExitUsageError
	}

	if err := fs.Parse(args); err != nil {
		return subcommands.ExitUsageError
	}
	return commander.Execute(ctx)
}

// Run reads commands from in until EOF, the exit command, or ctx is done.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(a.out, "Welcome to ValutaTrade Hub. Type 'help' to list commands.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.out, prompt)
		if !scanner.Scan() {
			break
		}
		a.Execute(ctx, scanner.Text())
		if a.quit || ctx.Err() != nil {
			break
		}
	}
	a.shutdown()
	return scanner.Err()
}

func (a *App) shutdown() {
	if a.scheduler != nil && a.scheduler.Running() {
		a.scheduler.Stop()
	}
	a.quit = true
}

// finish prints err the way users should see it and maps it to an exit
// status. Errors without a user facing message are logged in full.
func (a *App) finish(err error) subcommands.ExitStatus {
	if err == nil {
		return subcommands.ExitSuccess
	}
	if apperrors.Unexpected(err) {
		a.logger.WithError(err).Error("command failed")
	}
	fmt.Fprintln(a.out, "Error: "+apperrors.Message(err))
	return subcommands.ExitFailure
}

var errNotLoggedIn = fmt.Errorf("%w: you are not logged in, run 'login' first", apperrors.ErrValidation)

func (a *App) requireUser() (*ledger.User, error) {
	if a.user == nil {
		return nil, errNotLoggedIn
	}
	return a.user, nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: --%s is required", apperrors.ErrValidation, name)
	}
	return nil
}
