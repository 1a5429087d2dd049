// Command bmlogin signs in to the building-management console from a
// terminal and keeps the session in a local file.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/tajious/bmconsole/internal/config"
	"github.com/tajious/bmconsole/internal/logging"
	"github.com/tajious/bmconsole/internal/login"
	"github.com/tajious/bmconsole/internal/middleware"
	"github.com/tajious/bmconsole/internal/models"
	"github.com/tajious/bmconsole/internal/session"
	"github.com/tajious/bmconsole/internal/storage"
	"github.com/tajious/bmconsole/internal/upstream"
)

const usage = `usage: bmlogin <command>

commands:
  login           sign in interactively
  logout          end the stored session
  status          show the stored session
  open <area>     check access to the staff or renter area
`

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
)

type app struct {
	accounts *upstream.Client
	state    *session.State
	store    *storage.FileTokenStore
	cfg      *config.Config
	logger   *slog.Logger
	nav      *lastPath
}

// lastPath remembers where the session asked to go.
type lastPath struct{ path string }

func (l *lastPath) Navigate(path string) { l.path = path }

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Keep the terminal for prompts; logs only surface at warn and above.
	level := cfg.LogLevel
	if level == "info" || level == "debug" {
		level = "warn"
	}
	logger := logging.NewWithWriter(os.Stderr, level)

	path := cfg.Client.SessionFile
	if path == "" {
		path, err = storage.DefaultFilePath()
		if err != nil {
			log.Fatalf("Failed to resolve session file: %v", err)
		}
	}

	// Interrupts keep their default behaviour so Ctrl-C works at a prompt.
	ctx := context.Background()

	store := storage.NewFileTokenStore(path, logger)
	nav := &lastPath{}
	a := &app{
		accounts: upstream.NewClient(cfg.Upstream, logger),
		state:    session.New(store, nav, logger),
		store:    store,
		cfg:      cfg,
		logger:   logger,
		nav:      nav,
	}
	a.state.Load(ctx)

	switch os.Args[1] {
	case "login":
		err = a.login(ctx, os.Stdin)
	case "logout":
		err = a.logout(ctx)
	case "status":
		err = a.status(ctx)
	case "open":
		if len(os.Args) < 3 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		err = a.open(ctx, os.Args[2])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		red.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) login(ctx context.Context, in io.Reader) error {
	if st := a.state.Status(); st.Authenticated {
		yellow.Printf("Already signed in as %s. Run `bmlogin logout` first.\n", st.Role)
		return nil
	}

	flow := login.NewController(a.accounts, a.state, login.Options{
		ResendSeconds: a.cfg.Flow.ResendSeconds(),
		Ticker:        login.SystemTicker{},
		Logger:        a.logger,
	})
	defer flow.Close()

	reader := bufio.NewReader(in)
	prompt := func(label string) (string, error) {
		cyan.Print("▶ ")
		fmt.Print(label)
		line, err := reader.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	for {
		snap := flow.Snapshot()
		if snap.Authenticated {
			green.Printf("Signed in as %s. Home: %s\n", snap.Role, a.nav.path)
			return nil
		}

		var (
			input string
			err   error
		)
		switch snap.Step {
		case login.StepIdentity:
			if input, err = prompt("Phone, email or username: "); err != nil {
				return err
			}
			flow.ResolveIdentity(ctx, input)

		case login.StepPassword:
			if input, err = prompt(fmt.Sprintf("Password for %s (x = not me): ", snap.Identity)); err != nil {
				return err
			}
			if input == "x" {
				flow.Reset()
				continue
			}
			flow.LoginWithPassword(ctx, "", input)

		case login.StepCode:
			hint := "r = resend"
			if !snap.CanResend {
				hint = fmt.Sprintf("resend in %ds", snap.ResendIn)
			}
			if input, err = prompt(fmt.Sprintf("Code sent to %s (%s, x = not me): ", snap.Identity, hint)); err != nil {
				return err
			}
			switch strings.TrimSpace(input) {
			case "x":
				flow.Reset()
				continue
			case "r":
				if current := flow.Snapshot(); !current.CanResend {
					yellow.Printf("You can request a new code in %ds.\n", current.ResendIn)
					continue
				}
				flow.RequestCode(ctx, "")
			default:
				flow.VerifyCode(ctx, input)
			}
		}

		printMessage(flow.Snapshot().Message)
	}
}

func printMessage(msg string) {
	switch msg {
	case "":
	case login.MsgCodeSent:
		green.Println(msg)
	default:
		red.Println(msg)
	}
}

func (a *app) logout(ctx context.Context) error {
	tokens := a.state.Tokens(ctx)
	if !tokens.Authenticated() {
		yellow.Println("Not signed in.")
		return nil
	}

	if tokens.Refresh != "" {
		if err := a.accounts.Logout(ctx, tokens.Access, tokens.Refresh); err != nil {
			a.logger.Warn("revoke refresh token", "error", err)
		}
	}
	if err := a.state.Logout(ctx); err != nil {
		return err
	}
	green.Println("Signed out.")
	return nil
}

func (a *app) status(ctx context.Context) error {
	refresher := session.NewRefresher(a.accounts, a.cfg.Flow.RefreshLeeway, a.logger)
	if !refresher.Ensure(ctx, a.state) {
		yellow.Println("Not signed in.")
		return nil
	}

	st := a.state.Status()
	green.Printf("Signed in as %s\n", st.Role)
	fmt.Printf("Home:    %s\n", st.Role.HomePath())
	fmt.Printf("Session: %s\n", a.store.Path())
	return nil
}

// open applies the console's guard to one of the landing areas.
func (a *app) open(ctx context.Context, area string) error {
	required, ok := models.ParseRole(area)
	if !ok {
		return fmt.Errorf("unknown area %q, want staff or renter", area)
	}

	refresher := session.NewRefresher(a.accounts, a.cfg.Flow.RefreshLeeway, a.logger)
	refresher.Ensure(ctx, a.state)

	st := a.state.Status()
	switch middleware.Decide(st, required) {
	case middleware.Render:
		green.Printf("Access granted: %s\n", required.HomePath())
	case middleware.RedirectHome:
		yellow.Printf("Not your area. Redirecting to %s\n", st.Role.HomePath())
	case middleware.RedirectLogin:
		yellow.Printf("Sign in first. Redirecting to %s\n", models.LoginPath)
	case middleware.ShowLoading:
		fmt.Println("Loading…")
	}
	return nil
}
