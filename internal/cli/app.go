package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/tansive/crmctl/internal/auth"
	"github.com/tansive/crmctl/internal/common/httpclient"
	"github.com/tansive/crmctl/internal/crm"
	"github.com/tansive/crmctl/internal/session"
	"golang.org/x/term"
)

// app is everything a command needs to talk to the backend. It is built
// per invocation from the loaded config.
type app struct {
	cfg    *Config
	store  *session.FileStore
	client *httpclient.HTTPClient
	auth   *auth.Manager
	api    *crm.API

	out    io.Writer
	errOut io.Writer

	expiredOnce sync.Once
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	store, err := session.OpenFileStore(cfg.SessionPath())
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		store:  store,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
	a.client = httpclient.NewClient(cfg, store, httpclient.NavigatorFunc(a.navigate),
		httpclient.ClientOptions{DisableCertValidation: cfg.Insecure})
	a.auth = auth.NewManager(a.client, store, &printNotifier{out: a.out, errOut: a.errOut})
	a.api = crm.New(a.client)
	return a, nil
}

// navigate is where the client sends us after a 401 cleared the session.
// Concurrent calls that all fail print the hint once.
func (a *app) navigate(route string) {
	if a.auth != nil {
		a.auth.Reload()
	}
	if route == httpclient.LoginRoute {
		a.expiredOnce.Do(func() {
			warnLabel.Fprintln(a.errOut, `Session expired. Sign in again with "crmctl login".`)
		})
	}
}

// requireLogin fails early for commands that cannot work anonymously.
func (a *app) requireLogin() error {
	if !a.auth.IsAuthenticated() {
		return fmt.Errorf(`not logged in. Sign in with "crmctl login"`)
	}
	return nil
}

// printNotifier prints outcomes as colored one-liners. In JSON mode only
// errors are printed, to stderr.
type printNotifier struct {
	out    io.Writer
	errOut io.Writer
}

func (n *printNotifier) Success(msg string) {
	if jsonOutput {
		return
	}
	okLabel.Fprintf(n.out, "✓ %s\n", msg)
}

func (n *printNotifier) Error(msg string) {
	errorLabel.Fprintf(n.errOut, "✗ %s\n", msg)
}

// prompter reads answers from the command's input. One instance must be used
// per command so buffered input is not lost between questions.
type prompter struct {
	in     *bufio.Reader
	file   *os.File
	errOut io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	p := &prompter{in: bufio.NewReader(cmd.InOrStdin()), errOut: cmd.ErrOrStderr()}
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		p.file = f
	}
	return p
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.errOut, label)
	s, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", fmt.Errorf("unable to read input: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// password reads without echo from a terminal, and as a plain line otherwise.
func (p *prompter) password(label string) (string, error) {
	if p.file == nil || !term.IsTerminal(int(p.file.Fd())) {
		return p.line(label)
	}
	fmt.Fprint(p.errOut, label)
	b, err := term.ReadPassword(int(p.file.Fd()))
	fmt.Fprintln(p.errOut)
	if err != nil {
		return "", fmt.Errorf("unable to read password: %w", err)
	}
	return string(b), nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func (p *prompter) confirm(question string) (bool, error) {
	answer, err := p.line(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
