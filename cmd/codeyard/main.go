// Command codeyard is a terminal client for the Codeyard catalog API.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/duynhne/codeyard/config"
	"github.com/duynhne/codeyard/internal/app"
	"github.com/duynhne/codeyard/internal/client"
	"github.com/duynhne/codeyard/internal/core/cache"
	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/logger"
	logicv1 "github.com/duynhne/codeyard/internal/logic/v1"
)

var errNotLoggedIn = errors.New("not logged in")

const usage = `Usage: codeyard [global flags] <command> [flags]

Commands:
  login            -user <name> [-password <pw>]
  register         -user <name> [-email <addr>] [-password <pw>]
  logout
  whoami
  tasks            [-search s] [-category id] [-difficulty id] [-sort field] [-page n] [-mine] [-solved]
  task             <task-id>
  solutions        -task <id> [-public|-private] [-page n]
  like             <solution-id>
  dislike          <solution-id>
  publish          <solution-id>
  unpublish        <solution-id>
  delete-solution  <solution-id>

Global flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	app    *app.App
	stdin  io.Reader
	input  *bufio.Reader
	stdout io.Writer
	stderr io.Writer
	user   *domain.User
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("codeyard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.API.BaseURL, "api", cfg.API.BaseURL, "API base URL (API_BASE_URL)")
	fs.StringVar(&cfg.Session.Store, "session-store", cfg.Session.Store, "session store: sqlite, postgres or memory (SESSION_STORE)")
	fs.StringVar(&cfg.Session.Path, "session", cfg.Session.Path, "sqlite session file (SESSION_PATH)")
	fs.StringVar(&cfg.Logging.Level, "log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.SetupWriter(cfg.Logging.Level, stderr)

	a, err := app.New(ctx, cfg, app.WithNotifier(logicv1.NewWriterNotifier(stdout)))
	if err != nil {
		return err
	}
	defer a.Close()

	c := &cli{app: a, stdin: stdin, stdout: stdout, stderr: stderr}
	if c.user, _, err = a.Auth.Restore(ctx); err != nil {
		return err
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "login":
		return c.login(ctx, rest)
	case "register":
		return c.register(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami()
	case "tasks":
		return c.tasks(ctx, rest)
	case "task":
		return c.task(ctx, rest)
	case "solutions":
		return c.solutions(ctx, rest)
	case "like":
		return c.review(ctx, rest, domain.ReviewPositive)
	case "dislike":
		return c.review(ctx, rest, domain.ReviewNegative)
	case "publish":
		return c.publish(ctx, rest, true)
	case "unpublish":
		return c.publish(ctx, rest, false)
	case "delete-solution":
		return c.deleteSolution(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// explain renders API failures with the user-facing message of their kind.
func (c *cli) explain(err error) error {
	if client.Classify(err) == "" || client.Classify(err) == client.KindUnexpected {
		return err
	}
	return errors.New(logicv1.DefaultMessages.Text(err))
}

func (c *cli) requireUser() error {
	if c.user == nil {
		return fmt.Errorf("%w: run \"codeyard login\" first", errNotLoggedIn)
	}
	return nil
}

func (c *cli) password(given, prompt string) (string, error) {
	if given != "" {
		return given, nil
	}
	fmt.Fprint(c.stdout, prompt)
	pw, err := c.readPassword()
	fmt.Fprintln(c.stdout)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if strings.TrimSpace(pw) == "" {
		return "", errors.New("password cannot be empty")
	}
	return pw, nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := c.flags("login")
	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (prompted if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("missing required flags: user")
	}
	pw, err := c.password(*passwordFlag, "Password: ")
	if err != nil {
		return err
	}

	user, err := c.app.Auth.Login(ctx, domain.LoginRequest{Username: *username, Password: pw})
	if err != nil {
		return c.explain(err)
	}
	fmt.Fprintf(c.stdout, "Logged in as %s\n", user.Username)
	return nil
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := c.flags("register")
	username := fs.String("user", "", "Username")
	email := fs.String("email", "", "Email")
	passwordFlag := fs.String("password", "", "Password (prompted if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("missing required flags: user")
	}
	pw, err := c.password(*passwordFlag, "Password: ")
	if err != nil {
		return err
	}
	confirm := pw
	if *passwordFlag == "" {
		if confirm, err = c.password("", "Repeat password: "); err != nil {
			return err
		}
	}

	user, err := c.app.Auth.Register(ctx, domain.RegisterRequest{
		Username: *username, Email: *email, Password: pw, PasswordConfirm: confirm,
	})
	if err != nil {
		if errors.Is(err, logicv1.ErrPasswordMismatch) {
			return err
		}
		return c.explain(err)
	}
	fmt.Fprintf(c.stdout, "Registered and logged in as %s\n", user.Username)
	return nil
}

func (c *cli) logout(ctx context.Context) error {
	if err := c.app.Auth.Logout(ctx); err != nil {
		return c.explain(err)
	}
	fmt.Fprintln(c.stdout, "Logged out")
	return nil
}

func (c *cli) whoami() error {
	if err := c.requireUser(); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s <%s> (id %d)\n", c.user.Username, c.user.Email, c.user.ID)
	return nil
}

func (c *cli) tasks(ctx context.Context, args []string) error {
	fs := c.flags("tasks")
	search := fs.String("search", "", "Search in name and description")
	category := fs.Int64("category", 0, "Category id")
	difficulty := fs.Int64("difficulty", 0, "Difficulty id")
	sort := fs.String("sort", string(logicv1.DefaultOrdering), "created_at, -created_at, name or -name")
	page := fs.Int("page", 1, "Page number")
	mine := fs.Bool("mine", false, "Only tasks added by me")
	solved := fs.Bool("solved", false, "Only tasks I solved")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := logicv1.NewCatalogFilters()
	f.SetSearch(*search)
	f.SetCategory(*category)
	f.SetDifficulty(*difficulty)
	if err := f.SetOrdering(logicv1.Ordering(*sort)); err != nil {
		return err
	}
	f.SetMyTasks(*mine)
	f.SetSolvedByMe(*solved)
	if err := f.SetPage(*page); err != nil {
		return err
	}
	if (*mine || *solved) && c.user == nil {
		return c.requireUser()
	}

	result, err := c.app.Catalog.Tasks(ctx, f)
	if err != nil {
		return c.explain(err)
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tDIFFICULTY\tSTATUS\tADDED BY")
	for _, t := range result.Results {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n", t.ID, t.Name, t.Category, t.Difficulty, t.Status, t.AddedBy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%d task(s), page %d\n", result.Count, f.Page)
	return nil
}

func idArg(args []string, what string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one %s id", what)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s id %q", what, args[0])
	}
	return id, nil
}

func (c *cli) task(ctx context.Context, args []string) error {
	id, err := idArg(args, "task")
	if err != nil {
		return err
	}
	t, err := c.app.Catalog.Task(ctx, id)
	if err != nil {
		return c.explain(err)
	}
	fmt.Fprintf(c.stdout, "#%d %s [%s]\n%s\n", t.ID, t.Name, t.Status, t.Description)
	if t.Resource != "" {
		fmt.Fprintf(c.stdout, "Resource: %s\n", t.Resource)
	}
	return nil
}

func (c *cli) solutions(ctx context.Context, args []string) error {
	fs := c.flags("solutions")
	task := fs.Int64("task", 0, "Task id")
	public := fs.Bool("public", false, "Only public solutions")
	private := fs.Bool("private", false, "Only private solutions")
	page := fs.Int("page", 1, "Page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *task == 0 {
		return errors.New("missing required flags: task")
	}

	filters := logicv1.SolutionFilters{Task: *task, Page: *page}
	switch {
	case *public && *private:
		return errors.New("-public and -private are mutually exclusive")
	case *public:
		filters.IsPublic = public
	case *private:
		no := false
		filters.IsPublic = &no
	}

	result, err := c.app.Catalog.Solutions(ctx, filters)
	if err != nil {
		return c.explain(err)
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUTHOR\tLANGUAGE\tPUBLIC\t+\t-\tMY VOTE")
	for _, s := range result.Results {
		vote := ""
		if s.UserReview != nil {
			vote = s.UserReview.ReviewType.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%d\t%d\t%s\n",
			s.ID, s.User, s.LanguageName, s.IsPublic, s.PositiveReviewsCount, s.NegativeReviewsCount, vote)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%d solution(s)\n", result.Count)
	return nil
}

// solutionFor loads a solution into the cache so mutations can update it.
func (c *cli) solutionFor(ctx context.Context, args []string) (domain.Solution, error) {
	if err := c.requireUser(); err != nil {
		return domain.Solution{}, err
	}
	id, err := idArg(args, "solution")
	if err != nil {
		return domain.Solution{}, err
	}
	sol, err := c.app.Catalog.Solution(ctx, id)
	if err != nil {
		return domain.Solution{}, c.explain(err)
	}
	return sol, nil
}

func (c *cli) review(ctx context.Context, args []string, rt domain.ReviewType) error {
	sol, err := c.solutionFor(ctx, args)
	if err != nil {
		return err
	}
	if _, err := c.app.Mutator.Review(ctx, sol.Task, sol.ID, rt); err != nil {
		if errors.Is(err, logicv1.ErrOwnSolution) {
			return errors.New("you cannot review your own solution")
		}
		return errMutationFailed
	}
	return c.printCounts(sol.ID)
}

// errMutationFailed is returned once the notifier has already shown the
// reason to the user.
var errMutationFailed = errors.New("request failed")

func (c *cli) printCounts(id int64) error {
	if s, ok := cache.GetAs[domain.Solution](c.app.Cache, logicv1.SolutionKey(id)); ok {
		fmt.Fprintf(c.stdout, "Solution %d: +%d / -%d\n", s.ID, s.PositiveReviewsCount, s.NegativeReviewsCount)
	}
	return nil
}

func (c *cli) publish(ctx context.Context, args []string, isPublic bool) error {
	sol, err := c.solutionFor(ctx, args)
	if err != nil {
		return err
	}
	if _, err := c.app.Mutator.Publish(ctx, sol.Task, sol.ID, isPublic); err != nil {
		return errMutationFailed
	}
	return nil
}

func (c *cli) deleteSolution(ctx context.Context, args []string) error {
	sol, err := c.solutionFor(ctx, args)
	if err != nil {
		return err
	}
	if err := c.app.Mutator.Delete(ctx, sol.Task, sol.ID); err != nil {
		return errMutationFailed
	}
	return nil
}

func (c *cli) readPassword() (string, error) {
	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// pipes and tests; one reader so consecutive prompts share buffered input
	if c.input == nil {
		c.input = bufio.NewReader(c.stdin)
	}
	line, err := c.input.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
