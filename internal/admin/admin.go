// Package admin implements the maintenance commands of the authkeeper-admin
// tool. Every command runs once against the configured PostgreSQL and Redis
// and exits.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/netx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

var ErrUsage = errors.New("usage")

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// readFile is a test seam for os.ReadFile.
var readFile = os.ReadFile

const usage = `usage: authkeeper-admin [flags] <command> [args]

commands:
  migrate                         apply database migrations
  prune                           delete expired tokens
  tokens <identity>               list tokens of a user
  revoke <id> <identity>          revoke a token
  unrevoke <id> <identity>        unrevoke a token
  set-password <email>            set a user's password
  set-image <identity> <file>     upload a profile image
`

type Tokens interface {
	ListTokens(ctx context.Context, userIdentity string) ([]*models.Session, error)
	Revoke(ctx context.Context, tokenID int64, userIdentity string) (bool, error)
	Unrevoke(ctx context.Context, tokenID int64, userIdentity string) (bool, error)
	Prune(ctx context.Context) (int64, error)
}

type Accounts interface {
	SetPassword(ctx context.Context, email string, pc services.PasswordChange) error
}

type Images interface {
	Upload(ctx context.Context, userID int64, fileName string) (*services.ImageUpload, error)
}

type Admin struct {
	migrate  func(ctx context.Context) error
	tokens   Tokens
	accounts Accounts
	images   Images
	http     *http.Client
	stdinFd  int
	out      io.Writer
}

func New(migrate func(ctx context.Context) error, tokens Tokens, accounts Accounts, images Images, out io.Writer) *Admin {
	return &Admin{
		migrate:  migrate,
		tokens:   tokens,
		accounts: accounts,
		images:   images,
		http:     &http.Client{Timeout: time.Minute},
		stdinFd:  int(os.Stdin.Fd()),
		out:      out,
	}
}

// Usage writes the command summary to w.
func Usage(w io.Writer) {
	fmt.Fprint(w, usage)
}

// Run executes the command in args[0]. Wrong arity yields ErrUsage.
func (a *Admin) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	cmd, args := args[0], args[1:]

	switch cmd {
	case "migrate":
		if len(args) != 0 {
			return ErrUsage
		}
		if err := a.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "migrations applied")
	case "prune":
		if len(args) != 0 {
			return ErrUsage
		}
		n, err := a.tokens.Prune(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "pruned %d tokens\n", n)
	case "tokens":
		if len(args) != 1 {
			return ErrUsage
		}
		return a.listTokens(ctx, args[0])
	case "revoke", "unrevoke":
		if len(args) != 2 {
			return ErrUsage
		}
		return a.setRevoked(ctx, cmd, args[0], args[1])
	case "set-password":
		if len(args) != 1 {
			return ErrUsage
		}
		return a.setPassword(ctx, args[0])
	case "set-image":
		if len(args) != 2 {
			return ErrUsage
		}
		return a.setImage(ctx, args[0], args[1])
	default:
		return ErrUsage
	}
	return nil
}

func (a *Admin) listTokens(ctx context.Context, identity string) error {
	list, err := a.tokens.ListTokens(ctx, identity)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tREVOKED\tEXPIRES")
	for _, s := range list {
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", s.ID, s.TokenType, s.Revoked, s.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *Admin) setRevoked(ctx context.Context, cmd, rawID, identity string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid token id %q", rawID)
	}

	var ok bool
	if cmd == "revoke" {
		ok, err = a.tokens.Revoke(ctx, id, identity)
	} else {
		ok, err = a.tokens.Unrevoke(ctx, id, identity)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("token %d not found for %s", id, identity)
	}
	fmt.Fprintf(a.out, "token %d: %sd\n", id, cmd)
	return nil
}

func (a *Admin) setPassword(ctx context.Context, email string) error {
	password, err := a.prompt("New password: ")
	if err != nil {
		return err
	}
	confirm, err := a.prompt("Repeat password: ")
	if err != nil {
		return err
	}

	if err := a.accounts.SetPassword(ctx, email, services.PasswordChange{Password: password, PasswordConfirm: confirm}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "password updated for %s\n", email)
	return nil
}

func (a *Admin) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	pw, err := readPassword(a.stdinFd)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("error reading password: %w", err)
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

func (a *Admin) setImage(ctx context.Context, identity, path string) error {
	userID, err := services.ParseIdentity(identity)
	if err != nil {
		return fmt.Errorf("invalid identity %q", identity)
	}

	body, err := readFile(path)
	if err != nil {
		return err
	}

	up, err := a.images.Upload(ctx, userID, path)
	if err != nil {
		return err
	}

	if err := netx.PutPresigned(ctx, a.http, up.URL, netx.ContentType(path), body); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "profile image stored as %s\n", up.Key)
	return nil
}
