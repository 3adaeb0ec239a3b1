package admincli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dmitrijs2005/fitcoach/internal/server/models"
)

const usage = `Usage: admin [flags] <command> [args]

Commands:
  promote <userName>       grant the Admin role
  demote <userName>        revoke the Admin role
  set-password <userName>  set a new password (prompted, not echoed)
  pending                  list accounts waiting for approval
`

var ErrUsage = errors.New("invalid usage")

// Operator is the account surface the commands need.
// *services.AdminService implements it.
type Operator interface {
	SetRole(ctx context.Context, userName string, role models.Role) error
	SetPassword(ctx context.Context, userName, password string) error
	ListAccounts(ctx context.Context, status models.AccountStatus) ([]*models.Account, error)
}

type App struct {
	op  Operator
	out io.Writer
}

func NewApp(op Operator, out io.Writer) *App {
	return &App{op: op, out: out}
}

// Run executes one command given as positional args.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "promote", "demote":
		if len(rest) != 1 {
			return a.usageError()
		}
		role := models.RoleAdmin
		if cmd == "demote" {
			role = models.RoleUser
		}
		if err := a.op.SetRole(ctx, rest[0], role); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s is now %s\n", rest[0], role)
		return nil

	case "set-password":
		if len(rest) != 1 {
			return a.usageError()
		}
		pw, err := getNewPassword(a.out)
		if err != nil {
			return err
		}
		defer wipe(pw)
		if err := a.op.SetPassword(ctx, rest[0], string(pw)); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "password updated for %s\n", rest[0])
		return nil

	case "pending":
		list, err := a.op.ListAccounts(ctx, models.StatusPending)
		if err != nil {
			return err
		}
		return a.printAccounts(list)

	case "help":
		fmt.Fprint(a.out, usage)
		return nil

	default:
		fmt.Fprintln(a.out, "Unknown command:", cmd)
		return a.usageError()
	}
}

func (a *App) usageError() error {
	fmt.Fprint(a.out, usage)
	return ErrUsage
}

func (a *App) printAccounts(list []*models.Account) error {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no pending accounts")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tCREATED")
	for _, acc := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", acc.ID, acc.UserName, acc.Email, acc.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
