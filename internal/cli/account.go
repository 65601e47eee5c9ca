package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type registerCmd struct {
	app      *App
	username string
	password string
}

func (*registerCmd) Name() string     { return "register" }
func (*registerCmd) Synopsis() string { return "create a new user" }
func (*registerCmd) Usage() string {
	return "register --username <name> --password <password>\n"
}

func (c *registerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "username", "", "user name")
	f.StringVar(&c.password, "password", "", "password, at least 4 characters")
}

func (c *registerCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := required("username", c.username); err != nil {
		return c.app.finish(err)
	}
	u, err := c.app.accounts.Register(c.username, c.password)
	if err != nil {
		return c.app.finish(err)
	}
	fmt.Fprintf(c.app.out, "User '%s' registered (id=%d). Log in with: login --username %s --password ****\n",
		u.Username, u.ID, u.Username)
	return subcommands.ExitSuccess
}

type loginCmd struct {
	app      *App
	username string
	password string
}

func (*loginCmd) Name() string     { return "login" }
func (*loginCmd) Synopsis() string { return "log in as an existing user" }
func (*loginCmd) Usage() string {
	return "login --username <name> --password <password>\n"
}

func (c *loginCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "username", "", "user name")
	f.StringVar(&c.password, "password", "", "password")
}

func (c *loginCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := required("username", c.username); err != nil {
		return c.app.finish(err)
	}
	u, err := c.app.accounts.Login(c.username, c.password)
	if err != nil {
		return c.app.finish(err)
	}
	c.app.user = u
	fmt.Fprintf(c.app.out, "Logged in as '%s'\n", u.Username)
	return subcommands.ExitSuccess
}

type logoutCmd struct{ app *App }

func (*logoutCmd) Name() string             { return "logout" }
func (*logoutCmd) Synopsis() string         { return "end the current session" }
func (*logoutCmd) Usage() string            { return "logout\n" }
func (*logoutCmd) SetFlags(f *flag.FlagSet) {}

func (c *logoutCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	u, err := c.app.requireUser()
	if err != nil {
		return c.app.finish(err)
	}
	c.app.user = nil
	fmt.Fprintf(c.app.out, "Logged out '%s'\n", u.Username)
	return subcommands.ExitSuccess
}

type whoamiCmd struct{ app *App }

func (*whoamiCmd) Name() string             { return "whoami" }
func (*whoamiCmd) Synopsis() string         { return "show the logged in user" }
func (*whoamiCmd) Usage() string            { return "whoami\n" }
func (*whoamiCmd) SetFlags(f *flag.FlagSet) {}

func (c *whoamiCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	u, err := c.app.requireUser()
	if err != nil {
		return c.app.finish(err)
	}
	fmt.Fprintf(c.app.out, "%s (id=%d, registered %s)\n",
		u.Username, u.ID, u.RegisteredAt.Format("2006-01-02 15:04:05"))
	return subcommands.ExitSuccess
}

type changePasswordCmd struct {
	app     *App
	current string
	next    string
}

func (*changePasswordCmd) Name() string     { return "change-password" }
func (*changePasswordCmd) Synopsis() string { return "change the password of the logged in user" }
func (*changePasswordCmd) Usage() string {
	return "change-password --old <password> --new <password>\n"
}

func (c *changePasswordCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.current, "old", "", "current password")
	f.StringVar(&c.next, "new", "", "new password, at least 4 characters")
}

func (c *changePasswordCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	u, err := c.app.requireUser()
	if err != nil {
		return c.app.finish(err)
	}
	if err := c.app.accounts.ChangePassword(u.ID, c.current, c.next); err != nil {
		return c.app.finish(err)
	}
	fmt.Fprintln(c.app.out, "Password changed")
	return subcommands.ExitSuccess
}
