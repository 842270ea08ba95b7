package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/urfave/cli/v3"

	"github.com/townspark/townspark/internal/apiclient"
	"github.com/townspark/townspark/internal/session"
	"github.com/townspark/townspark/internal/tokensource"
)

func passwordStdinFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "password-stdin",
		Usage: "read the password from stdin",
	}
}

func (r *runner) loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in and store the session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "account email"},
			passwordStdinFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, shutdown, err := r.session(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

			p := newPrompter(cmd, cmd.Bool("password-stdin"))
			email, err := p.value("Email", cmd.String("email"))
			if err != nil {
				return err
			}
			password, err := p.secret("Password")
			if err != nil {
				return err
			}

			if err := client.Login(ctx, apiclient.Credentials{Email: email, Password: password}); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.Root().Writer, "Logged in as %s.\n", email)
			return nil
		},
	}
}

func (r *runner) signupCommand() *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "create an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "account email"},
			&cli.StringFlag{Name: "username", Usage: "public user name"},
			passwordStdinFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, shutdown, err := r.session(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

			p := newPrompter(cmd, cmd.Bool("password-stdin"))
			email, err := p.value("Email", cmd.String("email"))
			if err != nil {
				return err
			}
			username, err := p.value("Username", cmd.String("username"))
			if err != nil {
				return err
			}
			password, err := p.secret("Password")
			if err != nil {
				return err
			}
			confirm := password
			if !p.fromStdin {
				if confirm, err = p.secret("Repeat password"); err != nil {
					return err
				}
			}

			user, err := client.Signup(ctx, apiclient.Signup{
				Email:      openapi_types.Email(email),
				Username:   username,
				Password:   password,
				RePassword: confirm,
			})
			if err != nil {
				return fmt.Errorf("signup failed: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.Root().Writer, "Account %s created. Run `townspark login` to sign in.\n", user.Username)
			return nil
		},
	}
}

func (r *runner) logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the stored session",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, shutdown, err := r.session(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

			if err := client.Logout(ctx); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.Root().Writer, "Logged out.")
			return nil
		},
	}
}

func (r *runner) whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the signed-in account",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, shutdown, err := r.session(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

			user, err := client.CurrentUser(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.Root().Writer, "%s <%s> (id %d)\n", user.Username, user.Email, user.ID)
			return nil
		},
	}
}

func (r *runner) statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the local session state",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, shutdown, err := r.session(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

			out := cmd.Root().Writer
			store := client.Session()
			state := store.State(ctx)
			_, _ = fmt.Fprintf(out, "Session: %s\n", state)
			if state != session.Authenticated {
				return nil
			}

			access, err := store.AccessToken(ctx)
			if errors.Is(err, session.ErrNotFound) {
				_, _ = fmt.Fprintln(out, "Access token: none (renewed on next call)")
				return nil
			}
			if err != nil {
				return err
			}

			exp, ok := tokensource.Expiry(access)
			switch {
			case !ok:
				_, _ = fmt.Fprintln(out, "Access token: expiry unknown")
			case time.Now().After(exp):
				_, _ = fmt.Fprintf(out, "Access token: expired %s (renewed on next call)\n", exp.Local().Format(time.RFC1123))
			default:
				_, _ = fmt.Fprintf(out, "Access token: valid until %s\n", exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}
