package main

import (
	"context"
	"errors"
	"fmt"

	"chatter/internal/auth"
	"chatter/internal/config"
	"chatter/internal/models"

	"github.com/urfave/cli/v3"
)

// tokenCommand mints a bearer token without going through login, for
// poking at the WebSocket gateway locally.
func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Print a signed bearer token for a user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user-id", Usage: "User id (token subject)", Required: true},
			&cli.StringFlag{Name: "username", Usage: "Username claim", Required: true},
			&cli.StringFlag{Name: "email", Usage: "Email claim"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required")
			}

			tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL.Duration)
			token, err := tokens.Issue(models.Identity{
				UserId:   c.String("user-id"),
				Username: c.String("username"),
				Email:    c.String("email"),
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, token)
			return nil
		},
	}
}
