package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"accompany/internal/pkg/auth/jwt"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:     "token",
		Usage:    "Mint an access token accepted by the development backend",
		Category: "Development",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "member id", Required: true},
			&cli.StringFlag{Name: "nickname", Usage: "display name; empty simulates an unfinished signup"},
			&cli.StringFlag{Name: "profile-image", Usage: "avatar URL"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: jwt.MemberAccessExpiration},
		},
		Action: func(c *cli.Context) error {
			cfg := configFrom(c)

			token, err := jwt.GenerateToken(&jwt.Payload{
				ID:           c.String("user"),
				Nickname:     c.String("nickname"),
				ProfileImage: c.String("profile-image"),
			}, cfg.JWTSecret, c.Duration("ttl"))
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}
