package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"ms-storefront/internal/app"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	cliApp := &cli.App{
		Name:  "storefront",
		Usage: "order, payment and inventory service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "optional dotenv file"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and notification dispatcher",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c, log)
					if err != nil {
						return err
					}
					return app.Serve(c.Context, cfg, log)
				},
			},
			{
				Name:      "migrate",
				Usage:     "apply SQL migrations",
				ArgsUsage: "[up|down|version]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "seed", Usage: "load the demo catalog after migrating up"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c, log)
					if err != nil {
						return err
					}
					direction := "up"
					if c.Args().Present() {
						direction = c.Args().First()
					}
					return app.Migrate(c.Context, cfg, log, direction, c.Bool("seed"))
				},
			},
			{
				Name:  "notifier",
				Usage: "deliver queued notifications over SMTP",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c, log)
					if err != nil {
						return err
					}
					return app.RunNotifier(c.Context, cfg, log)
				},
			},
			{
				Name:  "token",
				Usage: "issue an HS256 bearer token for local testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sub", Required: true, Usage: "user id"},
					&cli.StringSliceFlag{Name: "role", Usage: "role claim, repeatable"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: func(c *cli.Context) error {
					secret := os.Getenv("JWT_SECRET")
					if secret == "" {
						return cli.Exit("JWT_SECRET not set", 1)
					}
					token, err := auth.IssueHMACToken(secret, c.String("sub"), c.StringSlice("role"), c.Duration("ttl"))
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, token)
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		log.Error("APP", err.Error())
		log.Close()
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context, log *logger.Logger) (*config.Config, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	log.Debug("CONFIG", fmt.Sprintf("Log level %s", strings.ToUpper(cfg.LogLevel)))
	return cfg, nil
}
