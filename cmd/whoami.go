package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"mewefeed/mewe"
)

func whoamiCmd() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Check that the configured session is usable",
		Description: `Establishes a session from the configured cookies and prints
the upstream identity object as JSON.

Useful to verify freshly exported cookies before starting the server.
Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				EnvVars: []string{"MEWEFEED_CONFIG"},
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:    "cookies",
				Usage:   "Path to the Netscape cookies.txt, overrides the config file",
				EnvVars: []string{"MEWEFEED_COOKIES"},
			},
			&cli.StringFlag{
				Name:    "proxy",
				Usage:   "Outbound SOCKS5 proxy URL, overrides the config file",
				EnvVars: []string{"MEWEFEED_PROXY"},
			},
		},
		Action: func(ctx *cli.Context) error {
			// Keep stdout clean for the JSON output
			log.SetOutput(os.Stderr)

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			client, err := mewe.NewClient(mewe.ClientConfig{
				CookiePath: cfg.CookieStorage,
				UserAgent:  cfg.UserAgent,
				ProxyUrl:   cfg.Proxy,
			})
			if err != nil {
				return err
			}

			identity, err := json.Marshal(client.Identity())
			if err != nil {
				return err
			}
			fmt.Println(string(identity))
			return nil
		},
	}
}
