package cmd

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"

	"mewefeed/config"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Interactively create a configuration file",
		Description: `Asks for the basic settings and writes a config.toml.

Point cookie storage at a Netscape cookies.txt exported from a browser
that is logged into MeWe.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path of the configuration file to create",
				EnvVars: []string{"MEWEFEED_CONFIG"},
				Value:   "config.toml",
			},
		},
		Action: func(ctx *cli.Context) error {
			path := ctx.String("config")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, not overwriting", path)
			}

			cookies, err := prompt.New().Ask("Path to cookies.txt:").Input("cookies.txt")
			if err != nil {
				return err
			}

			listen, err := prompt.New().Ask("Listen address:").Input(config.DefaultListen)
			if err != nil {
				return err
			}

			hostname, err := prompt.New().Ask("Public base URL:").Input("http://" + listen)
			if err != nil {
				return err
			}

			cfg := config.Config{
				Hostname:      hostname,
				Listen:        listen,
				CookieStorage: cookies,
			}

			file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
			if err != nil {
				return fmt.Errorf("could not create config file: %w", err)
			}
			defer file.Close()

			if err := toml.NewEncoder(file).Encode(cfg); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}
