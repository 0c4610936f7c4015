package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"mewefeed/config"
	"mewefeed/markup"
	"mewefeed/media"
	"mewefeed/mewe"
	"mewefeed/normalize"
	"mewefeed/proxy"
	"mewefeed/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the bridged feeds",
		Description: `Starts the HTTP server.

Establishes a MeWe session from the configured cookie file and serves
the home feed and per-user feeds as RSS documents, single posts with
their comment threads as JSON, and proxied media assets.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				EnvVars: []string{"MEWEFEED_CONFIG"},
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "Address to listen on, overrides the config file",
				EnvVars: []string{"MEWEFEED_LISTEN"},
			},
			&cli.StringFlag{
				Name:    "hostname",
				Usage:   "Public base URL, overrides the config file",
				EnvVars: []string{"MEWEFEED_HOSTNAME"},
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
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			fmt.Println("Connecting to MeWe...")

			client, err := mewe.NewClient(mewe.ClientConfig{
				CookiePath: cfg.CookieStorage,
				UserAgent:  cfg.UserAgent,
				ProxyUrl:   cfg.Proxy,
			})
			if err != nil {
				return fmt.Errorf("could not establish session: %w", err)
			}

			emojis, err := markup.LoadEmojiIndex(cfg.EmojiIndex)
			if err != nil {
				return err
			}

			rewriter := &media.Rewriter{
				Hostname:  cfg.Hostname,
				ImageSize: cfg.ImageSize,
				ThumbSize: cfg.ThumbSize,
			}

			app := server.Server(&server.ServerConfig{
				Hostname:   cfg.Hostname,
				Client:     client,
				Normalizer: normalize.New(markup.NewResolver(emojis), rewriter),
				Rewriter:   rewriter,
				Proxy:      proxy.New(client, proxy.DefaultTimeout),
				FeedLimit:  cfg.FeedLimit,
				FeedPages:  cfg.FeedPages,
			})

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			var wg sync.WaitGroup
			wg.Add(1)

			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Errorf("Error shutting down server: %v", err)
				}
				wg.Done()
			}()

			go func() {
				fmt.Printf("Starting server on %s...\n", cfg.Listen)
				if err := app.Listen(cfg.Listen); err != nil {
					log.Panic(err)
				}
			}()

			wg.Wait()

			fmt.Println("Done!")
			return nil
		},
	}
}

// loadConfig reads the TOML file and lets command line flags override it.
// A missing config file is fine as long as the cookie path is given.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	var cfg *config.Config

	path := ctx.String("config")
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.Config{}
	}

	if v := ctx.String("listen"); v != "" {
		cfg.Listen = v
	}
	if v := ctx.String("hostname"); v != "" {
		cfg.Hostname = v
	}
	if v := ctx.String("cookies"); v != "" {
		cfg.CookieStorage = v
	}
	if v := ctx.String("proxy"); v != "" {
		cfg.Proxy = v
	}
	cfg.ApplyDefaults()

	if cfg.CookieStorage == "" {
		return nil, fmt.Errorf("no cookie file configured, set cookie_storage or --cookies")
	}
	return cfg, nil
}
