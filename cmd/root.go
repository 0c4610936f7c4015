package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "mewefeed",
		Usage: "Serve MeWe feeds as RSS and a thread viewer API",
		Description: `Bridges a MeWe account to classic syndication feeds.

		Mewefeed logs into MeWe with cookies exported from a browser
		session, converts the undocumented feed payloads into normalized
		posts and serves them as RSS 2.0 documents, a post/thread JSON
		API and an authenticated media proxy.

		Flags can generally be set via environment variables, e.g.:

		--config => MEWEFEED_CONFIG=config.toml
		--listen => MEWEFEED_LISTEN=127.0.0.1:8054
		`,
		Commands: []*cli.Command{
			serveCmd(),
			initCmd(),
			whoamiCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
