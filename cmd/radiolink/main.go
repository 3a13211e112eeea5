// Command radiolink runs one end of a radio packet link.
//
// The station role is the only command line argument. Everything else comes
// from the JSON file named by RADIOLINK_CONFIG, or the built-in defaults.
//
//	radiolink --base
//	radiolink --mobile
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/1ureka/radiolink/internal/app"
	"github.com/1ureka/radiolink/internal/config"
	"github.com/1ureka/radiolink/internal/util"
)

var version = "dev"

const usage = "usage: radiolink --base | --mobile"

var errUsage = errors.New(usage)

func main() {
	role, err := parseRole(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.Load(role, os.Getenv(config.EnvConfigPath))
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pterm.Info.Println(fmt.Sprintf("radiolink v%s (%s station)", version, cfg.Role))
	util.LogInfo("radio %s on channel %d, interface %s %s",
		cfg.Radio.Address, cfg.Radio.Channel, cfg.Interface.Name, cfg.Interface.Address)
	pterm.Println()

	if err := app.Run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		stop()
		os.Exit(1)
	}

	util.LogInfo("station stopped")
}

// parseRole accepts exactly one of --base or --mobile.
func parseRole(args []string) (config.Role, error) {
	fs := flag.NewFlagSet("radiolink", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	base := fs.Bool("base", false, "run as the base station")
	mobile := fs.Bool("mobile", false, "run as the mobile station")

	if err := fs.Parse(args); err != nil {
		return "", errUsage
	}
	if fs.NArg() != 0 || len(args) != 1 {
		return "", errUsage
	}

	switch {
	case *base && !*mobile:
		return config.RoleBase, nil
	case *mobile && !*base:
		return config.RoleMobile, nil
	default:
		return "", errUsage
	}
}
