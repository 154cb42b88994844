package main

import (
	"flag"
	"os"

	"github.com/danmuck/groundctl/internal/config"
	"github.com/danmuck/groundctl/internal/logging"
	"github.com/danmuck/groundctl/internal/logs"
)

func fatal(format string, args ...any) {
	logs.Errf(format, args...)
	os.Exit(1)
}

func main() {
	kind := flag.String("kind", config.KindGround, "template kind: groundctl|mission")
	output := flag.String("output", "", "output path for the template")
	validate := flag.Bool("validate", false, "validate an existing groundctl config file")
	input := flag.String("input", "groundctl.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite an existing file")
	flag.Parse()
	logging.ConfigureRuntime()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			fatal("configgen: %v", err)
		}
		logs.Infof("Validated config %q at %s (address=%s)", cfg.Name, *input, cfg.Address)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case config.KindGround:
			target = "groundctl.toml"
		case config.KindMission:
			target = "mission.toml"
		default:
			fatal("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		fatal("configgen: %v", err)
	}
	logs.Infof("Wrote %s template to %s", *kind, target)
}
