package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sparsh/internal/models/spconfig"
	"sparsh/internal/models/splog"
	"syscall"

	"github.com/rs/zerolog/log"
)

const VERSION string = "1.0.0"

var BuildID string

func parseCommandLineArgs() (configFile string, shouldCreateExample bool, versionDisplay bool) {
	var config = flag.String("config", spconfig.DefaultConfigFile, "Fichier de configuration YAML")
	var example = flag.Bool("example", false, "Créer un fichier de configuration exemple")
	var version = flag.Bool("version", false, "version du produit")
	flag.Parse()

	return *config, *example, *version
}

func initConfiguration() *spconfig.Config {
	configFile, shouldCreateExample, versionDisplay := parseCommandLineArgs()

	if versionDisplay {
		fmt.Println(BuildID)
		os.Exit(0)
	}

	spconfig.CreateExample(shouldCreateExample, configFile)

	conf, err := spconfig.LoadAndValidate(configFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		fmt.Println("Usage:")
		fmt.Println("  sparsh -config sparsh.yaml")
		fmt.Println("  sparsh -example  (pour créer un fichier exemple)")
		fmt.Println("  sparsh -version  (affiche la version)")
		os.Exit(1)
	}
	return conf
}

func main() {
	if BuildID == "" {
		BuildID = VERSION
	}

	conf := initConfiguration()
	splog.InitLogger(conf.Logger, conf.Production)
	spconfig.DisplayConfiguration(conf, BuildID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("initialisation impossible")
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("démarrage impossible")
	}
	if err := app.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("serveur arrêté sur erreur")
	}
}
