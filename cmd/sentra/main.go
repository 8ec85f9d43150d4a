package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/config"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
)

const version = "0.3.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

var (
	cfg      *config.Config
	commands map[string]*Command
)

// commandOrder is the order commands are listed in usage output.
var commandOrder = []string{"serve", "migrate", "list", "violations", "download-models", "config", "version", "help"}

func init() {
	commands = map[string]*Command{
		"serve": {
			Name:        "serve",
			Description: "Start the HTTP API",
			Usage:       "sentra serve",
			Run:         cmdServe,
		},
		"migrate": {
			Name:        "migrate",
			Description: "Rewrite stored face data in the current format",
			Usage:       "sentra migrate [-dry-run]",
			Run:         cmdMigrate,
		},
		"list": {
			Name:        "list",
			Description: "List users with registered faces",
			Usage:       "sentra list",
			Run:         cmdList,
		},
		"violations": {
			Name:        "violations",
			Description: "List violation memos, newest first",
			Usage:       "sentra violations [-status pending] [-limit 20]",
			Run:         cmdViolations,
		},
		"download-models": {
			Name:        "download-models",
			Description: "Download face detection models",
			Usage:       "sentra download-models [directory]",
			Run:         cmdDownloadModels,
		},
		"config": {
			Name:        "config",
			Description: "Show current configuration",
			Usage:       "sentra config",
			Run:         cmdConfig,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Usage:       "sentra version",
			Run:         cmdVersion,
		},
		"help": {
			Name:        "help",
			Description: "Show help information",
			Usage:       "sentra help [command]",
			Run:         cmdHelp,
		},
	}
}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	args := flag.Args()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load .env: %v\n", err)
	}

	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
	}

	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if *debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Debugf("Sentra v%s starting", version)
	logging.Debugf("Config loaded, storage backend: %s", cfg.Storage.Backend)

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.Run(args[1:]); err != nil {
		logging.WithError(err).Errorf("Command '%s' failed", cmdName)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Sentra - Face login and traffic violation service")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: sentra [options] <command> [arguments]")
	fmt.Println("\nOptions:")
	fmt.Println("  -config <file>   Path to configuration file")
	fmt.Println("  -debug           Enable debug logging")
	fmt.Println("\nCommands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Printf("  %-16s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\nExamples:")
	fmt.Println("  sentra serve                       # Serve on the configured address")
	fmt.Println("  sentra -debug migrate -dry-run     # Report records needing migration")
	fmt.Println("  sentra violations -status pending  # Show unpaid memos")
	fmt.Println("\nRun 'sentra help <command>' for more information on a command.")
}

func cmdVersion(args []string) error {
	fmt.Printf("Sentra v%s\n", version)
	fmt.Println("Face login and traffic violation service")
	return nil
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	fmt.Printf("Command: %s\n", cmd.Name)
	fmt.Printf("Description: %s\n", cmd.Description)
	fmt.Printf("Usage: %s\n", cmd.Usage)

	switch cmdName {
	case "serve":
		fmt.Println("\nEnvironment:")
		fmt.Println("  SENTRA_HTTP_ADDR      Listen address")
		fmt.Println("  SENTRA_STORAGE        mongo or file")
		fmt.Println("  SENTRA_MONGO_URI      MongoDB connection string")
		fmt.Println("  SENTRA_DETECTOR       dlib or pigo")
		fmt.Println("  GIN_MODE              debug, release or test")
		fmt.Println("\nA .env file in the working directory is loaded first.")
	case "migrate":
		fmt.Println("\nMigration:")
		fmt.Println("  Records holding a face thumbnail are re-encoded.")
		fmt.Println("  Records holding only legacy string data are cleared;")
		fmt.Println("  those users must register their face again.")
	case "config":
		fmt.Println("\nConfiguration Locations:")
		fmt.Println("  System: /etc/sentra/sentra.yaml")
		fmt.Println("  User:   ~/.config/sentra/sentra.yaml")
		fmt.Println("\nUse -config flag to specify a custom config file.")
	}

	return nil
}
