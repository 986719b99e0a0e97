package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgellow/authbridge/internal"
	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/joho/godotenv"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.SupportedVersion,
		"server": map[string]any{
			"addr":           ":8080",
			"allowedOrigins": []string{"https://app.example.web.app", "http://localhost:3000"},
		},
		"provider": map[string]any{
			"name":         "amazon",
			"clientId":     map[string]string{"$env": "AMAZON_CLIENT_ID"},
			"clientSecret": map[string]string{"$env": "AMAZON_CLIENT_SECRET"},
			"redirectUri":  "https://auth.example.com/auth/callback",
			"scopes":       []string{"profile"},
			"timeout":      "15s",
		},
		"frontend": map[string]any{
			"prodOrigin": "https://app.example.web.app",
			"devOrigin":  "http://localhost:3000",
			"loginPath":  config.DefaultLoginPath,
		},
		"firebase": map[string]any{
			"projectId":    map[string]string{"$env": "FIREBASE_PROJECT_ID"},
			"clientEmail":  map[string]string{"$env": "FIREBASE_CLIENT_EMAIL"},
			"privateKeyId": map[string]string{"$env": "FIREBASE_PRIVATE_KEY_ID"},
			"privateKey":   map[string]string{"$env": "FIREBASE_PRIVATE_KEY"},
			"tokenTtl":     "1h",
		},
		"exchange": map[string]any{
			"storage":         "firestore",
			"collection":      config.DefaultTokenCollection,
			"ttl":             "5m",
			"cleanupInterval": "1m",
			"encryptionKey":   map[string]string{"$env": "EXCHANGE_ENCRYPTION_KEY"},
		},
		"region": map[string]any{
			"collection": config.DefaultRegionCollection,
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			printIssue(err)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			printIssue(warn)
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) > 0:
		fmt.Println("Result: FAIL")
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	case len(result.Warnings) > 0:
		fmt.Println("Result: PASS (with warnings)")
	default:
		fmt.Println("Result: PASS")
	}
	return nil
}

func printIssue(issue config.ValidationError) {
	if issue.Path != "" {
		fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
	} else {
		fmt.Printf("  - %s\n", issue.Message)
	}
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config, ignored when missing")
	logLevel := flag.String("log-level", "", "override LOG_LEVEL (error, warn, info, debug, trace)")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.LogDebug("No env file loaded from %s: %v", *envFile, err)
		} else if err := log.ReloadFromEnv(); err != nil {
			log.LogWarn("Ignoring LOG_LEVEL from %s: %v", *envFile, err)
		}
	}

	if *logLevel != "" {
		if err := log.SetLogLevel(*logLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting authbridge", map[string]any{
		"version":   BuildVersion,
		"config":    *conf,
		"log_level": log.GetLogLevel(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := internal.NewAuthBridge(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create auth bridge: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.LogError("Server stopped: %v", err)
		os.Exit(1)
	}
}
