package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dualdb/src/server"
	"dualdb/src/settings"
)

// printUsage prints helpful usage information
func printUsage() {
	log.Println("dualdb - a JSON-relational duality view engine")
	log.Println("\nUsage:")
	log.Println("  dualdb [options]")
	log.Println("\nOptions:")
	flag.PrintDefaults()

	log.Println("\nExamples:")
	log.Println("  dualdb --datadir=/data --schema=schema.yaml")
	log.Println("  dualdb --port=1791 --schema=schema.yaml --views=views.yaml")
}

func main() {
	// Get the global settings instance
	args := settings.GetSettings()

	// Define command line flags that map to the Arguments struct
	flag.StringVar(&args.DataDir, "datadir", "./datafiles", "Directory to store data files")
	flag.StringVar(&args.LogDir, "logdir", "./log_files", "Directory to store log files (default: stdout)")
	flag.StringVar(&args.SchemaFile, "schema", "./schema.yaml", "Path to the relational schema definition")
	flag.StringVar(&args.ViewsFile, "views", "", "Path to duality view definitions loaded at startup")
	flag.Int64Var(&args.MaxJournalFileSize, "maxjournalfilesize", 1000000, "Maximum size of journal files in bytes (default: 1MB)")
	flag.StringVar(&args.Host, "host", "127.0.0.1", "Host name or IP address to listen on")
	flag.IntVar(&args.Port, "port", 1791, "Port to listen on")
	flag.BoolVar(&args.Verbose, "verbose", true, "Enable verbose logging")
	flag.StringVar(&args.ConfigFile, "config", "", "Path to config file")
	flag.StringVar(&args.Version, "version", "0.0.1alpha", "Shows version")
	flag.BoolVar(&args.PrintToScreen, "print", true, "Print Log Messages to screen")
	flag.BoolVar(&args.Debug, "debug", true, "Enable debug mode")

	// Parse the command line
	flag.Parse()

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFilename := fmt.Sprintf("%s_%s_ServerLog.txt", timestamp, args.Host)

	// Combine with the directory path from args.LogDir
	args.LogDir = filepath.Join(args.LogDir, logFilename)

	// Validate the arguments
	if err := validateArguments(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		printUsage()
		os.Exit(1)
	}

	// Configure logger
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)

	// Print the arguments if in verbose mode
	if args.Verbose {
		log.Println("dualdb starting with options:")
		log.Printf("  Data Directory: %s\n", args.DataDir)
		log.Printf("  Log File: %s\n", args.LogDir)
		log.Printf("  Schema File: %s\n", args.SchemaFile)
		log.Printf("  Views File: %s\n", args.ViewsFile)
		log.Printf("  Host: %s\n", args.Host)
		log.Printf("  Port: %d\n", args.Port)
		log.Printf("  Verbose: %v\n", args.Verbose)
		log.Printf("  Config File: %s\n", args.ConfigFile)
	}

	// Set up logging
	if args.LogDir != "" {
		// Ensure log directory exists
		logDir := filepath.Dir(args.LogDir)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Fatalf("Failed to create log directory: %v", err)
		}

		log.Printf("Logging to file: %s", args.LogDir)

		logFile, err := os.OpenFile(args.LogDir, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer logFile.Close()

		// Use MultiWriter to write logs to both file and stdout if PrintToScreen is enabled
		if args.PrintToScreen {
			mw := io.MultiWriter(os.Stdout, logFile)
			log.SetOutput(mw)
		} else {
			log.SetOutput(logFile)
		}
	}

	// Ensure data directory exists
	if err := os.MkdirAll(args.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Create and start the server
	srv, err := server.InitServer(args)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	// Start the server
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Handle graceful shutdown
	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)

	<-shutdownSignal
	fmt.Println("\nShutting down server...")

	if err := srv.Stop(); err != nil {
		log.Printf("Error stopping server: %v", err)
	}

	fmt.Println("Server shutdown complete")
}

// validateArguments validates the arguments and returns an error if invalid
func validateArguments(args *settings.Arguments) error {
	// Check if data directory exists and is accessible
	dirInfo, err := os.Stat(args.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			// Try to create the directory
			err = os.MkdirAll(args.DataDir, 0755)
			if err != nil {
				return fmt.Errorf("could not create data directory: %w", err)
			}
		} else {
			return fmt.Errorf("error accessing data directory: %w", err)
		}
	} else if !dirInfo.IsDir() {
		return fmt.Errorf("data directory path exists but is not a directory: %s", args.DataDir)
	}

	// The schema file must exist; the server cannot start without one
	if args.SchemaFile == "" {
		return fmt.Errorf("a schema file is required (--schema)")
	}
	if _, err := os.Stat(args.SchemaFile); err != nil {
		return fmt.Errorf("could not access schema file: %w", err)
	}

	if args.ViewsFile != "" {
		if _, err := os.Stat(args.ViewsFile); err != nil {
			return fmt.Errorf("could not access views file: %w", err)
		}
	}

	// Check if log file can be written to
	if args.LogDir != "" {
		logDir := filepath.Dir(args.LogDir)
		if logDir != "." {
			if _, err := os.Stat(logDir); os.IsNotExist(err) {
				err = os.MkdirAll(logDir, 0755)
				if err != nil {
					return fmt.Errorf("could not create log directory: %w", err)
				}
			}
		}

		// Check if we can create/open the log file
		logFile, err := os.OpenFile(args.LogDir, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("could not open log file for writing: %w", err)
		}
		logFile.Close()
	}

	// Validate port range
	if args.Port < 1 || args.Port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", args.Port)
	}

	// If config file is specified, check if it exists and is readable
	if args.ConfigFile != "" {
		_, err := os.Stat(args.ConfigFile)
		if err != nil {
			return fmt.Errorf("could not access config file: %w", err)
		}
	}

	return nil
}
