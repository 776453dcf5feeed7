// abap-adt-mcp is an MCP server exposing read access to SAP ABAP Development Tools (ADT).
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oisee/abap-adt-mcp/internal/logging"
	"github.com/oisee/abap-adt-mcp/internal/mcp"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "abap-adt-mcp",
		Short: "MCP server for SAP ABAP Development Tools (ADT)",
		Long: `abap-adt-mcp is a Model Context Protocol (MCP) server that exposes
read-only ABAP Development Tools (ADT) functionality over stdio.

Besides thin source and metadata getters it offers recursive discovery:
include trees, repository object trees and source code enhancements.

Examples:
  # Using environment variables
  SAP_URL=https://host:44300 SAP_USER=user SAP_PASSWORD=pass abap-adt-mcp

  # Using command-line flags
  abap-adt-mcp --url https://host:44300 --user admin --password secret

  # Using .env file
  abap-adt-mcp  # reads from .env in current directory

  # Password from the OS keyring
  abap-adt-mcp keyring set --url https://host:44300 --user admin
  abap-adt-mcp --url https://host:44300 --user admin`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return readConfigFile(v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(v)
		},
	}

	registerFlags(rootCmd, v)
	rootCmd.AddCommand(newConfigCmd(v), newKeyringCmd(v))
	return rootCmd
}

func runServer(v *viper.Viper) error {
	logger, err := logging.New(logLevel(v), os.Stderr)
	if err != nil {
		return err
	}

	adtCfg, err := resolveConfig(v, logger)
	if err != nil {
		return err
	}
	if err := adtCfg.Validate(); err != nil {
		return err
	}

	logger.Info("starting server",
		"version", Version,
		"url", adtCfg.BaseURL,
		"client", adtCfg.Client,
		"language", adtCfg.Language,
		"auth", adtCfg.AuthType,
	)
	if adtCfg.InsecureSkipVerify {
		logger.Warn("TLS certificate verification is disabled")
	}

	server := mcp.NewServer(&mcp.Config{
		ADT:     adtCfg,
		Logger:  logger,
		Version: Version,
	})
	return server.ServeStdio()
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newRootCmd(newViper()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
