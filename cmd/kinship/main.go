package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/logger/console"
)

var version = "0.1.0-dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kinship",
		Short: "Command line client for a Kinship server",
		Long: `kinship talks to a Kinship server over its REST API. It imports
contacts from free text or web pages, applies profile updates and prints
the relationship graph.

The server is taken from --url or KINSHIP_URL, the bearer token from
--token or KINSHIP_TOKEN. With REDIS_URL set, reads are cached in Redis.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("url", util.GetEnvString("KINSHIP_URL", "http://localhost:8080"), "Server base URL")
	rootCmd.PersistentFlags().String("token", util.GetEnv("KINSHIP_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().String("redis", util.GetEnv("REDIS_URL"), "Redis URL for the read cache (default: in memory)")
	rootCmd.PersistentFlags().Bool("json", false, "Print JSON instead of text")

	importCmd := &cobra.Command{
		Use:   "import [file|url|-]",
		Short: "Parse contacts from text or a web page and import them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runImport,
	}
	importCmd.Flags().BoolP("yes", "y", false, "Import without asking")
	importCmd.Flags().IntSlice("drop", nil, "Candidate numbers to leave out (1-based)")

	updatesCmd := &cobra.Command{
		Use:   "updates [file|-]",
		Short: "Extract profile updates from text and apply them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUpdates,
	}
	updatesCmd.Flags().BoolP("yes", "y", false, "Apply without asking")
	updatesCmd.Flags().IntSlice("drop", nil, "Update numbers to leave out (1-based)")

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the laid out relationship graph",
		Args:  cobra.NoArgs,
		RunE:  runGraph,
	}
	graphCmd.Flags().Int64("center", 0, "Person to center on")
	graphCmd.Flags().Int("depth", 0, "Hops around the center (server default 2)")

	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print catalog statistics",
		Args:  cobra.NoArgs,
		RunE:  runDashboard,
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search persons, anecdotes, tags and groups",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Download all data",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	exportCmd.Flags().String("format", "json", "Export format: json|xlsx")
	exportCmd.Flags().StringP("out", "o", "", "Output file (default: server file name)")

	photoCmd := &cobra.Command{
		Use:   "photo <file>",
		Short: "Upload a photo and tag the people in it",
		Args:  cobra.ExactArgs(1),
		RunE:  runPhoto,
	}
	photoCmd.Flags().String("caption", "", "Caption")
	photoCmd.Flags().String("date", "", "Date taken (YYYY-MM-DD)")
	photoCmd.Flags().String("location", "", "Where it was taken")
	photoCmd.Flags().Int64Slice("person", nil, "Person id shown in the photo (repeatable)")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}

	rootCmd.AddCommand(importCmd, updatesCmd, graphCmd, dashboardCmd, searchCmd, exportCmd, photoCmd, healthCmd)
	return rootCmd
}

func main() {
	util.LoadEnv()
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
	}))

	if err := newRootCmd().Execute(); err != nil {
		logger.Error("kinship failed", "err", err)
		os.Exit(1)
	}
}
