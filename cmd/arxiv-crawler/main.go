// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the arxiv-crawler CLI.
// Each pipeline stage is a subcommand: search, process, export, and
// stats. Stages coordinate only through the paper store, so any of them
// can be re-run or interleaved safely.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-crawler/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback if set, otherwise the secret value for
// key if one was loaded.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	return loadedSecrets[key]
}

// rootCmd is the base command for the arxiv-crawler CLI.
var rootCmd = &cobra.Command{
	Use:   "arxiv-crawler",
	Short: "Pipeline for discovering, OCRing, and summarizing arXiv papers",
	Long: `arxiv-crawler discovers academic papers on arXiv by keyword search,
downloads their PDFs, extracts text with a vision OCR model, summarizes
them with an LLM, and exports the results to Markdown.

Every stage reads and writes a shared SQLite paper store and tracks
per-paper state, so runs are resumable: a failed paper is retried from
the stage it failed at on the next process run, without losing work
already done for other papers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./arxiv-crawler.yaml or ~/.config/arxiv-crawler/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "path to the paper database (default: arxiv_papers.db)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("arxiv-crawler")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "arxiv-crawler"))
		}
	}

	viper.SetDefault("store.db_path", "arxiv_papers.db")
	viper.SetDefault("process.papers_dir", "papers")
	viper.SetDefault("export.output_dir", "papers_output")

	viper.SetEnvPrefix("ARXIV_CRAWLER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// dbPath resolves the database path: flag, then config, then default.
func dbPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		return path
	}
	return viper.GetString("store.db_path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
