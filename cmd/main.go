/*
Copyright 2024 Ledgerscan Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ledgerscan/ledgerscan"
	"github.com/ledgerscan/ledgerscan/config"
	"github.com/ledgerscan/ledgerscan/database"
	"github.com/ledgerscan/ledgerscan/internal/notification"
)

// Ledgerscan represents the CLI application, encapsulating the root Cobra command.
type Ledgerscan struct {
	cmd *cobra.Command
}

// ledgerscanInstance holds the runtime service instance and its configuration,
// shared by the CLI subcommands.
type ledgerscanInstance struct {
	ledgerscan *ledgerscan.Ledgerscan
	cnf        *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and initializes the service instance before any
// subcommand runs.
func preRun(app *ledgerscanInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("ledgerscan.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newLedgerscan, err := setupLedgerscan(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.ledgerscan = newLedgerscan
		app.cnf = cnf

		return nil
	}
}

// setupLedgerscan wires a service instance from the configured data source.
func setupLedgerscan(cfg *config.Configuration) (*ledgerscan.Ledgerscan, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newLedgerscan, err := ledgerscan.NewLedgerscan(db)
	if err != nil {
		return nil, fmt.Errorf("error creating ledgerscan: %v", err)
	}
	return newLedgerscan, nil
}

// NewCLI creates the command-line interface for the Ledgerscan application.
func NewCLI() *Ledgerscan {
	var configFile string
	b := &ledgerscanInstance{}

	var rootCmd = &cobra.Command{
		Use:   "ledgerscan",
		Short: "Financial document ingestion pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./ledgerscan.json", "Configuration file for ledgerscan")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))

	return &Ledgerscan{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Ledgerscan) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
