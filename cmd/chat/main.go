/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"os"

	"clenja-agent-go/internal/common"
	"clenja-agent-go/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	userId        string
	services      *common.Services
	loggerCleanup func()
)

// rootCmd runs chat turns against the local store and configured providers
var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the CLENJA agent from the terminal",
	Long: `Run chat turns against the local database and the configured wallet and
off-ramp providers, without the HTTP server.

Available subcommands:
  repl      - Interactive conversation
  say       - Send a single message
  receipts  - List executed actions
  audit     - List audit events
  wallet    - Manage the linked wallet
  ledger    - Inspect the ledger mirror`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		_, loggerCleanup = common.InitializeLogger()

		services, err = common.InitializeServices(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userId, "user", "u", "cli-user", "User id the turns run as")

	rootCmd.AddCommand(replCmd, sayCmd, receiptsCmd, auditCmd, walletCmd, ledgerCmd)
	walletCmd.AddCommand(walletLinkCmd)
	ledgerCmd.AddCommand(ledgerOutflowsCmd)
}

func shutdown() {
	if services != nil {
		services.Close()
		services = nil
	}
	if loggerCleanup != nil {
		loggerCleanup()
		loggerCleanup = nil
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		shutdown()
		zap.L().Debug("Command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
