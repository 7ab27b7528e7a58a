// Package cmd provides the orchestrator's command-line entrypoints.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/perplext/redteam-core/src/attackloop"
	"github.com/perplext/redteam-core/src/config"
	"github.com/perplext/redteam-core/src/grader"
	"github.com/perplext/redteam-core/src/provider/core"
	"github.com/perplext/redteam-core/src/provider/manager"
	"github.com/perplext/redteam-core/src/scorer"
	"github.com/perplext/redteam-core/src/strategy"
	"github.com/perplext/redteam-core/src/unblock"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "redteam-core",
	Short: "Adversarial multi-turn attack orchestrator for evaluating LLM targets",
	Long: `redteam-core drives a multi-turn adversarial conversation between an
attacker model and a target model, scoring each turn for refusal and
objective achievement, and reporting the result of the exchange.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	},
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (default: none, env vars only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(newAttackCmd())
}

func newAttackCmd() *cobra.Command {
	var (
		goal        string
		purpose     string
		pluginID    string
		strategyArg string
		customText  string
	)

	cmd := &cobra.Command{
		Use:   "attack",
		Short: "Run one adversarial multi-turn attack loop against a configured target",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			attacker, err := config.NewAnthropicProvider(cfg.Attacker)
			if err != nil {
				return fmt.Errorf("constructing attacker provider: %w", err)
			}
			target, err := config.NewOpenAIProvider(cfg.Target)
			if err != nil {
				return fmt.Errorf("constructing target provider: %w", err)
			}
			scorerProvider, err := config.NewAnthropicProvider(cfg.Scorer)
			if err != nil {
				return fmt.Errorf("constructing scorer provider: %w", err)
			}

			mgr := manager.New()
			mgr.RegisterDefault(core.RoleAttacker, attacker)
			mgr.RegisterDefault(core.RoleTarget, target)
			mgr.RegisterDefault(core.RoleScorer, scorerProvider)

			var strat strategy.Strategy
			switch strategyArg {
			case "custom":
				strat, err = strategy.NewCustom(customText)
				if err != nil {
					return err
				}
			default:
				strat = strategy.NewCrescendo(strategy.Params{Goal: goal, Purpose: purpose})
			}

			sc := scorer.New(scorerProvider)
			graders := grader.NewRegistry()

			loop, err := attackloop.New(attacker, target, sc, strat, attackloop.Options{
				InjectVar:            cfg.Defaults.InjectVar,
				MaxTurns:             &cfg.Defaults.MaxTurns,
				MaxBacktracks:        &cfg.Defaults.MaxBacktracks,
				Stateful:             cfg.Defaults.Stateful,
				ContinueAfterSuccess: cfg.Defaults.ContinueAfterSuccess,
				PluginID:             pluginID,
				Goal:                 goal,
				Purpose:              purpose,
			})
			if err != nil {
				return fmt.Errorf("configuring attack loop: %w", err)
			}
			loop.Unblock = unblock.NewKeywordAnalyser()
			loop.Graders = graders

			result, err := loop.Run(context.Background(), "")
			if err != nil {
				return fmt.Errorf("running attack loop: %w", err)
			}

			log.Info().
				Str("stopReason", string(result.Metadata.StopReason)).
				Int("roundsCompleted", result.Metadata.RoundsCompleted).
				Int("backtrackCount", result.Metadata.BacktrackCount).
				Bool("result", result.Metadata.Result).
				Int("confidence", result.Metadata.Confidence).
				Msg("attack loop finished")
			fmt.Println(result.Output)
			return nil
		},
	}

	cmd.Flags().StringVar(&goal, "goal", "", "the objective the attacker pursues")
	cmd.Flags().StringVar(&purpose, "purpose", "", "context describing why the target is being tested")
	cmd.Flags().StringVar(&pluginID, "plugin", "", "plugin id used to look up a registered grader")
	cmd.Flags().StringVar(&strategyArg, "strategy", "crescendo", "attacker strategy: crescendo or custom")
	cmd.Flags().StringVar(&customText, "strategy-text", "", "system prompt text for the custom strategy")
	_ = cmd.MarkFlagRequired("goal")

	return cmd
}
