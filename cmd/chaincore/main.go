// Command chaincore is a thin cobra front end over the core package: every
// subcommand opens storage, performs one operation, and exits. No state or
// logic beyond flag parsing and output formatting belongs here.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	"chaincore/core"
	"chaincore/pkg/config"
)

var log = logrus.New()

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "chaincore",
		Short: "inspect and drive a chain-core ledger",
	}
	root.PersistentFlags().String("env", "", "environment overlay to merge into default config (e.g. \"dev\")")
	root.PersistentFlags().String("chain", "", "chain name to operate on")

	root.AddCommand(genesisCmd(), addBlockCmd(), rollbackCmd(), inspectCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	env, _ := cmd.Flags().GetString("env")
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
	return cfg, nil
}

func openChain(cmd *cobra.Command, cfg *config.Config) (*core.Chain, error) {
	name, _ := cmd.Flags().GetString("chain")
	if name == "" {
		return nil, fmt.Errorf("--chain is required")
	}

	var backend core.Backend
	var err error
	if cfg.Nexus.CacheSize < 0 {
		backend = core.NewVolatileBackend()
	} else {
		backend, err = core.NewDurableBackend(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	validators := make([]core.Address, 0, len(cfg.Nexus.Validators))
	for _, v := range cfg.Nexus.Validators {
		raw, err := hex.DecodeString(v)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("invalid validator address %q", v)
		}
		var addr core.Address
		copy(addr[:], raw)
		validators = append(validators, addr)
	}
	return core.NewChain(name, core.AddressFromName(name), backend, cfg.Storage.DataDir+"/scripts", validators)
}

func genesisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genesis",
		Short: "initialize a new chain's storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			chain, err := openChain(cmd, cfg)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"chain": chain.Name, "address": chain.Address.Hex()}).Info("chain initialized")
			fmt.Printf("chain %q ready at height %d, address %s\n", chain.Name, chain.Height(), chain.Address.Hex())
			return nil
		},
	}
}

// decodeBlockFile parses a block from either JSON or YAML, selecting the
// format by path's extension (.yaml/.yml use gopkg.in/yaml.v2; everything
// else is treated as JSON).
func decodeBlockFile(path string, raw []byte) (core.Block, error) {
	var block core.Block
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &block); err != nil {
			return core.Block{}, fmt.Errorf("decode yaml block: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &block); err != nil {
			return core.Block{}, fmt.Errorf("decode json block: %w", err)
		}
	}
	return block, nil
}

func addBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-block <file>",
		Short: "apply a block (JSON, or YAML via a .yaml/.yml extension) to the chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			chain, err := openChain(cmd, cfg)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read block file: %w", err)
			}
			block, err := decodeBlockFile(args[0], raw)
			if err != nil {
				return err
			}
			err = chain.AddBlock(&block, func(evt core.Event) {
				log.WithFields(logrus.Fields{"kind": evt.Kind, "address": evt.Address.Hex()}).Debug("event")
			})
			if err != nil {
				return fmt.Errorf("add block: %w", err)
			}
			log.WithFields(logrus.Fields{"height": chain.Height(), "tip": chain.Tip().Hex()}).Info("block committed")
			return nil
		},
	}
}

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <hash>",
		Short: "roll the chain back until its tip matches hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			chain, err := openChain(cmd, cfg)
			if err != nil {
				return err
			}
			raw, err := hex.DecodeString(args[0])
			if err != nil || len(raw) != 32 {
				return fmt.Errorf("invalid target hash %q", args[0])
			}
			var target core.Hash
			copy(target[:], raw)
			if err := chain.RollbackToHash(target); err != nil {
				return fmt.Errorf("rollback: %w", err)
			}
			log.WithFields(logrus.Fields{"height": chain.Height(), "tip": chain.Tip().Hex()}).Info("rollback complete")
			return nil
		},
	}
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "inspect", Short: "inspect chain state"}
	cmd.AddCommand(inspectChainCmd(), inspectBlockCmd(), inspectBalanceCmd())
	return cmd
}

func inspectChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain",
		Short: "print chain height and tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			chain, err := openChain(cmd, cfg)
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(map[string]interface{}{
				"name":    chain.Name,
				"address": chain.Address.Hex(),
				"height":  chain.Height(),
				"tip":     chain.Tip().Hex(),
			}, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func inspectBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <height>",
		Short: "print the block at a given height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			chain, err := openChain(cmd, cfg)
			if err != nil {
				return err
			}
			var height uint64
			if _, err := fmt.Sscanf(args[0], "%d", &height); err != nil {
				return fmt.Errorf("invalid height %q", args[0])
			}
			block, ok, err := chain.GetBlock(height)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no block at height %d", height)
			}
			out, _ := json.MarshalIndent(block, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func inspectBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <symbol> <address>",
		Short: "print an address's balance of a fungible token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			chain, err := openChain(cmd, cfg)
			if err != nil {
				return err
			}
			raw, err := hex.DecodeString(args[1])
			if err != nil || len(raw) != 32 {
				return fmt.Errorf("invalid address %q", args[1])
			}
			var addr core.Address
			copy(addr[:], raw)
			bal, err := chain.BalanceOf(args[0], addr)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d\n", args[0], bal)
			return nil
		},
	}
}
