// DiffiChain - confidential note ledger daemon
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/consensys/gnark/frontend"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/SiddharthManjul/DiffiChain/collateral"
	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/ledger"
	"github.com/SiddharthManjul/DiffiChain/log"
	"github.com/SiddharthManjul/DiffiChain/merkle"
	"github.com/SiddharthManjul/DiffiChain/rpc"
	"github.com/SiddharthManjul/DiffiChain/store"
	"github.com/SiddharthManjul/DiffiChain/telemetry"
	"github.com/SiddharthManjul/DiffiChain/zkverify"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "diffichain",
		Short: "DiffiChain confidential note ledger",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var (
		dataPath          string
		rpcPort           int
		wsPort            int
		depth             uint8
		asset             string
		issuer            string
		amountMode        string
		denomination      string
		arity             string
		verifier          string
		keyPath           string
		fund              uint64
		logLevel          string
		debug             string
		telemetryEndpoint string
	)

	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start the note ledger daemon",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Starting DiffiChain Ledger Daemon\n")
			fmt.Printf("  Data Path: %s\n", dataPath)
			fmt.Printf("  RPC Port: %d\n", rpcPort)
			fmt.Printf("  Web Port: %d\n", wsPort)
			fmt.Printf("  Tree Depth: %d\n", depth)
			fmt.Printf("  Amount Mode: %s\n", amountMode)
			fmt.Printf("  Transfer Arity: %s\n", arity)
			fmt.Printf("  Verifier: %s\n", verifier)

			// Initialize logging
			log.InitLogger(logLevel)
			log.EnableModules(debug)

			cfg, err := buildConfig(depth, asset, issuer, amountMode, denomination, arity)
			if err != nil {
				fmt.Printf("Invalid ledger configuration: %v\n", err)
				os.Exit(1)
			}

			// 1. Open the persistent store
			fmt.Printf("\n[1/5] Opening ledger store...\n")
			storePath := filepath.Join(dataPath, "ledger")
			st, err := store.Open(storePath)
			if err != nil {
				fmt.Printf("Failed to open store %s: %v\n", storePath, err)
				os.Exit(1)
			}
			defer st.Close()
			fmt.Printf("✓ Store open at %s\n", storePath)

			// 2. Load the proof verifiers
			fmt.Printf("\n[2/5] Loading proof verifiers...\n")
			verifiers, err := loadVerifiers(verifier, keyPath)
			if err != nil {
				fmt.Printf("Failed to load verifiers: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✓ Verifiers ready (%s)\n", verifier)

			// 3. Prepare the collateral custody
			fmt.Printf("\n[3/5] Preparing collateral custody...\n")
			custody := collateral.NewVaultCustody()
			custody.Fund(cfg.Asset, cfg.Issuer, uint256.NewInt(fund))
			fmt.Printf("✓ Issuer %s funded with %d\n", cfg.Issuer.Hex(), fund)

			// 4. Open the ledger with the WebSocket hub as its notifier
			fmt.Printf("\n[4/5] Opening note ledger...\n")
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			hub := rpc.NewHub(ctx)
			l, err := ledger.New(cfg, ledger.Deps{
				Verifiers: verifiers,
				Custody:   custody,
				Store:     st,
				Notifier:  hub,
			})
			if err != nil {
				fmt.Printf("Failed to open ledger: %v\n", err)
				os.Exit(1)
			}
			roots := l.StateRoots()
			fmt.Printf("✓ Ledger open: %d notes, root %s\n", roots.TreeSize, common.Str(roots.MerkleRoot))

			// Initialize telemetry if endpoint is specified
			if telemetryEndpoint != "" {
				if err := telemetry.Init(ctx, telemetryEndpoint, "diffichain"); err != nil {
					fmt.Printf("Warning: Failed to initialize telemetry: %v\n", err)
				} else {
					fmt.Printf("✓ Telemetry enabled: %s\n", telemetryEndpoint)
				}
			}

			// 5. Start the RPC servers
			fmt.Printf("\n[5/5] Starting RPC servers...\n")
			srv := rpc.NewServer(l, hub)
			go srv.StartTCP(rpcPort)

			wg := &sync.WaitGroup{}
			go srv.StartWeb(ctx, wg, wsPort)
			fmt.Printf("✓ RPC servers started\n")

			fmt.Printf("\n========================================\n")
			fmt.Printf("DiffiChain Ledger Ready!\n")
			fmt.Printf("  TCP RPC: localhost:%d\n", rpcPort)
			fmt.Printf("  JSON-RPC: http://localhost:%d/rpc\n", wsPort)
			fmt.Printf("  WebSocket: ws://localhost:%d/ws\n", wsPort)
			fmt.Printf("  Chart: http://localhost:%d/chart\n", wsPort)
			fmt.Printf("========================================\n")

			// Wait for shutdown signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			fmt.Printf("\nShutting down ledger daemon...\n")
			cancel()
			wg.Wait()
			if err := telemetry.Shutdown(context.Background()); err != nil {
				fmt.Printf("Warning: telemetry shutdown: %v\n", err)
			}
		},
	}

	runCmd.Flags().StringVarP(&dataPath, "data-path", "d", filepath.Join(os.Getenv("HOME"), ".diffichain"), "Data directory")
	runCmd.Flags().IntVar(&rpcPort, "rpc-port", 8377, "TCP RPC server port")
	runCmd.Flags().IntVar(&wsPort, "ws-port", 8378, "HTTP/WebSocket server port")
	runCmd.Flags().Uint8Var(&depth, "depth", merkle.DefaultTreeDepth, "Commitment tree depth")
	runCmd.Flags().StringVar(&asset, "asset", "0x0000000000000000000000000000000000000001", "Backing asset address")
	runCmd.Flags().StringVar(&issuer, "issuer", "0x0000000000000000000000000000000000000002", "Issuer address holding collateral")
	runCmd.Flags().StringVar(&amountMode, "amount-mode", "public", "Amount disclosure mode (public, denominated)")
	runCmd.Flags().StringVar(&denomination, "denomination", "", "Note denomination (denominated mode only)")
	runCmd.Flags().StringVar(&arity, "arity", "variable", "Transfer arity (variable or KxM, e.g. 2x2)")
	runCmd.Flags().StringVar(&verifier, "verifier", "accept", "Proof verifier (accept, groth16)")
	runCmd.Flags().StringVar(&keyPath, "key-path", "", "Verifying key directory (default: <data-path>/keys)")
	runCmd.Flags().Uint64Var(&fund, "fund", 1_000_000_000, "Issuer custody balance funded at startup")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	runCmd.Flags().StringVar(&debug, "debug", "", "Debug modules to enable (csv, or 'all')")
	runCmd.Flags().StringVar(&telemetryEndpoint, "telemetry", "", "OTLP collector endpoint (e.g., localhost:4318)")

	var setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Run the Groth16 setup and write proving/verifying keys",
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)

			cfg, err := buildConfig(depth, asset, issuer, amountMode, denomination, arity)
			if err != nil {
				fmt.Printf("Invalid ledger configuration: %v\n", err)
				os.Exit(1)
			}

			if keyPath == "" {
				keyPath = filepath.Join(dataPath, "keys")
			}
			if err := os.MkdirAll(keyPath, 0o755); err != nil {
				fmt.Printf("Failed to create key directory: %v\n", err)
				os.Exit(1)
			}

			circuits, err := circuitsFor(cfg)
			if err != nil {
				fmt.Printf("No circuit set for this configuration: %v\n", err)
				os.Exit(1)
			}

			names := []string{"mint", "transfer", "redeem"}
			for i, circuit := range circuits {
				fmt.Printf("\n[%d/3] Compiling %s circuit...\n", i+1, names[i])
				ccs, pk, vk, err := zkverify.CompileAndSetup(circuit)
				if err != nil {
					fmt.Printf("Setup failed for %s: %v\n", names[i], err)
					os.Exit(1)
				}
				pkPath := filepath.Join(keyPath, names[i]+".pk")
				vkPath := filepath.Join(keyPath, names[i]+".vk")
				if err := zkverify.WriteKey(pk, pkPath); err != nil {
					fmt.Printf("Failed to write %s: %v\n", pkPath, err)
					os.Exit(1)
				}
				if err := zkverify.WriteKey(vk, vkPath); err != nil {
					fmt.Printf("Failed to write %s: %v\n", vkPath, err)
					os.Exit(1)
				}
				fmt.Printf("✓ %s: %d constraints, keys in %s\n", names[i], ccs.GetNbConstraints(), keyPath)
			}

			fmt.Printf("\nSetup complete. Start the daemon with --verifier groth16 --key-path %s\n", keyPath)
		},
	}

	setupCmd.Flags().StringVarP(&dataPath, "data-path", "d", filepath.Join(os.Getenv("HOME"), ".diffichain"), "Data directory")
	setupCmd.Flags().Uint8Var(&depth, "depth", merkle.DefaultTreeDepth, "Commitment tree depth")
	setupCmd.Flags().StringVar(&asset, "asset", "0x0000000000000000000000000000000000000001", "Backing asset address")
	setupCmd.Flags().StringVar(&issuer, "issuer", "0x0000000000000000000000000000000000000002", "Issuer address")
	setupCmd.Flags().StringVar(&amountMode, "amount-mode", "public", "Amount disclosure mode")
	setupCmd.Flags().StringVar(&denomination, "denomination", "", "Note denomination (denominated mode only)")
	setupCmd.Flags().StringVar(&arity, "arity", "variable", "Transfer arity")
	setupCmd.Flags().StringVar(&keyPath, "key-path", "", "Key output directory (default: <data-path>/keys)")
	setupCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	var witnessIndex int64
	var treeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Inspect the commitment tree of a stopped daemon",
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)

			storePath := filepath.Join(dataPath, "ledger")
			st, err := store.Open(storePath)
			if err != nil {
				fmt.Printf("Failed to open store %s (daemon still running?): %v\n", storePath, err)
				os.Exit(1)
			}
			defer st.Close()

			entries, err := st.ListCommitments()
			if err != nil {
				fmt.Printf("Failed to list commitments: %v\n", err)
				os.Exit(1)
			}

			tree, err := merkle.NewCommitmentTree(depth)
			if err != nil {
				fmt.Printf("Failed to build tree: %v\n", err)
				os.Exit(1)
			}
			commitments := make([]common.Hash, len(entries))
			for i, entry := range entries {
				commitments[i] = entry.Commitment
			}
			if len(commitments) > 0 {
				if _, err := tree.AppendBatch(commitments); err != nil {
					fmt.Printf("Failed to replay commitments: %v\n", err)
					os.Exit(1)
				}
			}

			fmt.Printf("%s\n", merkle.RenderFrontier(tree.GetRoot(), tree.GetSize(), tree.GetFrontier()))

			nullifiers, err := st.ListNullifiers()
			if err != nil {
				fmt.Printf("Failed to list nullifiers: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("commitments: %d  spent nullifiers: %d\n", len(entries), len(nullifiers))

			if witnessIndex >= 0 {
				witness, err := tree.GenerateWitness(uint64(witnessIndex))
				if err != nil {
					fmt.Printf("Failed to build witness for leaf %d: %v\n", witnessIndex, err)
					os.Exit(1)
				}
				leaf, err := tree.GetLeaf(uint64(witnessIndex))
				if err != nil {
					fmt.Printf("Failed to read leaf %d: %v\n", witnessIndex, err)
					os.Exit(1)
				}
				fmt.Printf("\n%s\n", merkle.RenderWitness(witness, leaf, tree.GetRoot()))
			}
		},
	}

	treeCmd.Flags().StringVarP(&dataPath, "data-path", "d", filepath.Join(os.Getenv("HOME"), ".diffichain"), "Data directory")
	treeCmd.Flags().Uint8Var(&depth, "depth", merkle.DefaultTreeDepth, "Commitment tree depth (must match the daemon)")
	treeCmd.Flags().Int64Var(&witnessIndex, "witness", -1, "Render the inclusion proof for this leaf index")
	treeCmd.Flags().StringVar(&logLevel, "log-level", "error", "Log level")

	var rounds int
	var demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Run an in-memory ledger through mints, transfers and redeems",
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			log.EnableModules(debug)

			if err := runDemo(rounds); err != nil {
				fmt.Printf("Demo failed: %v\n", err)
				os.Exit(1)
			}
		},
	}

	demoCmd.Flags().IntVar(&rounds, "rounds", 6, "Number of mint/transfer/redeem rounds")
	demoCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level")
	demoCmd.Flags().StringVar(&debug, "debug", "", "Debug modules to enable")

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the build commit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("diffichain %s\n", common.GetCommitHash())
		},
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// buildConfig assembles and validates the ledger configuration from flags.
func buildConfig(depth uint8, asset, issuer, amountMode, denomination, arity string) (ledger.Config, error) {
	mode, err := ledger.ParseAmountMode(amountMode)
	if err != nil {
		return ledger.Config{}, err
	}
	shape, err := ledger.ParseTransferArity(arity)
	if err != nil {
		return ledger.Config{}, err
	}
	cfg := ledger.Config{
		Depth:         depth,
		Asset:         common.HexToAddress(asset),
		Issuer:        common.HexToAddress(issuer),
		AmountMode:    mode,
		TransferArity: shape,
	}
	if denomination != "" {
		denom, err := uint256.FromDecimal(denomination)
		if err != nil {
			return ledger.Config{}, fmt.Errorf("invalid denomination %q: %w", denomination, err)
		}
		cfg.Denomination = denom
	}
	return cfg, nil
}

// loadVerifiers builds the verifier suite the daemon runs with.
func loadVerifiers(kind, keyPath string) (zkverify.Suite, error) {
	switch kind {
	case "accept":
		return zkverify.AcceptSuite(), nil
	case "groth16":
		if keyPath == "" {
			return zkverify.Suite{}, fmt.Errorf("groth16 needs --key-path pointing at the setup output")
		}
		mint, err := zkverify.LoadGroth16Verifier(filepath.Join(keyPath, "mint.vk"))
		if err != nil {
			return zkverify.Suite{}, err
		}
		transfer, err := zkverify.LoadGroth16Verifier(filepath.Join(keyPath, "transfer.vk"))
		if err != nil {
			return zkverify.Suite{}, err
		}
		redeem, err := zkverify.LoadGroth16Verifier(filepath.Join(keyPath, "redeem.vk"))
		if err != nil {
			return zkverify.Suite{}, err
		}
		return zkverify.Suite{Mint: mint, Transfer: transfer, Redeem: redeem}, nil
	default:
		return zkverify.Suite{}, fmt.Errorf("unknown verifier %q (accept, groth16)", kind)
	}
}

// circuitsFor picks the mint, transfer and redeem circuits matching the
// ledger configuration. Fixed arities other than 2x2 have no packaged
// transfer circuit.
func circuitsFor(cfg ledger.Config) ([]frontend.Circuit, error) {
	var mint, transfer, redeem frontend.Circuit

	switch cfg.AmountMode {
	case ledger.AmountPublic:
		mint = &zkverify.MintCircuit{}
		redeem = &zkverify.RedeemCircuit{}
	case ledger.AmountDenominated:
		mint = &zkverify.DenominatedMintCircuit{}
		redeem = &zkverify.DenominatedRedeemCircuit{}
	}

	switch {
	case !cfg.TransferArity.Fixed():
		// Variable arity compiles the canonical 2-in/2-out shape; other
		// shapes need their own setup run with NewVariableTransferCircuit.
		transfer = zkverify.NewVariableTransferCircuit(2, 2)
	case cfg.TransferArity == ledger.TwoByTwo:
		transfer = &zkverify.TransferCircuit{}
	default:
		return nil, fmt.Errorf("fixed arity %s has no packaged transfer circuit", cfg.TransferArity)
	}

	return []frontend.Circuit{mint, transfer, redeem}, nil
}
