// veil is the reference command-line client for the veil protocol: key
// derivation, stealth address generation, payment scanning, pool deposits
// and cross-chain withdrawals.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/veilprotocol/veil/keys"
	"github.com/veilprotocol/veil/ledger"
	"github.com/veilprotocol/veil/merkle"
	"github.com/veilprotocol/veil/note"
	"github.com/veilprotocol/veil/relay"
	"github.com/veilprotocol/veil/rpc"
	"github.com/veilprotocol/veil/stealth"
	"github.com/veilprotocol/veil/zkproof"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	root := &cobra.Command{
		Use:   "veil",
		Short: "stealth payments and shielded pool withdrawals",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; explicit env vars win.
			_ = godotenv.Load(".env")
		},
	}
	root.AddCommand(keysCmd(), stealthAddressCmd(), scanCmd(), sweepCmd(), depositCmd(), withdrawCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}

func masterKeysFromFlag(signatureHex string) (*keys.MasterKeys, error) {
	bz, err := hex.DecodeString(signatureHex)
	if err != nil || len(bz) != 32 {
		return nil, fmt.Errorf("--signature-hash must be 32 hex-encoded bytes")
	}
	var sigHash [32]byte
	copy(sigHash[:], bz)
	return keys.Derive(sigHash)
}

func keysCmd() *cobra.Command {
	var signatureHex string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "derive the stealth meta-address from a wallet signature hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			mk, err := masterKeysFromFlag(signatureHex)
			if err != nil {
				return err
			}
			fmt.Printf("meta-address: %s\n", stealth.MetaAddressOf(mk).String())
			return nil
		},
	}
	cmd.Flags().StringVar(&signatureHex, "signature-hash", "", "keccak hash of the signed derivation message (hex)")
	_ = cmd.MarkFlagRequired("signature-hash")
	return cmd
}

func stealthAddressCmd() *cobra.Command {
	var metaAddr string
	var index uint32
	cmd := &cobra.Command{
		Use:   "stealth-address",
		Short: "derive a fresh one-time address for a recipient meta-address",
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := stealth.ParseMetaAddress(metaAddr)
			if err != nil {
				return err
			}
			eph, err := stealth.NewEphemeralKey()
			if err != nil {
				return err
			}
			addr, err := stealth.Generate(meta, eph, index, stealth.DefaultViewHintSize)
			if err != nil {
				return err
			}
			// eph is discarded with this process; the recipient recovers
			// the address from the published ephemeral pubkey alone.
			fmt.Printf("stealth address: %s\n", addr.Address.Hex())
			fmt.Printf("ephemeral pub:   %x\n", addr.EphemeralPub)
			fmt.Printf("view hint:       %x\n", addr.ViewHint)
			fmt.Printf("index:           %d\n", addr.Index)
			return nil
		},
	}
	cmd.Flags().StringVar(&metaAddr, "meta", "", "recipient meta-address (vm...)")
	cmd.Flags().Uint32Var(&index, "index", 0, "derivation index within the announcement batch")
	_ = cmd.MarkFlagRequired("meta")
	return cmd
}

func scanCmd() *cobra.Command {
	var signatureHex string
	var fromBlock, toBlock uint64
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "scan announcement logs for incoming stealth payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			mk, err := masterKeysFromFlag(signatureHex)
			if err != nil {
				return err
			}
			client, err := dialFromEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			scanner := stealth.NewScanner(client, mk,
				stealth.WithLogger(logger),
				stealth.WithProgress(func(p ledger.Progress) {
					logger.Info().Uint64("scanned", p.BlocksScanned).Uint64("total", p.TotalBlocks).Msg("scan progress")
				}),
			)
			matches, err := scanner.Scan(cmd.Context(), fromBlock, toBlock)
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Printf("payment: %s %s at %s (block %d, tx %s)\n",
					m.Amount.Dec(), m.Symbol, m.Address.Hex(), m.BlockNumber, m.TxHash.Hex())
			}
			if len(matches) == 0 {
				fmt.Println("no payments found")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&signatureHex, "signature-hash", "", "keccak hash of the signed derivation message (hex)")
	cmd.Flags().Uint64Var(&fromBlock, "from", 0, "first block to scan")
	cmd.Flags().Uint64Var(&toBlock, "to", 0, "last block to scan")
	_ = cmd.MarkFlagRequired("signature-hash")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func sweepCmd() *cobra.Command {
	var signatureHex, ephPubHex, toAddr string
	var index uint32
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "move a received stealth payment's balance to another address",
		RunE: func(cmd *cobra.Command, args []string) error {
			mk, err := masterKeysFromFlag(signatureHex)
			if err != nil {
				return err
			}

			ephPub, err := hex.DecodeString(ephPubHex)
			if err != nil {
				return fmt.Errorf("invalid --ephemeral-pub: %w", err)
			}
			stealthPriv, err := stealth.RecoverPrivateKey(mk, ephPub, index)
			if err != nil {
				return err
			}

			client, err := dialFromEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			receipt, err := client.SweepNative(cmd.Context(), stealthPriv.ToECDSA(), common.HexToAddress(toAddr))
			if err != nil {
				return err
			}
			fmt.Printf("swept to %s (tx %s)\n", toAddr, receipt.TxHash.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&signatureHex, "signature-hash", "", "keccak hash of the signed derivation message (hex)")
	cmd.Flags().StringVar(&ephPubHex, "ephemeral-pub", "", "ephemeral pubkey from the payment announcement (hex)")
	cmd.Flags().Uint32Var(&index, "index", 0, "announcement index")
	cmd.Flags().StringVar(&toAddr, "to", "", "destination address")
	_ = cmd.MarkFlagRequired("signature-hash")
	_ = cmd.MarkFlagRequired("ephemeral-pub")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func depositCmd() *cobra.Command {
	var storePath string
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "create a note and deposit the pool denomination",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialFromEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.PoolInfo(cmd.Context())
			if err != nil {
				return err
			}

			store, err := note.NewLevelStore(storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := note.New(info.Denomination)
			if err != nil {
				return err
			}
			// Persist before submitting: a note lost between submission
			// and confirmation is unrecoverable funds.
			if err := store.Put(n); err != nil {
				return err
			}

			receipt, err := client.Deposit(cmd.Context(), n.Commitment(), info.Denomination)
			if err != nil {
				return err
			}

			if err := n.RecordDeposit(n.Commitment(), info.NextIndex, receipt.TxHash); err != nil {
				return err
			}
			if err := store.Put(n); err != nil {
				return err
			}

			fmt.Printf("deposited %s (commitment %x, tx %s)\n", info.Denomination.Dec(), n.Commitment(), receipt.TxHash.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&storePath, "store", defaultStorePath(), "note store directory")
	return cmd
}

func withdrawCmd() *cobra.Command {
	var storePath, commitmentHex, metaAddr string
	var destChain uint64
	var feeStr string
	var fromBlock uint64
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "withdraw a note cross-chain to a fresh stealth address",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			commitment, err := hex.DecodeString(commitmentHex)
			if err != nil {
				return fmt.Errorf("invalid --commitment: %w", err)
			}
			fee, err := uint256.FromDecimal(feeStr)
			if err != nil {
				return fmt.Errorf("invalid --fee: %w", err)
			}
			meta, err := stealth.ParseMetaAddress(metaAddr)
			if err != nil {
				return err
			}

			client, err := dialFromEnv(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			store, err := note.NewLevelStore(storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, ok, err := store.Get(commitment)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no note with commitment %x", commitment)
			}

			info, err := client.PoolInfo(ctx)
			if err != nil {
				return err
			}

			// Destination stealth address for the bridged funds.
			eph, err := stealth.NewEphemeralKey()
			if err != nil {
				return err
			}
			dest, err := stealth.Generate(meta, eph, 0, stealth.DefaultViewHintSize)
			if err != nil {
				return err
			}

			builder := merkle.NewBuilder(client, client, merkle.WithLogger(logger))
			path, _, err := builder.Build(ctx, commitment, fromBlock, mustLatestBlock(ctx, client))
			if err != nil {
				return err
			}

			ext := &relay.ExtData{
				DestinationChainID: destChain,
				Recipient:          dest.Address,
				EphemeralPub:       dest.EphemeralPub,
				ViewHint:           dest.ViewHint,
				Index:              dest.Index,
				Fee:                fee,
				BridgeAddress:      info.BridgeAddress,
				Token:              info.Token,
			}

			engine, err := zkproof.NewEngine(merkle.DefaultDepth, logger)
			if err != nil {
				return err
			}
			proof, err := engine.Prove(n, path, ext.Hash())
			if err != nil {
				return err
			}

			adapter := relay.NewAdapter(client, logger)
			receipt, err := adapter.RelayWithdraw(ctx, proof, ext, info.Denomination)
			if err != nil {
				return err
			}

			if err := store.MarkSpent(commitment); err != nil {
				return err
			}
			fmt.Printf("withdrawal submitted: tx %s, destination %s on chain %d\n",
				receipt.TxHash.Hex(), dest.Address.Hex(), destChain)
			return nil
		},
	}
	cmd.Flags().StringVar(&storePath, "store", defaultStorePath(), "note store directory")
	cmd.Flags().StringVar(&commitmentHex, "commitment", "", "commitment of the note to withdraw (hex)")
	cmd.Flags().StringVar(&metaAddr, "meta", "", "recipient meta-address for the destination stealth address")
	cmd.Flags().Uint64Var(&destChain, "dest-chain", 0, "destination chain id")
	cmd.Flags().StringVar(&feeStr, "fee", "0", "relayer fee in token units")
	cmd.Flags().Uint64Var(&fromBlock, "from", 0, "pool deployment block, start of deposit replay")
	_ = cmd.MarkFlagRequired("commitment")
	_ = cmd.MarkFlagRequired("meta")
	_ = cmd.MarkFlagRequired("dest-chain")
	return cmd
}

func dialFromEnv(ctx context.Context) (*rpc.Client, error) {
	cfg, err := rpc.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	client, err := rpc.Dial(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if keyHex := os.Getenv("VEIL_SIGNER_KEY"); keyHex != "" {
		key, err := ethcrypto.HexToECDSA(keyHex)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("invalid VEIL_SIGNER_KEY: %w", err)
		}
		client = client.WithSigner(key)
	}
	return client, nil
}

func mustLatestBlock(ctx context.Context, client *rpc.Client) uint64 {
	head, err := client.LatestBlock(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to fetch chain head")
	}
	return head
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veil/notes"
	}
	return home + "/.veil/notes"
}
