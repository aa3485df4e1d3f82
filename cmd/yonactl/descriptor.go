package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"YONASettlement/internal/descriptor"
	"YONASettlement/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type keyPair struct {
	KID        string        `json:"kid"`
	PrivateKey string        `json:"private_key"`
	JWKS       models.KeySet `json:"jwks"`
}

func keygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 descriptor signing key and its JWKS",
		RunE: func(cmd *cobra.Command, args []string) error {
			kid, _ := cmd.Flags().GetString("kid")
			if kid == "" {
				kid = uuid.NewString()
			}
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			ks, err := descriptor.PublicKeySet(pub, kid)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), keyPair{
				KID:        kid,
				PrivateKey: base64.StdEncoding.EncodeToString(priv.Seed()),
				JWKS:       ks,
			})
		},
	}
	cmd.Flags().String("kid", "", "Key id (random when empty)")
	return cmd
}

func descriptorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "descriptor",
		Short: "Sign or verify beneficiary descriptors",
	}
	cmd.AddCommand(descriptorSignCmd())
	cmd.AddCommand(descriptorVerifyCmd())
	return cmd
}

func descriptorSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a descriptor with a base64 Ed25519 seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			seed, _ := f.GetString("key")
			kid, _ := f.GetString("kid")
			intentID, _ := f.GetString("intent")
			invoiceID, _ := f.GetString("invoice")
			account, _ := f.GetString("account")
			tag, _ := f.GetUint32("tag")
			asset, _ := f.GetString("asset")
			issuer, _ := f.GetString("issuer")
			amount, _ := f.GetString("amount")

			key, err := parseSeed(seed)
			if err != nil {
				return err
			}
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			if invoiceID == "" {
				invoiceID = strings.ToUpper(strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", ""))
			}

			token, err := descriptor.Sign(descriptor.Payload{
				IntentID:           intentID,
				InvoiceID:          invoiceID,
				BeneficiaryAccount: account,
				DestinationTag:     tag,
				DescriptorID:       uuid.NewString(),
				ReceiveAsset:       models.Asset{Code: asset, Issuer: issuer},
				ReceiveAmount:      value,
			}, key, kid)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("key", "", "Base64 Ed25519 seed from keygen")
	f.String("kid", "", "Key id placed in the token header")
	f.String("intent", "", "Intent id")
	f.String("invoice", "", "Invoice id (64 hex chars, random when empty)")
	f.String("account", "", "Beneficiary classic address")
	f.Uint32("tag", 0, "Destination tag")
	f.String("asset", "", "Receive asset code")
	f.String("issuer", "", "Receive asset issuer")
	f.String("amount", "", "Receive amount")
	for _, name := range []string{"key", "intent", "account", "asset", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func descriptorVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a descriptor token against a JWKS file and print its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("jwks")
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			keys, err := models.ParseKeySet(raw)
			if err != nil {
				return err
			}
			payload, err := descriptor.NewVerifier().Verify(strings.TrimSpace(args[0]), keys)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), payload)
		},
	}
	cmd.Flags().String("jwks", "", "Path to the member JWKS JSON")
	_ = cmd.MarkFlagRequired("jwks")
	return cmd
}

func parseSeed(v string) (ed25519.PrivateKey, error) {
	seed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("key: expected a 32 byte ed25519 seed")
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
