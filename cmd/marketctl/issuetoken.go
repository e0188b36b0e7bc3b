package main

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/smaug-iot/marketplace/internal/accesstoken"
	"github.com/smaug-iot/marketplace/internal/marketplace"
)

var (
	issueKeyHex string
	issueCaller string
	issueTarget string
)

func init() {
	issueTokenCmd.Flags().StringVarP(&issueKeyHex, "key", "k", "", "manager private key, hex")
	issueTokenCmd.Flags().StringVarP(&issueCaller, "caller", "c", "", "account the token is issued to, hex address")
	issueTokenCmd.Flags().StringVarP(&issueTarget, "marketplace", "m", "", "marketplace owner address the token is bound to, hex address")

	rootCmd.AddCommand(issueTokenCmd)
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "sign a one-time request-creation token with a manager key",
	RunE:  doIssueToken,
}

func doIssueToken(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(issueCaller) || !common.IsHexAddress(issueTarget) {
		return fmt.Errorf("caller and marketplace must be hex addresses")
	}

	key, err := crypto.HexToECDSA(issueKeyHex)
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}

	sel := accesstoken.OperationSelector(marketplace.OpSubmitRequest)
	tok, err := accesstoken.Issue(key, sel, common.HexToAddress(issueCaller), common.HexToAddress(issueTarget))
	if err != nil {
		return err
	}

	fmt.Printf("digest:    %s\n", tok.Digest.Hex())
	fmt.Printf("signature: 0x%s\n", hex.EncodeToString(tok.Signature))
	fmt.Printf("nonce:     0x%s\n", hex.EncodeToString(tok.Nonce[:]))
	return nil
}
