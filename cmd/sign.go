package cmd

import (
	"encoding/json"
	"os"
	"strings"

	"pledge/core"
	"pledge/service/signature"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "sign loan terms with a secp256k1 key under the configured domain",
	Run: func(cmd *cobra.Command, args []string) {
		keyHex, _ := cmd.Flags().GetString("key")
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			cmd.PrintErrln("parse key:", err)
			return
		}

		var terms core.LoanTerms
		termsFile, _ := cmd.Flags().GetString("terms")
		if err := readJSON(termsFile, &terms); err != nil {
			cmd.PrintErrln("read terms:", err)
			return
		}

		var predicates []core.Predicate
		if file, _ := cmd.Flags().GetString("predicates"); file != "" {
			if err := readJSON(file, &predicates); err != nil {
				cmd.PrintErrln("read predicates:", err)
				return
			}
		}

		digest := signature.New(cfg.App.Domain(), nil).Digest(terms, predicates)
		sig, err := signature.Sign(digest, key)
		if err != nil {
			cmd.PrintErrln("sign:", err)
			return
		}

		cmd.Println("signer:", crypto.PubkeyToAddress(key.PublicKey).Hex())
		cmd.Println("digest:", digest.Hex())
		cmd.Println("signature:", hexutil.Encode(sig))
	},
}

func readJSON(file string, v interface{}) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, v)
}

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().String("key", "", "hex secp256k1 private key")
	signCmd.Flags().String("terms", "terms.json", "loan terms json file")
	signCmd.Flags().String("predicates", "", "item predicates json file")
}
