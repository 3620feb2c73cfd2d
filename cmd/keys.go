package cmd

import (
	"encoding/base64"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pandodao/blst"
	"github.com/spf13/cobra"
)

// maintain command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "generate secp256k1 signer keys or blst account member keys by the flag 'cipher'",
	Run: func(cmd *cobra.Command, args []string) {
		cipher, err := cmd.Flags().GetString("cipher")
		if err != nil {
			panic(err)
		}

		cmd.Println("cipher is:", cipher)

		if cipher == "blst" {
			private := blst.GenerateKey()
			public := private.PublicKey()

			cmd.Println("blst private key:", private.String())
			cmd.Println("blst public key:", base64.StdEncoding.EncodeToString(public.Bytes()))
			return
		}

		private, err := crypto.GenerateKey()
		if err != nil {
			panic(err)
		}

		cmd.Println("secp256k1 private key:", hexutil.Encode(crypto.FromECDSA(private)))
		cmd.Println("address:", crypto.PubkeyToAddress(private.PublicKey).Hex())
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.Flags().String("cipher", "secp256k1", "cipher type, secp256k1 or blst")
}
