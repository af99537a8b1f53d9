// Command keygen prints a fresh base64-encoded master key suitable for
// the VEILPAY_MASTER_KEY environment variable.
package main

import (
	"encoding/base64"
	"fmt"

	"github.com/veilpay/veilpay/internal/cryptox"
)

func main() {
	key := cryptox.GenerateKey()
	fmt.Println(base64.StdEncoding.EncodeToString(key))
}
