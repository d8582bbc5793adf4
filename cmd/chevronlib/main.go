// Command chevronlib builds the software provider as a C shared library
// exporting the chevron provider symbols:
//
//	go build -buildmode=c-shared -o chevron.so ./cmd/chevronlib
//
// The library keeps its keyring in memory, or in the JSON file named by
// CHEVRON_KEYRING_PATH when that is set. It does not log.
package main

import (
	"os"
	"strconv"

	"github.com/glinharesb/chevron-bridge/internal/keyring"
	"github.com/glinharesb/chevron-bridge/internal/provider"
	"github.com/glinharesb/chevron-bridge/internal/software"
)

var table = newTable()

func newTable() provider.Table {
	var store keyring.Store
	if path := os.Getenv("CHEVRON_KEYRING_PATH"); path != "" {
		ps, err := keyring.NewPersistentStore(path, nil)
		if err == nil {
			store = ps
		}
	}

	var opts []software.Option
	if cost, err := strconv.Atoi(os.Getenv("CHEVRON_SEAL_COST")); err == nil {
		opts = append(opts, software.WithSealCost(cost))
	}
	return software.New(store, opts...).Table()
}

func main() {}
