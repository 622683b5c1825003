package main

import (
	"flag"
	"fmt"
	"os"
)

type args struct {
	isInit  bool
	dataDir string
	addr    string
}

func ParseArgs() (args, error) {
	flag.Usage = func() {
		fmt.Printf("Casa Relay - sponsors gas for smart wallet calls on EVM chains.\n\n")
		fmt.Printf("Usage: %s [options]\n", os.Args[0])
		fmt.Printf("\nEnvironment: OPERATOR_PK (required), FACTORY, LOGLEVEL, HTTP_ADDR, FEE_CHAINS\n\n")
		flag.PrintDefaults()
	}
	isInit := flag.Bool("init", false, "Write the default config to the data directory and exit")
	dataDir := flag.String("data-dir", "data", "Directory holding config/RelayConfig.json")
	addr := flag.String("addr", "", "HTTP listen address, overrides the config and HTTP_ADDR")

	flag.Parse()

	if flag.NArg() > 0 {
		return args{}, fmt.Errorf("unexpected arguments: %v", flag.Args())
	}

	return args{
		*isInit,
		*dataDir,
		*addr,
	}, nil
}
