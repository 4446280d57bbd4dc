// Command sente-infersrv is a standalone InferenceServer binary: it
// serves the local Evaluator to remote distributed.Client pools over
// the raw TCP wire protocol.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/sente-engine/sente/distributed"
	"github.com/sente-engine/sente/eval"
)

func main() {
	var (
		addr      = flag.String("addr", ":8080", "listen address")
		boardSize = flag.Int("size", 9, "board size this server evaluates positions for")
		maxConns  = flag.Int("max-conns", 32, "maximum concurrent client connections")
		modelHash = flag.Uint64("model-hash", 0xC0FFEE, "model identity hash exchanged with connecting clients")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "sente-infersrv: ", log.LstdFlags)

	cfg := eval.DefaultConfig(*boardSize)
	local, err := eval.NewLocal(cfg, eval.DefaultEncoder)
	if err != nil {
		logger.Fatalf("building local evaluator: %v", err)
	}

	scfg := distributed.ServerConfig{
		Addr:        *addr,
		ModelHash:   *modelHash,
		MaxConns:    int32(*maxConns),
		InputSize:   cfg.Features * cfg.Width * cfg.Height,
		ActionSpace: cfg.ActionSpace,
	}
	server, err := distributed.NewServer(scfg, local, logger)
	if err != nil {
		logger.Fatalf("malformed server configuration: %v", err)
	}
	if err := server.Listen(); err != nil {
		logger.Fatalf("listen: %v", err)
	}
	logger.Printf("listening on %s (model hash %x)", server.Addr(), *modelHash)
	if err := server.Serve(); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}
