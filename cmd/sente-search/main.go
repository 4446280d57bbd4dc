// Command sente-search is a CLI entry point wiring SearchController to
// flags:
// worker thread count, playout count, time controls, batch size,
// remote-server list and ponder flag. It plays one move against the
// configured search budget on a fresh board and prints the result.
//
// Go rules, SGF ingestion and the text move protocol remain external
// collaborators; this binary only drives the
// search core end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sente-engine/sente/batch"
	"github.com/sente-engine/sente/board"
	"github.com/sente-engine/sente/distributed"
	"github.com/sente-engine/sente/eval"
	"github.com/sente-engine/sente/mcts"
	"github.com/sente-engine/sente/ratings"
)

func main() {
	var (
		boardSize = flag.Int("size", 9, "board size (9, 13 or 19)")
		threads   = flag.Int("threads", 4, "search worker thread count")
		playouts  = flag.Int("playouts", 1000, "fixed playout budget")
		mainTime  = flag.Duration("main-time", 0, "main time (0 disables tournament mode)")
		byoyomi   = flag.Duration("byoyomi", 5*time.Second, "byoyomi period length")
		batchSize = flag.Int("batch-size", 8, "BatchScheduler batch size")
		servers   = flag.String("remote-servers", "", "comma-separated host:port list of remote InferenceServers")
		ponder    = flag.Bool("ponder", false, "start pondering after the move is returned")
		modelHash = flag.Uint64("model-hash", 0xC0FFEE, "model identity hash exchanged with remote servers")
		handicap  = flag.Int("handicap", 0, "handicap stones (enables linear dynamic komi)")
		dumpTree  = flag.String("dump-tree", "", "write a graphviz DOT dump of the searched tree to this file")
		dumpHeat  = flag.String("dump-heatmap", "", "write an ownership/criticality heatmap PNG to this file")
	)
	flag.Parse()

	cfg := eval.DefaultConfig(*boardSize)
	local, err := eval.NewLocal(cfg, eval.DefaultEncoder)
	if err != nil {
		log.Fatalf("sente-search: building local evaluator: %v", err)
	}

	evaluator, closeEval := buildEvaluator(cfg, local, *batchSize, *servers, *modelHash)
	defer closeEval()

	engineCfg := mcts.DefaultEngineConfig()
	komiMode := mcts.KomiOff
	if *handicap > 0 {
		komiMode = mcts.KomiLinear
	}
	komi := mcts.NewDynamicKomi(komiMode, *handicap, 0, 7.5)
	sim := mcts.NewSimulator(ratings.PassAverse{Inner: ratings.Uniform{}})
	engine := mcts.NewSearchEngine(evaluator, sim, komi, engineCfg)

	controller := mcts.NewSearchController(engine, *threads)
	controller.SetPlayouts(*playouts)
	if *mainTime > 0 {
		controller.SetMode(mcts.ModeTournament)
		controller.SetTimeSettings(mcts.TimeSettings{MainTime: *mainTime, ByoyomiTime: *byoyomi})
	}

	state := board.NewSimpleBoard(*boardSize)
	res, err := controller.GenerateMove(context.Background(), state)
	if err != nil {
		log.Fatalf("sente-search: generate_move failed: %v", err)
	}
	fmt.Printf("%s (winrate %.3f)\n", board.FormatMove(state.Turn(), res.Move), res.Winrate)
	printPrincipalVariation(engine, state)

	writeDumps(engine, state, *dumpTree, *dumpHeat)

	if *ponder && res.Move != board.ResignMove {
		next := state.Clone().Apply(res.Move)
		if err := controller.StartPondering(next); err != nil {
			log.Printf("sente-search: pondering failed to start: %v", err)
			return
		}
		defer controller.StopPondering()
		time.Sleep(*byoyomi)
	}
}

// printPrincipalVariation prints the expected continuation from the
// searched root, alternating colors from the side to move.
func printPrincipalVariation(engine *mcts.SearchEngine, state board.State) {
	root, err := engine.ExpandRoot(state)
	if err != nil {
		return
	}
	pv := engine.PrincipalVariation(root, 8)
	if len(pv) == 0 {
		return
	}
	fmt.Print("pv:")
	turn := state.Turn()
	for _, m := range pv {
		fmt.Printf(" %s", board.FormatMove(turn, m))
		turn = turn.Opponent()
	}
	fmt.Println()
}

// writeDumps exports the post-search diagnostics the flags asked for:
// a DOT rendering of the searched subtree and an ownership/criticality
// heatmap of the root.
func writeDumps(engine *mcts.SearchEngine, state board.State, treePath, heatPath string) {
	if treePath == "" && heatPath == "" {
		return
	}
	root, err := engine.ExpandRoot(state)
	if err != nil {
		log.Printf("sente-search: diagnostics unavailable: %v", err)
		return
	}
	if treePath != "" {
		dot, err := engine.ExportGraphviz(root, 3)
		if err != nil {
			log.Printf("sente-search: tree dump failed: %v", err)
		} else if err := os.WriteFile(treePath, []byte(dot), 0o644); err != nil {
			log.Printf("sente-search: writing %s: %v", treePath, err)
		}
	}
	if heatPath != "" {
		img, err := mcts.RenderOwnershipHeatmap(engine.Pool().Node(root), state.Size())
		if err != nil {
			log.Printf("sente-search: heatmap render failed: %v", err)
			return
		}
		f, err := os.Create(heatPath)
		if err != nil {
			log.Printf("sente-search: creating %s: %v", heatPath, err)
			return
		}
		defer f.Close()
		if err := png.Encode(f, img); err != nil {
			log.Printf("sente-search: encoding %s: %v", heatPath, err)
		}
	}
}

// buildEvaluator assembles the Local -> BatchScheduler -> Distributed
// fallback chain: the remote pool is preferred
// when configured, the accelerator-batched path is preferred over a
// lone CPU forward, and Local is always the last-resort evaluator.
func buildEvaluator(cfg eval.Config, local *eval.Local, batchSize int, serverList string, modelHash uint64) (eval.Evaluator, func()) {
	noop := func() {}
	if strings.TrimSpace(serverList) == "" {
		accel, err := batch.NewLocalTensorAccelerator(cfg.Features*cfg.Width*cfg.Height, cfg.ActionSpace, 1)
		if err != nil {
			log.Printf("sente-search: accelerator unavailable, using local CPU evaluator: %v", err)
			return local, noop
		}
		bcfg := batch.DefaultConfig(cfg.Features*cfg.Width*cfg.Height, cfg.ActionSpace)
		bcfg.BatchSize = batchSize
		scheduler, err := batch.NewScheduler(accel, bcfg)
		if err != nil {
			log.Printf("sente-search: batch scheduler unavailable, using local CPU evaluator: %v", err)
			return local, noop
		}
		return eval.Encoded{Encoder: eval.DefaultEncoder, Config: cfg, Raw: scheduler}, scheduler.Close
	}

	servers := strings.Split(serverList, ",")
	dcfg := distributed.DefaultConfig(servers, cfg.Features*cfg.Width*cfg.Height, cfg.ActionSpace, modelHash)
	client, err := distributed.NewClient(dcfg, local, nil)
	if err != nil {
		log.Fatalf("sente-search: malformed remote-servers configuration: %v", err)
	}
	return eval.Encoded{Encoder: eval.DefaultEncoder, Config: cfg, Raw: client}, func() {
		if err := client.Close(); err != nil {
			log.Printf("sente-search: distributed client close: %v", err)
		}
	}
}
