// Command train fits the gambling classifier on a labeled dataset and writes
// a model artifact the server loads at startup.
//
// The dataset is a JSON array of training examples with precomputed feature
// vectors, produced by an export from a labeled transaction store.
//
// Usage:
//
//	go run ./cmd/train -data data/examples.json -out data/model.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/betguard/betguard/internal/classifier"
)

func main() {
	var (
		dataPath = flag.String("data", "data/examples.json", "path to labeled examples JSON")
		outPath  = flag.String("out", "data/model.json", "path to write the model artifact")
		version  = flag.String("version", "", "artifact version (default: timestamp)")
		epochs   = flag.Int("epochs", 0, "training epochs (0 = default)")
		batch    = flag.Int("batch", 0, "mini-batch size (0 = default)")
		lr       = flag.Float64("lr", 0, "learning rate (0 = default)")
		seed     = flag.Int64("seed", 0, "rng seed (0 = time-based)")
	)
	flag.Parse()

	raw, err := os.ReadFile(*dataPath)
	if err != nil {
		log.Fatalf("Failed to read dataset: %v", err)
	}

	var examples []classifier.Example
	if err := json.Unmarshal(raw, &examples); err != nil {
		log.Fatalf("Failed to parse dataset: %v", err)
	}
	fmt.Printf("Loaded %d examples from %s\n", len(examples), *dataPath)

	opts := classifier.DefaultOptions()
	if *epochs > 0 {
		opts.Epochs = *epochs
	}
	if *batch > 0 {
		opts.BatchSize = *batch
	}
	if *lr > 0 {
		opts.LearningRate = *lr
	}
	if *seed != 0 {
		opts.Seed = *seed
	} else {
		opts.Seed = time.Now().UnixNano()
	}

	n := classifier.NewNetwork(opts.Seed)
	hist, err := n.Train(examples, opts)
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	fmt.Printf("Trained for %d epochs in %s\n", len(hist.Epochs), hist.Duration.Round(time.Millisecond))
	fmt.Printf("Final loss:     %.4f\n", hist.FinalLoss)
	fmt.Printf("Final accuracy: %.2f%%\n", hist.FinalAccuracy*100)

	v := *version
	if v == "" {
		v = time.Now().UTC().Format("20060102-150405")
	}

	art := classifier.NewArtifact(n, v, hist.FinalAccuracy, hist.Examples)
	if err := art.Save(*outPath); err != nil {
		log.Fatalf("Failed to save artifact: %v", err)
	}
	fmt.Printf("Saved model %s to %s\n", v, *outPath)
}
