package main

import (
	"log"
	"strconv"

	"pagelift/analyze"
	"pagelift/api"
	"pagelift/capture"
	"pagelift/catalog"
	"pagelift/config"
	"pagelift/detect"
	"pagelift/evaluate"
	"pagelift/extract"
	"pagelift/gemini"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// =========
	// Config
	// =========
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	prompts, err := config.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		log.Fatalf("Failed to load prompts: %v", err)
	}

	// =========
	// Logging
	// =========
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	// =========
	// Gemini clients
	// =========
	detectVision := gemini.NewClient(cfg.GeminiAPIKey, cfg.DetectModel, cfg.CallTimeout, logger)
	analyzeVision := gemini.NewClient(cfg.GeminiAPIKey, cfg.AnalyzeModel, cfg.CallTimeout, logger)
	evaluateVision := gemini.NewClient(cfg.GeminiAPIKey, cfg.EvaluateModel, cfg.CallTimeout, logger)

	// =========
	// Pipeline stages
	// =========
	detector := detect.NewDetector(detectVision, prompts.Detect, logger)
	finder := catalog.NewFinder(logger)
	browser := capture.NewBrowser(logger, cfg.NavTimeout, cfg.StepWait)
	capturer := capture.NewCapturer(browser, cfg.MaxPages, logger)
	analyzer := analyze.NewAnalyzer(analyzeVision, prompts.Analyze, logger)
	evaluator := evaluate.NewEvaluator(evaluateVision, prompts.Evaluate, logger)

	pipeline := extract.NewPipeline(
		detector,
		finder,
		capturer,
		analyzer,
		evaluator,
		cfg.MaxVolumesToTry,
		cfg.EvaluationThreshold,
		logger,
	)

	// =========
	// HTTP
	// =========
	server := api.NewServer(pipeline, logger, strconv.Itoa(cfg.AppPort))
	if err := server.Start(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
