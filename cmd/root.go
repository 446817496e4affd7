package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fyerfyer/transcript-qa/api/middleware"
	"github.com/fyerfyer/transcript-qa/config"
	"github.com/fyerfyer/transcript-qa/internal/app"
)

// rootOptions 问答命令的参数
type rootOptions struct {
	configFile   string
	topK         int
	language     string
	chunkSize    int
	chunkOverlap int
	noMetadata   bool
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "transcript-qa [source] [question]",
		Short: "Answer a question about a video transcript or document",
		Long: `Loads the transcript of a YouTube video (or a local txt, md or pdf file),
indexes it in memory and streams an answer to the question to standard output.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, args[0], args[1])
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "config.yaml", "path to the config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().IntVar(&opts.topK, "k", 0, "number of segments to retrieve (default from config)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "transcript language (default from config)")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "maximum segment size in characters (default from config)")
	cmd.Flags().IntVar(&opts.chunkOverlap, "chunk-overlap", 0, "overlap between segments in characters (default from config)")
	cmd.Flags().BoolVar(&opts.noMetadata, "no-metadata", false, "do not fetch video metadata")

	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// loadConfig 加载环境变量文件和配置，并初始化日志
func loadConfig(opts *rootOptions) (*config.Config, *logrus.Logger, error) {
	// .env 文件是可选的
	_ = godotenv.Load()

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, nil, err
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := middleware.ConfigureLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	return cfg, logger, nil
}

func runAsk(cmd *cobra.Command, opts *rootOptions, source, question string) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	overrides := app.Overrides{
		Language:  opts.language,
		TopK:      opts.topK,
		ChunkSize: opts.chunkSize,
	}
	if cmd.Flags().Changed("chunk-overlap") {
		overrides.ChunkOverlap = &opts.chunkOverlap
	}
	if opts.noMetadata {
		include := false
		overrides.IncludeMetadata = &include
	}

	builder := app.NewBuilder(cfg, logger)
	defer builder.Close()

	pipeline, err := builder.Build(overrides)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = pipeline.Run(ctx, source, question, cmd.OutOrStdout())
	return err
}
