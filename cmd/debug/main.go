package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"arxiv-digest/internal/adapter/arxiv"
	"arxiv-digest/internal/adapter/gemini"
	"arxiv-digest/internal/adapter/openai"
	"arxiv-digest/internal/config"
	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/port"
	"arxiv-digest/internal/relevancy"
	"arxiv-digest/internal/render"

	"github.com/spf13/cobra"
)

type options struct {
	configFile string
	papersFile string
	interest   string
	threshold  int
	batchSize  int
	asJSON     bool
}

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:          "debug --papers data/cs.jsonl --interest \"...\"",
		Short:        "调试模式：对本地 JSONL 论文打分并打印结果",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.configFile)
			if err != nil {
				return err
			}
			if o.interest != "" {
				cfg.Interest = o.interest
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Threshold = o.threshold
			}
			if cmd.Flags().Changed("batch") {
				cfg.BatchSize = o.batchSize
			}
			if cfg.Interest == "" {
				return fmt.Errorf("需要 --interest 或配置中的 interest")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			generator, closeFn, err := newGenerator(ctx, cfg)
			if err != nil {
				return fmt.Errorf("❌ AI 初始化失败: %w", err)
			}
			defer closeFn()

			return run(ctx, cmd.OutOrStdout(), generator, cfg, o)
		},
	}
	cmd.Flags().StringVarP(&o.configFile, "config", "c", "", "配置文件")
	cmd.Flags().StringVar(&o.papersFile, "papers", "", "JSONL 论文文件")
	cmd.Flags().StringVar(&o.interest, "interest", "", "研究兴趣")
	cmd.Flags().IntVar(&o.threshold, "threshold", 7, "相关性阈值")
	cmd.Flags().IntVar(&o.batchSize, "batch", 16, "每次请求的论文数")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "以 JSON 输出")
	_ = cmd.MarkFlagRequired("papers")
	return cmd
}

func newGenerator(ctx context.Context, cfg *config.Config) (port.TextGenerator, func(), error) {
	if cfg.Provider == config.ProviderOpenAI {
		g, err := openai.NewGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Scoring.Model)
		return g, func() {}, err
	}
	g, err := gemini.NewGenerator(ctx, cfg.Gemini.APIKey, cfg.Scoring.Model)
	if err != nil {
		return nil, nil, err
	}
	return g, func() { _ = g.Close() }, nil
}

func run(ctx context.Context, w io.Writer, generator port.TextGenerator, cfg *config.Config, o options) error {
	f, err := os.Open(o.papersFile)
	if err != nil {
		return err
	}
	defer f.Close()

	papers, err := arxiv.ReadJSONL(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "🔍 调试模式：%d 篇论文，阈值 %d\n", len(papers), cfg.Threshold)

	encoder, err := relevancy.NewPromptEncoder(cfg.Scoring.PromptPath)
	if err != nil {
		return err
	}
	scorer := relevancy.NewScorer(generator, encoder,
		relevancy.WithTokensPerPaper(cfg.Scoring.TokensPerPaper),
		relevancy.WithSampling(cfg.Scoring.Temperature, cfg.Scoring.TopP),
		relevancy.WithRetry(cfg.Scoring.MaxRetries, cfg.Scoring.RetryDelay),
	)

	result, err := scorer.Score(ctx, papers, relevancy.Query{
		Interest:  cfg.Interest,
		Threshold: cfg.Threshold,
		BatchSize: cfg.BatchSize,
		Model:     cfg.Scoring.Model,
		Sort:      true,
	})
	if err != nil {
		return err
	}
	if result.Hallucinated {
		log.Println("⚠️ " + domain.HallucinationWarning)
	}

	if o.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toJSON(result.Records))
	}
	for i, r := range result.Records {
		fmt.Fprintln(w, render.PaperMarkdown(i+1, r))
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "✅ %d 篇论文达到阈值\n", len(result.Records))
	return nil
}

// toJSON 把模型字段展开到论文字段旁边，便于和原始 JSONL 对比
func toJSON(records []domain.RelevanceRecord) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		m := map[string]any{
			"id":        r.ID,
			"title":     r.Title,
			"authors":   r.Authors,
			"main_page": r.MainPage,
		}
		for _, f := range r.Fields {
			m[f.Key] = f.Value
		}
		out = append(out, m)
	}
	return out
}
