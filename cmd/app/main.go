package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"arxiv-digest/internal/adapter/arxiv"
	"arxiv-digest/internal/adapter/repository"
	"arxiv-digest/internal/config"
	"arxiv-digest/internal/domain"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arxiv-digest",
		Short:         "按研究兴趣筛选每天的 arXiv 新论文并推送",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件 (默认 ./config.yaml)")

	root.AddCommand(newRunCmd(), newScheduleCmd(), newCategoriesCmd(), newHistoryCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "立即生成并推送一次",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return executeDigestCycle(ctx, cfg)
		},
	}
}

func newScheduleCmd() *cobra.Command {
	var spec string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "按 cron 表达式定时执行",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if spec != "" {
				cfg.Schedule = spec
			}
			return runScheduled(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "覆盖配置中的 schedule，例如 \"0 9 * * 1-5\"")
	return cmd
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories [topic]",
		Short: "列出可用的 topic 和分类",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := arxiv.LoadCatalog()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				topic, err := catalog.Resolve(args[0], nil)
				if err == nil {
					printTopic(cmd.OutOrStdout(), topic)
					return nil
				}
				// Physics 这类大类列出子 topic
				found := false
				for i := range catalog.Topics {
					if catalog.Topics[i].Parent == args[0] {
						printTopic(cmd.OutOrStdout(), &catalog.Topics[i])
						found = true
					}
				}
				if !found {
					return err
				}
				return nil
			}
			for i := range catalog.Topics {
				printTopic(cmd.OutOrStdout(), &catalog.Topics[i])
			}
			return nil
		},
	}
}

func printTopic(w io.Writer, t *arxiv.Topic) {
	name := t.Name
	if t.Parent != "" {
		name = t.Parent + " / " + t.Name
	}
	if t.Code == "" {
		fmt.Fprintf(w, "%s (请选择子 topic)\n", name)
		return
	}
	fmt.Fprintf(w, "%s [%s]\n", name, t.Code)
	for _, c := range t.Categories {
		fmt.Fprintf(w, "  - %s\n", c)
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看数据库里最近推送过的论文",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			repo, err := repository.NewPostgresRepo(cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer repo.Close()

			entries, err := repo.RecentEntries(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "最多显示多少篇")
	return cmd
}

func printEntries(w io.Writer, entries []*domain.PaperEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "暂无记录")
		return
	}
	for _, e := range entries {
		mark := " "
		if e.AlreadyNotified {
			mark = "✓"
		}
		score := "-"
		if e.Scored {
			score = fmt.Sprint(e.Score)
		}
		fmt.Fprintf(w, "%s %s [%s] %s %s\n", mark, e.CreatedAt.Format("2006-01-02"), score, e.Title, e.MainPage)
	}
}

// runScheduled 运行定时推送任务
func runScheduled(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(cfg.Schedule, func() {
		if err := executeDigestCycle(ctx, cfg); err != nil {
			log.Printf("❌ 本轮推送失败: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("无效的 cron 表达式 %q: %w", cfg.Schedule, err)
	}

	c.Start()
	fmt.Printf("⏰ 定时执行模式已启动: %s\n", cfg.Schedule)
	fmt.Println("按下 Ctrl+C 可以优雅停止程序")

	<-ctx.Done()
	fmt.Println("\n👋 收到停止信号，正在等待当前任务结束...")
	<-c.Stop().Done()
	fmt.Println("👋 定时任务已停止")
	return nil
}

// executeDigestCycle 执行一次推送周期
func executeDigestCycle(parent context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(parent, cfg.Timeout)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	digest, runErr := a.service.Run(ctx)

	if cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancelPush := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancelPush()
		if err := a.metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			log.Printf("⚠️ 推送指标失败: %v", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	fmt.Printf("📚 %s: %d 篇论文 (%s)\n", strings.TrimSpace(cfg.Topic), len(digest.Records), time.Since(start).Round(time.Second))
	return nil
}
