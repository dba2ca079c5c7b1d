package main

import (
	"context"
	"fmt"
	"log"

	"arxiv-digest/internal/adapter/analyzer"
	"arxiv-digest/internal/adapter/arxiv"
	"arxiv-digest/internal/adapter/cache"
	"arxiv-digest/internal/adapter/email"
	"arxiv-digest/internal/adapter/filter"
	"arxiv-digest/internal/adapter/gemini"
	"arxiv-digest/internal/adapter/github"
	"arxiv-digest/internal/adapter/htmlfile"
	"arxiv-digest/internal/adapter/openai"
	"arxiv-digest/internal/adapter/repository"
	"arxiv-digest/internal/adapter/summarizer"
	"arxiv-digest/internal/adapter/webhook"
	"arxiv-digest/internal/config"
	"arxiv-digest/internal/metrics"
	"arxiv-digest/internal/port"
	"arxiv-digest/internal/relevancy"
	"arxiv-digest/internal/render"
	"arxiv-digest/internal/service"
)

// app 一次运行所需的全部组件
type app struct {
	service *service.DigestService
	metrics *metrics.Recorder
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("⚠️ 释放资源失败: %v", err)
		}
	}
}

// buildApp 按配置初始化依赖，没配置的可选组件直接跳过
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{metrics: metrics.NewRecorder()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	catalog, err := arxiv.LoadCatalog()
	if err != nil {
		return nil, err
	}

	var repo port.Repository
	if cfg.Database.DSN != "" {
		pg, err := repository.NewPostgresRepo(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("❌ DB 初始化失败: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		repo = pg
	}

	deps := service.Deps{
		Topics:    catalog,
		Source:    newSource(cfg),
		Filter:    filter.NewPaperFilter(repo),
		Repo:      repo,
		Metrics:   a.metrics,
	}

	if cfg.NeedsLLM() {
		generator, defaultModel, err := newGenerator(ctx, cfg, a)
		if err != nil {
			return nil, fmt.Errorf("❌ AI 初始化失败: %w", err)
		}

		encoder, err := relevancy.NewPromptEncoder(cfg.Scoring.PromptPath)
		if err != nil {
			return nil, err
		}
		deps.Scorer = relevancy.NewScorer(generator, encoder,
			relevancy.WithTokensPerPaper(cfg.Scoring.TokensPerPaper),
			relevancy.WithSampling(cfg.Scoring.Temperature, cfg.Scoring.TopP),
			relevancy.WithRetry(cfg.Scoring.MaxRetries, cfg.Scoring.RetryDelay),
			relevancy.WithMetrics(a.metrics),
		)

		if cfg.Summary.Enabled {
			model := cfg.Summary.Model
			if model == "" {
				model = defaultModel
			}
			opts := []summarizer.Option{summarizer.WithMetrics(a.metrics)}
			if cfg.Redis.Addr != "" {
				c, err := cache.NewRedisCache(cfg.Redis.Addr, model, cfg.Redis.TTL)
				if err != nil {
					return nil, err
				}
				a.closers = append(a.closers, c.Close)
				if err := c.Ping(ctx); err != nil {
					// 缓存只是优化，连不上也继续
					log.Printf("⚠️ %v，本次不使用摘要缓存", err)
				} else {
					opts = append(opts, summarizer.WithCache(c))
				}
			}
			ra := analyzer.NewRecordAnalyzer(summarizer.New(generator, model, opts...))
			ra.SetMaxGoroutines(cfg.Summary.Workers)
			ra.SetInterval(cfg.Summary.Interval)
			deps.Analyzer = ra
		}
	}

	notifiers, reporters, err := newNotifiers(cfg)
	if err != nil {
		return nil, err
	}
	deps.Notifiers = notifiers
	deps.Reporters = reporters

	a.service = service.NewDigestService(deps, service.Options{
		Topic:      cfg.Topic,
		Categories: cfg.Categories,
		Interest:   cfg.Interest,
		Threshold:  cfg.Threshold,
		MaxPapers:  cfg.MaxPapers,
		BatchSize:  cfg.BatchSize,
		Model:      cfg.Scoring.Model,
		SkipSeen:   cfg.SkipSeen && repo != nil,
	})
	ok = true
	return a, nil
}

func newSource(cfg *config.Config) port.PaperSource {
	switch cfg.Source.Kind {
	case config.SourceRSS:
		return arxiv.NewRSSSource(cfg.Source.URL, nil)
	case config.SourceJSONL:
		return arxiv.NewJSONLSource(cfg.Source.Path)
	default:
		opts := []arxiv.ListingOption{arxiv.WithLimit(cfg.Source.Limit)}
		if cfg.Source.URL != "" {
			opts = append(opts, arxiv.WithBaseURL(cfg.Source.URL))
		}
		return arxiv.NewListingSource(opts...)
	}
}

// newGenerator 返回生成器和它的默认模型名
func newGenerator(ctx context.Context, cfg *config.Config, a *app) (port.TextGenerator, string, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		g, err := openai.NewGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Scoring.Model)
		return g, openai.DefaultModel, err
	default:
		g, err := gemini.NewGenerator(ctx, cfg.Gemini.APIKey, cfg.Scoring.Model)
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, g.Close)
		return g, gemini.DefaultModel, nil
	}
}

// newNotifiers 按已配置的密钥决定启用哪些渠道，HTML 文件始终输出
func newNotifiers(cfg *config.Config) ([]port.Notifier, []port.ErrorReporter, error) {
	renderer := render.NewHTMLRenderer()
	var notifiers []port.Notifier
	var reporters []port.ErrorReporter

	if cfg.HTML.Path != "" {
		notifiers = append(notifiers, htmlfile.NewWriter(cfg.HTML.Path, renderer))
	}

	if cfg.Webhook.URL != "" {
		n := webhook.NewNotifier(cfg.Webhook.URL,
			webhook.WithUsername(cfg.Webhook.Username),
			webhook.WithInterval(cfg.Webhook.Interval),
		)
		notifiers = append(notifiers, n)
		reporters = append(reporters, n)
	} else {
		fmt.Println("Webhook URL 未设置，跳过 Discord 推送")
	}

	if cfg.GitHub.Token != "" && cfg.GitHub.Repository != "" {
		p, err := github.NewPoster(cfg.GitHub.Token, cfg.GitHub.Repository, cfg.GitHub.Labels)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, p)
	}

	if cfg.Email.APIKey != "" && cfg.Email.From != "" && cfg.Email.To != "" {
		s, err := email.NewSender(cfg.Email.APIKey, cfg.Email.From, cfg.Email.To, renderer)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, s)
	} else {
		fmt.Println("SendGrid API key 或邮箱未设置，跳过邮件发送")
	}

	return notifiers, reporters, nil
}
