package app

import (
	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/config"
	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/observability"
	"github.com/helixir/paper-ingest-service/internal/papersources"
	"github.com/helixir/paper-ingest-service/internal/papersources/arxiv"
	"github.com/helixir/paper-ingest-service/internal/papersources/europepmc"
	"github.com/helixir/paper-ingest-service/internal/papersources/feed"
	"github.com/helixir/paper-ingest-service/internal/papersources/huggingface"
	"github.com/helixir/paper-ingest-service/internal/papersources/openalex"
	"github.com/helixir/paper-ingest-service/internal/papersources/semanticscholar"
)

func settings(p config.ProviderConfig) papersources.ProviderSettings {
	return papersources.ProviderSettings{Timeout: p.FetchTimeout, MaxResults: p.MaxResults}
}

// NewGateway registers every enabled provider, in a fixed order, with a new
// gateway.
func NewGateway(cfg config.ProvidersConfig, logger zerolog.Logger, metrics *observability.Metrics) *papersources.Gateway {
	gw := papersources.NewGateway(logger, metrics)

	if c := cfg.ArXiv; c.Enabled {
		gw.Register(arxiv.New(arxiv.Config{
			BaseURL:    c.BaseURL,
			Categories: c.Categories,
			Timeout:    c.Timeout,
			RateLimit:  c.RateLimit,
			BurstSize:  c.BurstSize,
			MaxResults: c.MaxResults,
			Enabled:    true,
		}), settings(c.ProviderConfig))
		logger.Info().Strs("categories", c.Categories).Msg("registered provider: arXiv")
	}

	if c := cfg.OpenAlex; c.Enabled {
		gw.Register(openalex.New(openalex.Config{
			BaseURL:    c.BaseURL,
			Email:      c.Email,
			Filter:     c.Filter,
			Timeout:    c.Timeout,
			RateLimit:  c.RateLimit,
			BurstSize:  c.BurstSize,
			MaxResults: c.MaxResults,
			Enabled:    true,
		}), settings(c.ProviderConfig))
		logger.Info().Msg("registered provider: OpenAlex")
	}

	if c := cfg.SemanticScholar; c.Enabled {
		gw.Register(NewSemanticScholar(c), settings(c.ProviderConfig))
		logger.Info().Bool("api_key", c.APIKey != "").Msg("registered provider: Semantic Scholar")
	}

	if c := cfg.EuropePMC; c.Enabled {
		gw.Register(europepmc.New(europepmc.Config{
			BaseURL:    c.BaseURL,
			Query:      c.Query,
			Publishers: c.Publishers,
			Timeout:    c.Timeout,
			RateLimit:  c.RateLimit,
			BurstSize:  c.BurstSize,
			MaxResults: c.MaxResults,
			Enabled:    true,
		}), settings(c.ProviderConfig))
		logger.Info().Msg("registered provider: Europe PMC")
	}

	if c := cfg.HuggingFace; c.Enabled {
		gw.Register(NewHuggingFace(c), settings(c))
		logger.Info().Msg("registered provider: Hugging Face daily papers")
	}

	if c := cfg.Feed; c.Enabled && len(c.Sources) > 0 {
		sources := make([]feed.Source, 0, len(c.Sources))
		for _, s := range c.Sources {
			sources = append(sources, feed.Source{Name: s.Name, URL: s.URL})
		}
		gw.Register(feed.New(feed.Config{
			Sources:    sources,
			Timeout:    c.Timeout,
			RateLimit:  c.RateLimit,
			BurstSize:  c.BurstSize,
			MaxResults: c.MaxResults,
			Enabled:    true,
		}), settings(c.ProviderConfig))
		logger.Info().Int("feeds", len(sources)).Msg("registered provider: feeds")
	}

	return gw
}

// NewSemanticScholar builds the Semantic Scholar client. It serves both as
// a provider and as the citation lookup for enrichment.
func NewSemanticScholar(c config.SemanticScholarConfig) *semanticscholar.Client {
	return semanticscholar.NewClient(semanticscholar.Config{
		BaseURL:       c.BaseURL,
		APIKey:        c.APIKey,
		Keywords:      c.Keywords,
		FieldsOfStudy: c.FieldsOfStudy,
		Timeout:       c.Timeout,
		RateLimit:     c.RateLimit,
		BurstSize:     c.BurstSize,
		MaxResults:    c.MaxResults,
		Enabled:       c.Enabled,
	}, nil)
}

// NewHuggingFace builds the Hub client used for daily papers and lookups.
func NewHuggingFace(c config.ProviderConfig) *huggingface.Client {
	return huggingface.New(huggingface.Config{
		BaseURL:    c.BaseURL,
		Token:      c.APIKey,
		Timeout:    c.Timeout,
		RateLimit:  c.RateLimit,
		BurstSize:  c.BurstSize,
		MaxResults: c.MaxResults,
		Enabled:    c.Enabled,
	})
}

func sourceTypes(names []string) []domain.SourceType {
	out := make([]domain.SourceType, 0, len(names))
	for _, n := range names {
		out = append(out, domain.SourceType(n))
	}
	return out
}
