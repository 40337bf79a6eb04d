// Package awsclient builds the AWS API clients used by the inventory scan.
package awsclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"
)

// DefaultRegion is used for account-wide calls when no region is configured.
const DefaultRegion = "us-west-2"

// Config holds credential and endpoint settings.
type Config struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the service endpoint, e.g. for LocalStack.
	Endpoint string
}

// Session loads credentials once and creates one client set per region.
type Session struct {
	awsCfg   aws.Config
	endpoint string

	mu      sync.Mutex
	clients map[string]*Clients
}

// NewSession resolves credentials. Static keys win over the ambient chain.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = DefaultRegion
	}

	log.Debug().
		Str("region", awsCfg.Region).
		Bool("static_credentials", cfg.AccessKeyID != "").
		Msg("aws session ready")

	return &Session{
		awsCfg:   awsCfg,
		endpoint: cfg.Endpoint,
		clients:  make(map[string]*Clients),
	}, nil
}

// Region returns the session's home region.
func (s *Session) Region() string {
	return s.awsCfg.Region
}

// Clients returns the clients for region, creating them on first use.
func (s *Session) Clients(region string) *Clients {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[region]; ok {
		return c
	}

	regional := s.awsCfg.Copy()
	regional.Region = region

	c := &Clients{
		Region: region,
		EC2: ec2.NewFromConfig(regional, func(o *ec2.Options) {
			o.BaseEndpoint = s.baseEndpoint()
		}),
		ELB: elasticloadbalancing.NewFromConfig(regional, func(o *elasticloadbalancing.Options) {
			o.BaseEndpoint = s.baseEndpoint()
		}),
		ELBv2: elasticloadbalancingv2.NewFromConfig(regional, func(o *elasticloadbalancingv2.Options) {
			o.BaseEndpoint = s.baseEndpoint()
		}),
		AutoScaling: autoscaling.NewFromConfig(regional, func(o *autoscaling.Options) {
			o.BaseEndpoint = s.baseEndpoint()
		}),
		STS: sts.NewFromConfig(regional, func(o *sts.Options) {
			o.BaseEndpoint = s.baseEndpoint()
		}),
	}
	s.clients[region] = c
	return c
}

func (s *Session) baseEndpoint() *string {
	if s.endpoint == "" {
		return nil
	}
	return aws.String(s.endpoint)
}
