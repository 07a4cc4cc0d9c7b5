package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/poyrazK/tourpass/internal/core/ports"
	"github.com/poyrazK/tourpass/internal/infrastructure/metrics"
)

// AccessConfig holds the service-level settings shared by all purchases.
type AccessConfig struct {
	BaseURL       string
	DefaultPolicy domain.Policy
}

type accessService struct {
	repo     ports.TokenRepository
	catalog  *domain.Catalog
	matcher  *domain.Matcher
	notifier ports.Notifier
	issuer   *TokenIssuer
	redeemer *TokenRedeemer
	cfg      AccessConfig
	logger   *slog.Logger
}

// NewAccessService wires the issuer, redeemer and notifier into the purchase
// and redemption flows.
func NewAccessService(
	repo ports.TokenRepository,
	catalog *domain.Catalog,
	matcher *domain.Matcher,
	notifier ports.Notifier,
	cfg AccessConfig,
	logger *slog.Logger,
) ports.AccessService {
	if logger == nil {
		logger = slog.Default()
	}
	return &accessService{
		repo:     repo,
		catalog:  catalog,
		matcher:  matcher,
		notifier: notifier,
		issuer:   NewTokenIssuer(repo, catalog, logger),
		redeemer: NewTokenRedeemer(repo, catalog, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// HandlePurchase runs normalize → match → issue → notify. An unmatched product
// is a successful call with Success=false. A notifier failure after the token
// is stored leaves Success=true and Emailed=false.
func (s *accessService) HandlePurchase(ctx context.Context, p domain.Purchase) (*domain.PurchaseOutcome, error) {
	if err := domain.ValidateProductName(p.ProductName); err != nil {
		metrics.PurchasesTotal.WithLabelValues("bad_request").Inc()
		return nil, err
	}

	name := domain.NormalizeName(p.ProductName)
	rule, ok := s.matcher.Match(name)
	if !ok {
		metrics.PurchasesTotal.WithLabelValues("unmatched").Inc()
		s.logger.Warn("no resource for product", "product", name)
		return &domain.PurchaseOutcome{Success: false, Reason: domain.ReasonUnmatched, RawName: p.ProductName}, nil
	}

	policy := s.cfg.DefaultPolicy
	if rule.Policy != nil {
		policy = *rule.Policy
	}

	res, err := s.issuer.Issue(ctx, domain.IssueRequest{
		IdempotencyKey: p.IdempotencyKey,
		ProductName:    name,
		ResourceID:     rule.ResourceID,
		Policy:         policy,
	})
	if err != nil {
		metrics.PurchasesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	out := &domain.PurchaseOutcome{
		Success:          true,
		ResourceID:       res.Record.ResourceID,
		AccessURL:        s.AccessURL(res.Record.Token),
		AlreadyProcessed: res.AlreadyProcessed,
	}
	if res.AlreadyProcessed {
		metrics.PurchasesTotal.WithLabelValues("replayed").Inc()
		return out, nil
	}
	metrics.PurchasesTotal.WithLabelValues("issued").Inc()

	if p.Recipient == "" {
		s.logger.Warn("token issued without recipient, skipping notification", "resource", rule.ResourceID)
		return out, nil
	}

	resource, _ := s.catalog.Lookup(res.Record.ResourceID)
	err = s.notifier.Notify(ctx, domain.Notification{
		Recipient:    p.Recipient,
		ResourceName: resource.DisplayName,
		AccessURL:    out.AccessURL,
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("notification failed after issuance", "error", err, "resource", rule.ResourceID, "token_prefix", tokenLogPrefix(res.Record.Token))
		return out, nil
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	out.Emailed = true
	return out, nil
}

func (s *accessService) Redeem(ctx context.Context, token string) (*domain.Redirect, error) {
	return s.redeemer.Redeem(ctx, token)
}

// Lookup returns the current state of token without consuming a use.
func (s *accessService) Lookup(ctx context.Context, token string) (*domain.TokenRecord, error) {
	if err := domain.ValidateToken(token); err != nil {
		return nil, err
	}
	rec, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		return nil, storeError("find by token", err)
	}
	if rec == nil {
		return nil, domain.ErrInvalidToken
	}
	return rec, nil
}

func (s *accessService) Match(productName string) (domain.Rule, bool) {
	return s.matcher.Match(productName)
}

func (s *accessService) HealthCheck(ctx context.Context) map[string]error {
	return map[string]error{
		"store": s.repo.Ping(ctx),
	}
}

// AccessURL builds the link mailed to purchasers.
func (s *accessService) AccessURL(token string) string {
	return BuildAccessURL(s.cfg.BaseURL, token)
}

// BuildAccessURL returns <baseURL>/access?token=<token>.
func BuildAccessURL(baseURL, token string) string {
	return fmt.Sprintf("%s%s?token=%s", strings.TrimRight(baseURL, "/"), domain.AccessPath, url.QueryEscape(token))
}
