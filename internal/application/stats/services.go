package stats

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/automaton-risk/internal/domain/access"
	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/assessments"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	"github.com/bryanwahyu/automaton-risk/internal/domain/products"
)

// Aggregator computes read-only rollups. Empty scopes yield zeroed results.
type Aggregator struct {
	Products      products.Repository
	Assessments   assessments.Repository
	Users         identity.UserRepository
	Organizations identity.OrganizationRepository
}

type Overview struct {
	ProductStats products.Stats         `json:"productStats"`
	RiskStats    assessments.Statistics `json:"riskStats"`
}

// Overview rolls up everything visible to p.
func (a *Aggregator) Overview(ctx context.Context, p identity.Principal) (*Overview, error) {
	owners := access.Scope(p)
	out := &Overview{ProductStats: products.EmptyStats(), RiskStats: assessments.EmptyStatistics()}
	if len(owners) == 0 {
		return out, nil
	}
	if err := a.rollup(ctx, owners, &out.ProductStats, &out.RiskStats); err != nil {
		return nil, err
	}
	return out, nil
}

// Product returns risk statistics over one product's completed assessments.
func (a *Aggregator) Product(ctx context.Context, productID string) (assessments.Statistics, error) {
	st, err := a.Assessments.Statistics(ctx, []string{productID})
	if err != nil {
		return assessments.EmptyStatistics(), fmt.Errorf("product statistics: %w", err)
	}
	return normalizeRisk(st), nil
}

type OrganizationSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type MemberStats struct {
	TotalUsers  int `json:"totalUsers"`
	ActiveUsers int `json:"activeUsers"`
}

type OrganizationStats struct {
	Organization OrganizationSummary    `json:"organization"`
	Users        MemberStats            `json:"userStats"`
	ProductStats products.Stats         `json:"productStats"`
	RiskStats    assessments.Statistics `json:"riskStats"`
}

// Organization rolls up the members and organization-owned products of orgID.
func (a *Aggregator) Organization(ctx context.Context, p identity.Principal, orgID string) (*OrganizationStats, error) {
	org, err := a.Organizations.Get(ctx, orgID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("Organization")
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	owner := products.OrganizationOwner{OrganizationID: org.ID}
	if err := access.Require(p, owner, "organization"); err != nil {
		return nil, err
	}

	out := &OrganizationStats{
		Organization: OrganizationSummary{ID: org.ID, Name: org.Name, Domain: org.Domain},
		ProductStats: products.EmptyStats(),
		RiskStats:    assessments.EmptyStatistics(),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, active, err := a.Users.CountByOrganization(gctx, org.ID)
		if err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		out.Users = MemberStats{TotalUsers: total, ActiveUsers: active}
		return nil
	})
	g.Go(func() error {
		return a.rollup(gctx, []products.Owner{owner}, &out.ProductStats, &out.RiskStats)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// rollup fills product and risk statistics for owners concurrently.
func (a *Aggregator) rollup(ctx context.Context, owners []products.Owner, ps *products.Stats, rs *assessments.Statistics) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := a.Products.Stats(gctx, owners)
		if err != nil {
			return fmt.Errorf("product stats: %w", err)
		}
		if st.CategoryDistribution == nil {
			st.CategoryDistribution = []products.CategoryCount{}
		}
		*ps = st
		return nil
	})
	g.Go(func() error {
		ids, err := a.Products.IDs(gctx, owners)
		if err != nil {
			return fmt.Errorf("product ids: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		st, err := a.Assessments.Statistics(gctx, ids)
		if err != nil {
			return fmt.Errorf("risk stats: %w", err)
		}
		*rs = normalizeRisk(st)
		return nil
	})
	return g.Wait()
}

func normalizeRisk(st assessments.Statistics) assessments.Statistics {
	if st.RiskLevelDistribution == nil {
		st.RiskLevelDistribution = []assessments.LevelCount{}
	}
	return st
}
