package abac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/helios-sis/helios-sis/internal/principal"
	"github.com/helios-sis/helios-sis/internal/rbac"
	"github.com/helios-sis/helios-sis/internal/shared"
)

// AttributeStore loads a principal's attributes.
type AttributeStore interface {
	ListAttributes(ctx context.Context, principalID int64) ([]principal.Attribute, error)
}

// ConditionStore loads the resource-condition descriptors of a permission.
type ConditionStore interface {
	PermissionConditions(ctx context.Context, permissionName string) ([]rbac.ResourceCondition, error)
}

// Metrics receives decision-path counters. Implementations must be safe for
// concurrent use; a nil Metrics disables recording.
type Metrics interface {
	DecisionCacheHit()
	DecisionCacheMiss()
	DecisionEvaluated(allowed bool)
}

// Evaluator decides resource-scoped access from principal attributes and
// permission conditions, with a persisted decision cache in front.
type Evaluator struct {
	attrs   AttributeStore
	conds   ConditionStore
	cache   DecisionCache
	ttl     time.Duration
	logger  *slog.Logger
	metrics Metrics
	group   singleflight.Group
	now     func() time.Time
}

// NewEvaluator constructs an Evaluator. ttl is the forward expiry written
// with every cached decision.
func NewEvaluator(attrs AttributeStore, conds ConditionStore, cache DecisionCache, ttl time.Duration, logger *slog.Logger, metrics Metrics) *Evaluator {
	return &Evaluator{
		attrs:   attrs,
		conds:   conds,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// CheckAccess returns the allow/deny outcome for the tuple. The cache is
// probed first; on a miss the condition predicates run and the outcome is
// written back with the configured TTL. A failed cache write never fails the
// check — the freshly computed decision is still enforced.
func (e *Evaluator) CheckAccess(ctx context.Context, principalID int64, permission, resourceType, resourceID string) (Decision, error) {
	key := CacheKey(principalID, resourceType, resourceID, permission)

	cached, err := e.cache.Get(ctx, key)
	if err != nil {
		// A broken cache degrades to evaluation, never to a different outcome.
		e.warn("decision cache probe", err)
	}
	if cached != nil {
		if e.metrics != nil {
			e.metrics.DecisionCacheHit()
		}
		cached.CacheHit = true
		return *cached, nil
	}
	if e.metrics != nil {
		e.metrics.DecisionCacheMiss()
	}

	// Concurrent requests for the same tuple compute the same deterministic
	// outcome; singleflight collapses the duplicate work.
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		d, err := e.evaluate(ctx, principalID, permission, resourceType)
		if err != nil {
			return Decision{}, err
		}
		if err := e.cache.Put(ctx, key, d, e.ttl); err != nil {
			e.warn("decision cache put", err)
		}
		return d, nil
	})
	if err != nil {
		return Decision{}, err
	}
	decision := v.(Decision)
	if e.metrics != nil {
		e.metrics.DecisionEvaluated(decision.Allowed)
	}
	return decision, nil
}

// evaluate interprets the permission's condition descriptors for the resource
// type. Tuples with no matching descriptor, and descriptors of unknown
// condition types, deny.
func (e *Evaluator) evaluate(ctx context.Context, principalID int64, permission, resourceType string) (Decision, error) {
	conds, err := e.conds.PermissionConditions(ctx, permission)
	if err != nil {
		return Decision{}, fmt.Errorf("abac: load conditions: %w", err)
	}

	matched := conds[:0:0]
	for _, c := range conds {
		if c.ResourceType == resourceType {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return e.deny(ReasonInsufficientPermissions), nil
	}

	for _, c := range matched {
		switch c.ConditionType {
		case shared.ConditionAttributePresent:
			attrs, err := e.attrs.ListAttributes(ctx, principalID)
			if err != nil {
				return Decision{}, fmt.Errorf("abac: load attributes: %w", err)
			}
			if !hasAttribute(attrs, c.ConditionValue) {
				return e.deny(missingAttributeReason(c.ConditionValue)), nil
			}
		default:
			return e.deny(ReasonInsufficientPermissions), nil
		}
	}

	return Decision{Allowed: true, EvaluatedAt: e.now().UTC()}, nil
}

func (e *Evaluator) deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason, EvaluatedAt: e.now().UTC()}
}

func (e *Evaluator) warn(msg string, err error) {
	if e.logger != nil {
		e.logger.Warn(msg, slog.Any("error", err))
	}
}

func hasAttribute(attrs []principal.Attribute, name string) bool {
	for _, a := range attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}

// missingAttributeReason keeps the historical wording for the one seeded
// rule; everything else gets a generic message.
func missingAttributeReason(attribute string) string {
	if attribute == shared.AttrFacultyID {
		return ReasonNotFaculty
	}
	return fmt.Sprintf("required attribute %q not present", attribute)
}
