// Package metrics exports Bastion activity as Prometheus metrics. The
// Collector is a plugin: register it with bastion.WithPlugin and mount
// Handler on the metrics endpoint.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/plugin"
)

// Compile-time hook checks.
var (
	_ plugin.AccessChecked       = (*Collector)(nil)
	_ plugin.PermissionsResolved = (*Collector)(nil)
	_ plugin.RoleAssigned        = (*Collector)(nil)
	_ plugin.RoleUnassigned      = (*Collector)(nil)
	_ plugin.Login               = (*Collector)(nil)
	_ plugin.Logout              = (*Collector)(nil)
	_ plugin.CatalogSeeded       = (*Collector)(nil)
)

// Collector holds the Bastion metrics.
type Collector struct {
	registry *prometheus.Registry

	AccessChecks       *prometheus.CounterVec
	AccessCheckSeconds prometheus.Histogram
	AccessCheckErrors  prometheus.Counter
	Resolutions        *prometheus.CounterVec
	ResolvedSetSize    prometheus.Histogram
	RoleAssignments    *prometheus.CounterVec
	Logins             *prometheus.CounterVec
	Logouts            prometheus.Counter
	CatalogPermissions prometheus.Gauge
}

// New creates the collector and registers its metrics with registry. A
// nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		AccessChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_access_checks_total",
				Help: "Authorization decisions by outcome",
			},
			[]string{"decision"},
		),
		AccessCheckSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bastion_access_check_duration_seconds",
				Help:    "Authorization decision latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		AccessCheckErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bastion_access_check_errors_total",
				Help: "Authorization decisions denied because resolution failed",
			},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_permission_resolutions_total",
				Help: "Effective permission resolutions by cache result",
			},
			[]string{"cache"},
		),
		ResolvedSetSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bastion_resolved_permissions",
				Help:    "Size of resolved effective permission sets",
				Buckets: prometheus.LinearBuckets(0, 10, 10),
			},
		),
		RoleAssignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_role_assignments_total",
				Help: "Role grants and revocations",
			},
			[]string{"op"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_logins_total",
				Help: "Sign-in attempts by outcome",
			},
			[]string{"result"},
		),
		Logouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bastion_logouts_total",
				Help: "Sign-outs",
			},
		),
		CatalogPermissions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bastion_catalog_seeded_permissions",
				Help: "Permissions inserted by the last catalog seed",
			},
		),
	}
	registry.MustRegister(
		c.AccessChecks,
		c.AccessCheckSeconds,
		c.AccessCheckErrors,
		c.Resolutions,
		c.ResolvedSetSize,
		c.RoleAssignments,
		c.Logins,
		c.Logouts,
		c.CatalogPermissions,
	)
	return c
}

// Name implements plugin.Plugin.
func (c *Collector) Name() string { return "metrics" }

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) OnAccessChecked(_ context.Context, ev *plugin.AccessEvent) error {
	decision := "deny"
	if ev.Allowed {
		decision = "allow"
	}
	c.AccessChecks.WithLabelValues(decision).Inc()
	c.AccessCheckSeconds.Observe(ev.Duration.Seconds())
	if ev.Err != nil {
		c.AccessCheckErrors.Inc()
	}
	return nil
}

func (c *Collector) OnPermissionsResolved(_ context.Context, ev *plugin.ResolveEvent) error {
	result := "miss"
	if ev.Cached {
		result = "hit"
	}
	c.Resolutions.WithLabelValues(result).Inc()
	c.ResolvedSetSize.Observe(float64(ev.Count))
	return nil
}

func (c *Collector) OnRoleAssigned(context.Context, *assignment.Assignment) error {
	c.RoleAssignments.WithLabelValues("assign").Inc()
	return nil
}

func (c *Collector) OnRoleUnassigned(context.Context, *assignment.Assignment) error {
	c.RoleAssignments.WithLabelValues("unassign").Inc()
	return nil
}

func (c *Collector) OnLogin(_ context.Context, ev *plugin.LoginEvent) error {
	result := "failure"
	if ev.Success {
		result = "success"
	}
	c.Logins.WithLabelValues(result).Inc()
	return nil
}

func (c *Collector) OnLogout(context.Context, id.UserID) error {
	c.Logouts.Inc()
	return nil
}

func (c *Collector) OnCatalogSeeded(_ context.Context, _, permissions int) error {
	c.CatalogPermissions.Set(float64(permissions))
	return nil
}
