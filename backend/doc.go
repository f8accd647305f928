// Package backend binds tools to an outward surface.
//
// A Backend is a named group of tools that can be listed and executed. Two
// kinds ship with the module:
//
//   - builtin (package backend/local): static Go handlers compiled into the
//     binary, such as health_check.
//   - dynamic (package backend/dynamic): tools compiled at runtime by the
//     service from their source definitions.
//
// # Registry
//
// The Registry holds backends in registration order. Order matters: when a
// tool is addressed by bare name, the first backend that lists it wins.
//
//	reg := backend.NewRegistry()
//	reg.Register(builtins)
//	reg.Register(dynamicTools)
//
// # Aggregator
//
// The Aggregator lists and executes tools across all enabled backends.
// Tools are addressed as "namespace:tool", where the namespace is the
// backend name, or by bare name:
//
//	agg := backend.NewAggregator(reg)
//	tools, _ := agg.ListAllTools(ctx)
//	result, _ := agg.Execute(ctx, "builtin:health_check", nil)
//
// # Tenancy
//
// Backends read the calling tenant from the request context (see
// tool.WithTenant), so listing and execution are scoped per tenant without
// widening the interface.
package backend
