// Package dynamo provides core simulation primitives for dynamical systems.
//
// The package defines the fundamental interfaces and types for numerical
// simulation of ordinary differential equations (ODEs):
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical stepper interface
//
// Elastic models lay their state out as [positions..., velocities...] so the
// symplectic steppers in package integrators can split it in half.
//
// # Thread Safety
//
// States are plain slices. Integrators keep scratch buffers and must not be
// shared between goroutines.
package dynamo
