// Package launcher turns the positional arguments of a worker process into a
// running session.
package launcher
