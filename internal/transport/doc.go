// Package transport is the worker to server wire: JSON messages, one per
// websocket text frame.
package transport
