// Package environment resolves environment class names given on the command
// line to scene constructors.
package environment
