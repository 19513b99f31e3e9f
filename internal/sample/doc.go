// Package sample builds training samples from a scene and applies network
// predictions back to it.
//
// Arrays are Nodes x 3 matrices. Their shapes are fixed when the Extractor is
// built: the force surface and the high-resolution grid in direct mode, the
// regular grid in both directions when the scene is grid mapped.
package sample
