// Package scene adapts the in-repo physics to the sample pipeline. A Scene
// owns the physical and prediction models, the force fields and a visual
// surface mesh; a Driver steps it and calls a Listener at init and after
// every timestep.
package scene
