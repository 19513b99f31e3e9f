// Package physics provides the deformable models driven by the scenes.
//
// [ElasticLattice] implements [dynamo.System] for a hexahedral mass-spring
// lattice. External forces enter through the control vector, one 3-vector
// per node, and pinned nodes never move.
//
//	l := physics.NewElasticLattice(r3.Vec{}, 0.5, [3]int{8, 2, 2})
//	l.FixWhere(func(p r3.Vec) bool { return p.X == 0 })
//	x := l.InitialState()
//	x = integ.Step(l, x, forces, t, dt)
package physics
