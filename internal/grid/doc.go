// Package grid maps points and simulation nodes onto a uniform regular grid.
//
// The regular grid is the fixed-resolution frame a learned model reads and
// writes; the simulation runs on a finer or differently shaped node set.
// [RegularGrid] answers cell and node queries by floor division, so every
// lookup is O(1). [Mapper] adds the tables built once at initialization: the
// eight corners of every cell and the sparse-to-regular node table.
//
// Points outside the lattice are always an error ([ErrOutOfBounds]); the
// grid is never clamped, so a mis-sized lattice cannot silently drop forces.
package grid
