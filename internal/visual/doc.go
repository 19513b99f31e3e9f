// Package visual publishes the meshes of a worker. A Factory assigns object
// ids and reduces every frame to the vertices that moved; a Sink delivers
// them, either to the server or to a SQLite visualization database.
package visual
