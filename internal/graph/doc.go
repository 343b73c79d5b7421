// Package graph maintains typed relationships between validated patterns.
//
// The graph owns edges and holds only pattern ids. On every accepted link it
// recomputes the impact score of both endpoints from their incident edges
// and pushes the new scores to the pattern store:
//
//	score = 1.0*in + 0.5*out + sum(weights) + 0.25*distinct kinds
//
// Weights are finite and non-negative, so linking never lowers a score.
// conflicts-with edges are recorded and reported by Conflicts, Compatible and
// Applicable; they are never resolved automatically. The graph may contain
// cycles; Walk gives the acyclic traversal.
package graph
