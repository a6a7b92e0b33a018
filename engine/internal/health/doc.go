// Package health computes the composite [0,1] health/proficiency score of a
// completed job from its per-dimension resource efficiencies: CPU, memory,
// walltime estimation, I/O awareness, and GPU utilization when applicable.
// Both the composite and the per-dimension values are exposed so downstream
// consumers can isolate weak dimensions. The composite is monotonic in every
// dimension — increasing any input never decreases the overall score.
package health
